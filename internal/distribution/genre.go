package distribution

import "strings"

// DefaultGenre is used when a genre has no distributor equivalent.
const DefaultGenre = "Pop"

// Genres is the distributor's fixed primary-genre list.
var Genres = []string{
	"Alternative", "Anime", "Blues", "Children's Music", "Classical",
	"Comedy", "Country", "Dance", "Electronic", "Fitness & Workout",
	"Funk", "Hip-Hop/Rap", "Holiday", "Inspirational", "Jazz",
	"K-Pop", "Latin", "Metal", "New Age", "Pop", "R&B/Soul",
	"Reggae", "Rock", "Singer/Songwriter", "Soul", "Soundtrack",
	"Spoken Word", "Vocal", "Worldwide",
}

// genreMap translates the song catalogue's genre names.
var genreMap = map[string]string{
	"Pop":                 "Pop",
	"Hip-Hop":             "Hip-Hop/Rap",
	"Rock":                "Rock",
	"Country":             "Country",
	"Latin / Reggaeton":   "Latin",
	"EDM / Dance":         "Dance",
	"R&B / Soul":          "R&B/Soul",
	"Indie Pop":           "Pop",
	"Afrobeats":           "Worldwide",
	"K-Pop":               "K-Pop",
	"Folk / Americana":    "Singer/Songwriter",
	"Lo-Fi Hip-Hop":       "Hip-Hop/Rap",
	"Funk":                "Funk",
	"Country Rock":        "Country",
	"Electropop":          "Electronic",
	"Reggae":              "Reggae",
	"Melodic Rap":         "Hip-Hop/Rap",
	"Tech House":          "Dance",
	"Pop R&B":             "R&B/Soul",
	"Alt-Rock":            "Alternative",
	"Indie Pop-Rock":      "Alternative",
	"Country Spoken Word": "Country",
	"Comedy Hip-Hop":      "Hip-Hop/Rap",
}

// MapGenre returns the distributor genre for name. Names already on the
// distributor's list pass through; anything unknown becomes fallback, or
// DefaultGenre when fallback is not a distributor genre either.
func MapGenre(name, fallback string) string {
	name = strings.TrimSpace(name)
	if mapped, ok := genreMap[name]; ok {
		return mapped
	}
	if canonical, ok := distributorGenre(name); ok {
		return canonical
	}
	if canonical, ok := distributorGenre(fallback); ok {
		return canonical
	}
	return DefaultGenre
}

func distributorGenre(name string) (string, bool) {
	for _, g := range Genres {
		if strings.EqualFold(g, strings.TrimSpace(name)) {
			return g, true
		}
	}
	return "", false
}
