package selectors

// Generator page roles.
const (
	PromptInput    = "prompt_input"
	LyricsToggle   = "lyrics_toggle"
	LyricsInput    = "lyrics_input"
	GenerateButton = "generate_button"
	HomeNav        = "home_nav"
	ProjectCard    = "project_card"
)

// Distributor form roles.
const (
	DKArtist          = "dk_artist"
	DKTitle           = "dk_title"
	DKSongwriterFirst = "dk_songwriter_first"
	DKSongwriterLast  = "dk_songwriter_last"
	DKGenre           = "dk_genre"
	DKLanguage        = "dk_language"
	DKAudioUpload     = "dk_audio_upload"
	DKArtworkUpload   = "dk_artwork_upload"
	DKInstrumental    = "dk_instrumental"
	DKAIDisclosure    = "dk_ai_disclosure"
	DKSubmit          = "dk_submit"
	DKUploadComplete  = "dk_upload_complete"
	DKUploadError     = "dk_upload_error"
)

// TextSeparator splits a locator into a CSS selector and a text regex, as in
// "button::^Generate$".
const TextSeparator = "::"

var generatorDefaults = map[string][]string{
	PromptInput: {
		`textarea[title*="Describe"]`,
		`textarea[maxlength="500"]`,
		`textarea[placeholder*="escribe"]`,
		`textarea[placeholder*="song"]`,
		`textarea`,
	},
	LyricsToggle: {
		`[data-name="LyricsButton"] button`,
		`button[aria-label="Lyrics"]`,
		`button::^\s*Lyrics\s*$`,
	},
	LyricsInput: {
		`textarea[placeholder*="Write your own lyrics"]`,
		`textarea[placeholder*="lyrics"]`,
		`textarea[maxlength="3000"]`,
	},
	GenerateButton: {
		`button[type="submit"]`,
		`button::Generate`,
		`button::Create`,
		`button::Submit`,
		`button[aria-label*="submit" i]`,
		`button[aria-label*="generate" i]`,
		`button[aria-label*="send" i]`,
	},
	HomeNav: {
		`a::^\s*Home\s*$`,
		`a[href="/"]`,
		`a[href="/home"]`,
		`[data-name="Home"]`,
		`[data-testid="home"]`,
	},
	ProjectCard: {
		`[data-name="ProjectItem"]`,
		`[data-project-id]`,
	},
}

var distributorDefaults = map[string][]string{
	DKArtist:          {`#artistName`, `input[name="artistName"]`, `input[placeholder*="Artist"]`},
	DKTitle:           {`input[name="title_1"]`, `#title_1`, `input[placeholder*="Song title"]`},
	DKSongwriterFirst: {`input[name="songwriter_real_name_first1"]`, `input[placeholder*="First"]`},
	DKSongwriterLast:  {`input[name="songwriter_real_name_last1"]`, `input[placeholder*="Last"]`},
	DKGenre:           {`#genrePrimary`, `select[name="genrePrimary"]`},
	DKLanguage:        {`#language`, `select[name="language"]`},
	DKAudioUpload:     {`input[type="file"][name="audioFile_1"]`, `input[type="file"][accept*="audio"]`},
	DKArtworkUpload:   {`input[type="file"][name="artwork"]`, `input[type="file"][accept*="image"]`},
	DKInstrumental:    {`input[name="instrumental_1"][value="1"]`, `label::Instrumental`},
	DKAIDisclosure:    {`input[name="ai_generated"]`, `input[type="checkbox"][name*="ai"]`, `label::AI`},
	DKSubmit:          {`#doneButton`, `button[type="submit"]`, `button::Done`, `input[type="submit"]`},
	DKUploadComplete:  {`.upload-complete`, `div::Upload complete`, `h1::Thanks`, `div::[Cc]ongratulations`},
	DKUploadError:     {`.alert-danger`, `.error-message`, `div::([Uu]pload failed|[Tt]here was a problem)`},
}

// Defaults returns the built-in orderings for every known role.
func Defaults() map[string][]string {
	out := make(map[string][]string, len(generatorDefaults)+len(distributorDefaults))
	for _, src := range []map[string][]string{generatorDefaults, distributorDefaults} {
		for group, candidates := range src {
			out[group] = append([]string(nil), candidates...)
		}
	}
	return out
}
