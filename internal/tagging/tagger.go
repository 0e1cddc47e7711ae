// Package tagging writes ID3 frames to completed MP3 artifacts.
package tagging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
)

// Tags are the frames written to a song file. Empty fields are left alone.
type Tags struct {
	Title  string
	Artist string
	Album  string
	Genre  string
	Year   string
	Lyrics string
	// Comment is stored in a COMM frame, e.g. the generator task id.
	Comment string
	// Artwork is an optional JPEG embedded as the front cover.
	Artwork []byte
}

// Write opens path and replaces the frames named by tags. A file without a
// tag gets a new one.
func Write(path string, tags Tags) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("tag %s: %w", path, err)
	}
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open tag %s: %w", path, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if tags.Title != "" {
		tag.SetTitle(tags.Title)
	}
	if tags.Artist != "" {
		tag.SetArtist(tags.Artist)
		tag.AddTextFrame("TPE2", id3v2.EncodingUTF8, tags.Artist)
	}
	if tags.Album != "" {
		tag.SetAlbum(tags.Album)
	}
	if tags.Genre != "" {
		tag.SetGenre(tags.Genre)
	}
	if tags.Year != "" {
		tag.SetYear(tags.Year)
	}
	if lyrics := strings.TrimSpace(tags.Lyrics); lyrics != "" {
		tag.DeleteFrames(tag.CommonID("Unsynchronised lyrics/text transcription"))
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding: id3v2.EncodingUTF8,
			Language: "eng",
			Lyrics:   lyrics,
		})
	}
	if tags.Comment != "" {
		tag.DeleteFrames(tag.CommonID("Comments"))
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "tunesmith",
			Text:        tags.Comment,
		})
	}
	if len(tags.Artwork) > 0 {
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     tags.Artwork,
		})
	}
	if err := tag.Save(); err != nil {
		return fmt.Errorf("save tag %s: %w", path, err)
	}
	return nil
}

// Read returns the text frames Write manages.
func Read(path string) (Tags, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return Tags{}, fmt.Errorf("open tag %s: %w", path, err)
	}
	defer tag.Close()

	out := Tags{
		Title:  tag.Title(),
		Artist: tag.Artist(),
		Album:  tag.Album(),
		Genre:  tag.Genre(),
		Year:   tag.Year(),
	}
	for _, f := range tag.GetFrames(tag.CommonID("Unsynchronised lyrics/text transcription")) {
		if uslt, ok := f.(id3v2.UnsynchronisedLyricsFrame); ok {
			out.Lyrics = uslt.Lyrics
			break
		}
	}
	for _, f := range tag.GetFrames(tag.CommonID("Comments")) {
		if comm, ok := f.(id3v2.CommentFrame); ok {
			out.Comment = comm.Text
			break
		}
	}
	for _, f := range tag.GetFrames(tag.CommonID("Attached picture")) {
		if pic, ok := f.(id3v2.PictureFrame); ok {
			out.Artwork = pic.Picture
			break
		}
	}
	return out, nil
}

// Applies reports whether path names a file Write can tag.
func Applies(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mp3")
}
