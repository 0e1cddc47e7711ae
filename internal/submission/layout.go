package submission

import (
	"fmt"
	"path/filepath"
	"time"

	"tunesmith/internal/textutil"
)

// SongDir is <root>/<YYYY-MM-DD>_<slug>. A song re-downloaded on a later
// day lands in a new folder.
func SongDir(root, title string, day time.Time) string {
	return filepath.Join(root, day.Format("2006-01-02")+"_"+textutil.Slugify(title))
}

// DestinationPath is the final artifact path for one version.
func DestinationPath(root, title string, version int, ext string, day time.Time) string {
	if version < 1 {
		version = 1
	}
	if ext == "" {
		ext = ".mp3"
	}
	name := fmt.Sprintf("%s_v%d%s", textutil.Slugify(title), version, ext)
	return filepath.Join(SongDir(root, title, day), name)
}
