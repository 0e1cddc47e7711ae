package capture

import (
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Generation statuses reported by the status endpoint.
const (
	StatusCompleted = "COMPLETED"
	StatusError     = "ERROR"
	StatusFailed    = "FAILED"
)

// Metadata is the flattened description of a finished generation.
type Metadata struct {
	TaskID            string  `json:"task_id,omitempty"`
	ConversionID1     string  `json:"conversion_id_1,omitempty"`
	ConversionID2     string  `json:"conversion_id_2,omitempty"`
	AudioURL1         string  `json:"audio_url_1,omitempty"`
	AudioURL2         string  `json:"audio_url_2,omitempty"`
	MusicStyle        string  `json:"music_style,omitempty"`
	VoiceUsed         string  `json:"voice_used,omitempty"`
	DurationSeconds   float64 `json:"duration_seconds,omitempty"`
	FileFormat        string  `json:"file_format,omitempty"`
	CreatedAt         string  `json:"created_at,omitempty"`
	LyricsTimestamped string  `json:"lyrics_timestamped,omitempty"`
}

// AudioURL returns the URL for version 1 or 2.
func (m Metadata) AudioURL(version int) string {
	if version == 2 {
		return m.AudioURL2
	}
	return m.AudioURL1
}

// Merge fills empty fields of m from other.
func (m Metadata) Merge(other Metadata) Metadata {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&m.TaskID, other.TaskID)
	fill(&m.ConversionID1, other.ConversionID1)
	fill(&m.ConversionID2, other.ConversionID2)
	fill(&m.AudioURL1, other.AudioURL1)
	fill(&m.AudioURL2, other.AudioURL2)
	fill(&m.MusicStyle, other.MusicStyle)
	fill(&m.VoiceUsed, other.VoiceUsed)
	fill(&m.FileFormat, other.FileFormat)
	fill(&m.CreatedAt, other.CreatedAt)
	fill(&m.LyricsTimestamped, other.LyricsTimestamped)
	if m.DurationSeconds == 0 {
		m.DurationSeconds = other.DurationSeconds
	}
	return m
}

// Status reads the generation status from a response body, looking at the
// top level and then the conversion and data containers.
func Status(body any) string {
	obj, ok := body.(map[string]any)
	if !ok {
		return ""
	}
	if s := firstString(obj, "status"); s != "" {
		return strings.ToUpper(s)
	}
	for _, key := range []string{"conversion", "data"} {
		if nested, ok := obj[key].(map[string]any); ok {
			if s := firstString(nested, "status"); s != "" {
				return strings.ToUpper(s)
			}
		}
	}
	return ""
}

// ErrorMessage extracts the failure message of an ERROR/FAILED response.
func ErrorMessage(body any) string {
	obj, ok := body.(map[string]any)
	if !ok {
		return ""
	}
	if msg := firstString(obj, "error", "message"); msg != "" {
		return msg
	}
	if nested, ok := obj["conversion"].(map[string]any); ok {
		return firstString(nested, "error", "message", "status_msg")
	}
	return ""
}

// ExtractMetadata flattens a submit, status or webhook response. Audio URLs
// missing from the body are constructed from storageBase and the conversion
// or task identifiers.
func ExtractMetadata(body any, storageBase string) Metadata {
	data, ok := body.(map[string]any)
	if !ok {
		return Metadata{}
	}
	if nested, ok := data["conversion"].(map[string]any); ok {
		data = nested
	} else if nested, ok := data["data"].(map[string]any); ok {
		data = nested
	}

	m := Metadata{
		TaskID:        firstString(data, "task_id", "taskId", "id"),
		ConversionID1: firstString(data, "conversion_id_1", "conversion_id"),
		ConversionID2: firstString(data, "conversion_id_2"),
	}
	if u := firstString(data, "conversion_path_1", "audio_url_1", "audio_url", "conversion_path", "conversionPath", "track_url"); !isBareStorage(u, storageBase) {
		m.AudioURL1 = u
	}
	if u := firstString(data, "conversion_path_2", "audio_url_2", "conversion_path_wav"); !isBareStorage(u, storageBase) {
		m.AudioURL2 = u
	}

	if m.AudioURL1 == "" && m.ConversionID1 != "" {
		m.AudioURL1 = ConstructedURL(storageBase, m.ConversionID1)
	}
	if m.AudioURL2 == "" && m.ConversionID2 != "" {
		m.AudioURL2 = ConstructedURL(storageBase, m.ConversionID2)
	}
	if m.AudioURL1 == "" && m.TaskID != "" {
		m.AudioURL1 = ConstructedURL(storageBase, m.TaskID)
	}

	conversions, _ := data["conversions"].([]any)
	if conversions == nil {
		conversions, _ = data["results"].([]any)
	}
	for i, conv := range conversions[:min(len(conversions), 2)] {
		id, audio := &m.ConversionID1, &m.AudioURL1
		if i == 1 {
			id, audio = &m.ConversionID2, &m.AudioURL2
		}
		switch c := conv.(type) {
		case map[string]any:
			if *id == "" {
				*id = firstString(c, "conversion_id", "conversionId", "id")
			}
			if *audio == "" {
				*audio = firstString(c, "conversion_path", "audio_url", "url")
			}
		case string:
			if *audio == "" {
				*audio = c
			}
		}
	}

	m.MusicStyle = firstString(data, "music_style", "musicStyle", "style")
	m.VoiceUsed = firstString(data, "voice", "voice_name", "voiceName")
	if d := firstString(data, "duration", "duration_seconds", "conversion_duration"); d != "" {
		m.DurationSeconds, _ = strconv.ParseFloat(d, 64)
	}
	m.FileFormat = firstString(data, "format", "file_format")
	if m.FileFormat == "" {
		m.FileFormat = "mp3"
	}
	m.CreatedAt = firstString(data, "created_at", "createdAt")
	switch lyrics := firstPresent(data, "lyrics_timestamped", "timestampedLyrics").(type) {
	case nil:
	case string:
		m.LyricsTimestamped = lyrics
	default:
		if encoded, err := json.Marshal(lyrics); err == nil {
			m.LyricsTimestamped = string(encoded)
		}
	}
	return m
}

// ConstructedURL is the storage location the generator uses for a
// conversion: <base>/conversions/standard/<id>/<id>.mp3.
func ConstructedURL(storageBase, id string) string {
	id = strings.TrimSpace(id)
	if id == "" || storageBase == "" {
		return ""
	}
	return strings.TrimRight(storageBase, "/") + "/conversions/standard/" + url.PathEscape(id) + "/" + url.PathEscape(id) + ".mp3"
}

// AudioExtension picks the file extension for a download URL.
func AudioExtension(rawURL string) string {
	p := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		p = parsed.Path
	}
	switch ext := strings.ToLower(path.Ext(p)); ext {
	case ".mp3", ".wav", ".ogg", ".flac":
		return ext
	}
	return ".mp3"
}

func isBareStorage(u, storageBase string) bool {
	if u == "" {
		return true
	}
	return storageBase != "" && strings.TrimRight(u, "/") == strings.TrimRight(storageBase, "/")
}

func firstPresent(obj map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := obj[key]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}
