package capture

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storage = "https://lalals.s3.amazonaws.com"

func decode(t *testing.T, body string) any {
	t.Helper()
	tree, err := Decode([]byte(body))
	require.NoError(t, err)
	return tree
}

func TestExtractIdentifier(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Identifier
		ok   bool
	}{
		{
			name: "top level",
			body: `{"task_id":"0a1b2c3d-4e5f-6789","conversion_id_1":"c1-aaaaaaaaaaaa","conversion_id_2":"c2-bbbbbbbbbbbb","eta":45}`,
			want: Identifier{TaskID: "0a1b2c3d-4e5f-6789", ConversionID1: "c1-aaaaaaaaaaaa", ConversionID2: "c2-bbbbbbbbbbbb", ETA: "45"},
			ok:   true,
		},
		{
			name: "nested under data",
			body: `{"success":true,"data":{"taskId":"abcdefghijklmnop"}}`,
			want: Identifier{TaskID: "abcdefghijklmnop"},
			ok:   true,
		},
		{
			name: "inside list",
			body: `{"result":[{"name":"x"},{"conversionId":"conv-1234567890"}]}`,
			want: Identifier{TaskID: "conv-1234567890"},
			ok:   true,
		},
		{
			name: "short id beside a qualifying key",
			body: `{"id":"42","conversionId":"conv-1234567890"}`,
			want: Identifier{TaskID: "conv-1234567890"},
			ok:   true,
		},
		{
			name: "list beyond limit",
			body: `{"result":[{},{},{},{"id":"conv-1234567890"}]}`,
		},
		{
			name: "short identifier",
			body: `{"id":"12345"}`,
		},
		{
			name: "numeric id",
			body: `{"id":123456789012345}`,
		},
		{
			name: "too deep",
			body: `{"data":{"data":{"data":{"data":{"id":"abcdefghijklmnop"}}}}}`,
		},
		{
			name: "depth three",
			body: `{"data":{"data":{"data":{"id":"abcdefghijklmnop"}}}}`,
			want: Identifier{TaskID: "abcdefghijklmnop"},
			ok:   true,
		},
		{
			name: "unlisted container",
			body: `{"meta":{"task_id":"abcdefghijklmnop"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractIdentifier(decode(t, tt.body))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindFieldIgnoresNonObjects(t *testing.T) {
	_, _, ok := FindField([]any{map[string]any{"id": "abcdefghijklmnop"}}, DefaultOptions())
	assert.False(t, ok)
	_, _, ok = FindField("abcdefghijklmnop", DefaultOptions())
	assert.False(t, ok)
}

func TestFindFieldReportsQualifyingKey(t *testing.T) {
	obj, key, ok := FindField(map[string]any{
		"data": map[string]any{"task_id": "t1", "taskId": "abcdefghijklmnop"},
	}, DefaultOptions())
	assert.True(t, ok)
	assert.Equal(t, "taskId", key)
	assert.Equal(t, "t1", obj["task_id"])
}

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, Status(decode(t, `{"status":"completed"}`)))
	assert.Equal(t, StatusFailed, Status(decode(t, `{"conversion":{"status":"FAILED"}}`)))
	assert.Equal(t, StatusError, Status(decode(t, `{"data":{"status":"ERROR"}}`)))
	assert.Empty(t, Status(decode(t, `{"ok":true}`)))
	assert.Equal(t, "quota exceeded", ErrorMessage(decode(t, `{"status":"ERROR","message":"quota exceeded"}`)))
}

func TestExtractMetadataFromStatusResponse(t *testing.T) {
	body := decode(t, `{
		"success": true,
		"conversion": {
			"task_id": "task-1234567890",
			"status": "COMPLETED",
			"conversion_id_1": "c1-aaaaaaaaaaaa",
			"conversion_id_2": "c2-bbbbbbbbbbbb",
			"conversion_path_1": "https://cdn.example/one.mp3",
			"music_style": "synthwave",
			"voice": "Aria",
			"conversion_duration": 187.5,
			"createdAt": "2026-02-12T10:00:00Z",
			"lyrics_timestamped": [{"t":0,"line":"hello"}]
		}
	}`)
	got := ExtractMetadata(body, storage)
	want := Metadata{
		TaskID:            "task-1234567890",
		ConversionID1:     "c1-aaaaaaaaaaaa",
		ConversionID2:     "c2-bbbbbbbbbbbb",
		AudioURL1:         "https://cdn.example/one.mp3",
		AudioURL2:         storage + "/conversions/standard/c2-bbbbbbbbbbbb/c2-bbbbbbbbbbbb.mp3",
		MusicStyle:        "synthwave",
		VoiceUsed:         "Aria",
		DurationSeconds:   187.5,
		FileFormat:        "mp3",
		CreatedAt:         "2026-02-12T10:00:00Z",
		LyricsTimestamped: `[{"line":"hello","t":0}]`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractMetadataIgnoresBareStorageURL(t *testing.T) {
	got := ExtractMetadata(decode(t, `{"data":{"id":"task-1234567890","audio_url":"https://lalals.s3.amazonaws.com/"}}`), storage)
	assert.Equal(t, ConstructedURL(storage, "task-1234567890"), got.AudioURL1)
}

func TestExtractMetadataFromConversionList(t *testing.T) {
	got := ExtractMetadata(decode(t, `{"conversions":[{"id":"a","url":"https://x/a.wav"},"https://x/b.mp3"]}`), "")
	assert.Equal(t, "a", got.ConversionID1)
	assert.Equal(t, "https://x/a.wav", got.AudioURL1)
	assert.Equal(t, "https://x/b.mp3", got.AudioURL2)
}

func TestMetadataMerge(t *testing.T) {
	base := Metadata{TaskID: "t", AudioURL1: "one"}
	merged := base.Merge(Metadata{TaskID: "other", AudioURL2: "two", DurationSeconds: 3})
	assert.Equal(t, Metadata{TaskID: "t", AudioURL1: "one", AudioURL2: "two", DurationSeconds: 3}, merged)
	assert.Equal(t, "two", merged.AudioURL(2))
}

func TestURLs(t *testing.T) {
	assert.Equal(t, "https://s3/conversions/standard/abc/abc.mp3", ConstructedURL("https://s3/", "abc"))
	assert.Empty(t, ConstructedURL("https://s3", " "))

	assert.Equal(t, ".wav", AudioExtension("https://cdn/x/song.WAV?sig=1"))
	assert.Equal(t, ".mp3", AudioExtension("https://cdn/x/song.aac"))
	assert.Equal(t, ".mp3", AudioExtension("https://cdn/x/song.m4a"))

	assert.True(t, IsStaticAsset("https://lalals.com/_next/static/app.js?v=2"))
	assert.False(t, IsStaticAsset("https://api.musicgpt.com/api/public/v1/byId"))

	m := NewMatcher([]string{"MusicGPT.com", " /api/ ", ""})
	assert.True(t, m.IsAPI("https://api.musicgpt.com/v1/generate"))
	assert.True(t, m.IsAPI("https://lalals.com/api/songs"))
	assert.False(t, m.IsAPI("https://lalals.com/api/logo.png"))
	assert.False(t, m.IsAPI("https://lalals.com/music"))

	assert.Equal(t,
		"https://api.musicgpt.com/api/public/v1/byId?conversionType=MUSIC_AI&task_id=abc",
		StatusURL("https://api.musicgpt.com/api/public/v1/byId", "abc"))
}
