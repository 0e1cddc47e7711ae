package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunesmith/internal/capture"
	"tunesmith/internal/services"
	"tunesmith/internal/verify"
)

func audioBody(size int) []byte {
	data := make([]byte, size)
	data[0], data[1] = 0xFF, 0xFB
	return data
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mp3 := audioBody(32 * 1024)
	mux := http.NewServeMux()
	mux.HandleFunc("/song.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(mp3)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(mp3)
	})
	mux.HandleFunc("/error.mp3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(append([]byte("<html>"), make([]byte, 20*1024)...))
	})
	mux.HandleFunc("/missing.mp3", http.NotFound)
	mux.HandleFunc("/byId", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("conversionType") != "MUSIC_AI" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"conversion":{"task_id":"` + r.URL.Query().Get("task_id") + `","status":"COMPLETED"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func accept(tmp string) error {
	_, err := verify.Verify(tmp, "mp3", 0)
	return err
}

func TestDownloadCommitsVerifiedFile(t *testing.T) {
	srv := newServer(t)
	c := New(5*time.Second, nil)
	dest := filepath.Join(t.TempDir(), "2026-02-12_song", "song_v1.mp3")

	var last int64
	n, err := c.Download(context.Background(), srv.URL+"/song.mp3", dest, accept, func(written, total int64) {
		last = written
		assert.Equal(t, int64(32*1024), total)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(32*1024), n)
	assert.Equal(t, n, last)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, n, info.Size())
	assertNoPartials(t, filepath.Dir(dest))
}

func TestDownloadRejectedLeavesNothing(t *testing.T) {
	srv := newServer(t)
	c := New(5*time.Second, nil)
	dest := filepath.Join(t.TempDir(), "song_v1.mp3")

	_, err := c.Download(context.Background(), srv.URL+"/error.mp3", dest, accept, nil)
	require.ErrorIs(t, err, services.ErrDownloadRejected)
	_, statErr := os.Stat(dest)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
	assertNoPartials(t, filepath.Dir(dest))
}

func TestDownloadHTTPErrorIsPermanent(t *testing.T) {
	srv := newServer(t)
	_, err := New(5*time.Second, nil).Download(context.Background(), srv.URL+"/missing.mp3", filepath.Join(t.TempDir(), "x.mp3"), nil, nil)
	var httpErr *services.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.False(t, services.IsRetryable(err))
}

func TestDownloadCancelled(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dest := filepath.Join(t.TempDir(), "song.mp3")
	_, err := New(5*time.Second, nil).Download(ctx, srv.URL+"/song.mp3", dest, accept, nil)
	require.ErrorIs(t, err, services.ErrCancelled)
	_, statErr := os.Stat(dest)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestSizeAndHeadSizes(t *testing.T) {
	srv := newServer(t)
	c := New(5*time.Second, nil)
	size, err := c.Size(context.Background(), srv.URL+"/song.mp3")
	require.NoError(t, err)
	assert.Equal(t, int64(32*1024), size)

	sizes := c.HeadSizes(context.Background(), []string{srv.URL + "/song.mp3", srv.URL + "/missing.mp3", ""})
	assert.Equal(t, map[string]int64{srv.URL + "/song.mp3": 32 * 1024}, sizes)
}

func TestStatusSendsBearerToken(t *testing.T) {
	srv := newServer(t)
	c := New(5*time.Second, nil)

	tree, err := c.Status(context.Background(), srv.URL+"/byId", "task-1234567890", "tok")
	require.NoError(t, err)
	assert.Equal(t, capture.StatusCompleted, capture.Status(tree))

	_, err = c.Status(context.Background(), srv.URL+"/byId", "task-1234567890", "")
	var httpErr *services.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://s3/x.mp3", redact("https://s3/x.mp3?X-Amz-Signature=abc"))
}

func assertNoPartials(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".part")
	}
}
