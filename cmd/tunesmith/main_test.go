package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"tunesmith/internal/browser"
	"tunesmith/internal/browser/browsertest"
	"tunesmith/internal/config"
	"tunesmith/internal/distribution"
	"tunesmith/internal/records"
	"tunesmith/internal/submission"
	"tunesmith/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *records.Store
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	testsupport.WriteConfig(t, cfg, configPath)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return &cliTestEnv{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n%s", needle, haystack)
	}
}

func completedSong(t *testing.T, env *cliTestEnv, title string) *records.Song {
	t.Helper()
	song := testsupport.NewSong(t, env.store, title, "warm synths", env.cfg.Paths.DownloadDir)
	path := filepath.Join(env.cfg.Paths.DownloadDir, strings.ToLower(strings.ReplaceAll(title, " ", "_"))+"_v1.mp3")
	testsupport.WriteAudio(t, path, 64*1024)
	song.State = submission.StateCompleted
	song.FilePath = path
	song.FileSize = 64 * 1024
	if err := env.store.UpdateSong(context.Background(), &song.WorkItem); err != nil {
		t.Fatalf("update song: %v", err)
	}
	return song
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	target := filepath.Join(dir, "conf", "tunesmith.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	env := setupCLITestEnv(t)
	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+env.configPath)
	requireContains(t, out, "Configuration valid")
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	env := setupCLITestEnv(t)
	bad := *env.cfg
	bad.Workflow.Workers = 0
	testsupport.WriteConfig(t, &bad, env.configPath)

	_, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "workflow.workers") {
		t.Fatalf("expected workers validation error, got %v", err)
	}
}

func TestSongsListShowAndStats(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	testsupport.NewSong(t, env.store, "Night Drive", "synthwave", env.cfg.Paths.DownloadDir)
	failed := testsupport.NewSong(t, env.store, "Lost Signal", "ambient", env.cfg.Paths.DownloadDir)
	failed.State = submission.StateFailed
	failed.FailureCategory = "timeout"
	failed.FailureDetail = "generation did not finish"
	if err := env.store.UpdateSong(ctx, &failed.WorkItem); err != nil {
		t.Fatalf("update song: %v", err)
	}

	out, _, err := runCLI(t, []string{"songs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("songs list: %v", err)
	}
	requireContains(t, out, "Night Drive")
	requireContains(t, out, "Lost Signal")

	out, _, err = runCLI(t, []string{"songs", "list", "--state", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("songs list --state: %v", err)
	}
	requireContains(t, out, "timeout: generation did not finish")
	if strings.Contains(out, "Night Drive") {
		t.Fatalf("state filter leaked a draft song:\n%s", out)
	}

	if _, _, err := runCLI(t, []string{"songs", "list", "--state", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected unknown state to be rejected")
	}

	out, _, err = runCLI(t, []string{"songs", "show", failed.Key}, env.configPath)
	if err != nil {
		t.Fatalf("songs show: %v", err)
	}
	requireContains(t, out, "Lost Signal")
	requireContains(t, out, "Failure:      timeout")

	out, _, err = runCLI(t, []string{"songs", "show", strconv.FormatInt(failed.ID, 10)}, env.configPath)
	if err != nil {
		t.Fatalf("songs show by id: %v", err)
	}
	requireContains(t, out, failed.Key)

	if _, _, err := runCLI(t, []string{"songs", "show", "missing-key"}, env.configPath); err == nil {
		t.Fatal("expected missing song error")
	}

	out, _, err = runCLI(t, []string{"songs", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("songs stats: %v", err)
	}
	requireContains(t, out, "draft")
	requireContains(t, out, "failed")
}

func TestSongsListJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewSong(t, env.store, "One", "p", env.cfg.Paths.DownloadDir)
	testsupport.NewSong(t, env.store, "Two", "p", env.cfg.Paths.DownloadDir)

	out, _, err := runCLI(t, []string{"songs", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("songs list --json: %v", err)
	}
	var songs []map[string]any
	if err := json.Unmarshal([]byte(out), &songs); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(songs) != 2 {
		t.Fatalf("expected 2 songs, got %d", len(songs))
	}
	if songs[0]["Title"] != "One" {
		t.Fatalf("unexpected first song: %v", songs[0]["Title"])
	}
}

func TestSongsRetryAndRedownloadCheckState(t *testing.T) {
	env := setupCLITestEnv(t)
	done := completedSong(t, env, "Sunrise")
	draft := testsupport.NewSong(t, env.store, "Dusk", "p", env.cfg.Paths.DownloadDir)

	_, _, err := runCLI(t, []string{"songs", "retry", done.Key}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "songs redownload") {
		t.Fatalf("expected retry of a completed song to point at redownload, got %v", err)
	}
	_, _, err = runCLI(t, []string{"songs", "redownload", draft.Key}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "want completed") {
		t.Fatalf("expected redownload of a draft to fail, got %v", err)
	}
}

func TestSongsRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	song := completedSong(t, env, "Old Take")

	out, _, err := runCLI(t, []string{"songs", "remove", song.Key}, env.configPath)
	if err != nil {
		t.Fatalf("songs remove: %v", err)
	}
	requireContains(t, out, "Removed song")
	if _, err := env.store.GetSongByKey(context.Background(), song.Key); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected song to be gone, got %v", err)
	}
	if _, err := os.Stat(song.FilePath); err != nil {
		t.Fatalf("audio file should be kept: %v", err)
	}
}

func TestSubmitValidatesFlags(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"submit", "--prompt", "lofi"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "--title is required") {
		t.Fatalf("expected missing title error, got %v", err)
	}
	_, _, err = runCLI(t, []string{"submit", "--title", "No Prompt"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "--prompt is required") {
		t.Fatalf("expected missing prompt error, got %v", err)
	}

	out, _, err := runCLI(t, []string{"submit", "--pending"}, env.configPath)
	if err != nil {
		t.Fatalf("submit --pending with nothing stored: %v", err)
	}
	requireContains(t, out, "No songs to run")
}

func TestDistributePreparesAndReportsBlockingProblems(t *testing.T) {
	env := setupCLITestEnv(t)
	song := completedSong(t, env, "Night Drive")
	draft := testsupport.NewSong(t, env.store, "Unfinished", "p", env.cfg.Paths.DownloadDir)

	_, _, err := runCLI(t, []string{"distribute", draft.Key, "--cover", "cover.png", "--prepare-only"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "only completed songs") {
		t.Fatalf("expected incomplete song to be rejected, got %v", err)
	}

	missingCover := filepath.Join(env.baseDir, "missing.png")
	out, _, err := runCLI(t, []string{"distribute", song.Key, "--cover", missingCover, "--prepare-only"}, env.configPath)
	if err == nil {
		t.Fatal("expected prepare to fail without a songwriter or cover")
	}
	requireContains(t, out, "is not ready")
	requireContains(t, out, "songwriter legal name")

	releases, err := env.store.ListReleases(context.Background())
	if err != nil {
		t.Fatalf("list releases: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("expected one release, got %d", len(releases))
	}
	r := releases[0]
	if r.Status != distribution.StatusDraft || r.SongKey != song.Key || len(r.Blocking) == 0 {
		t.Fatalf("unexpected release: status=%s song=%s blocking=%v", r.Status, r.SongKey, r.Blocking)
	}
}

func TestReleasesLiveAndReset(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	submitted := distribution.NewRelease("Night Drive", filepath.Join(env.baseDir, "a.mp3"), filepath.Join(env.baseDir, "a.jpg"))
	submitted.Status = distribution.StatusSubmitted
	if err := env.store.NewRelease(ctx, submitted); err != nil {
		t.Fatalf("new release: %v", err)
	}
	failed := distribution.NewRelease("Lost Signal", filepath.Join(env.baseDir, "b.mp3"), filepath.Join(env.baseDir, "b.jpg"))
	failed.Status = distribution.StatusError
	failed.ErrorMessage = "upload rejected"
	if err := env.store.NewRelease(ctx, failed); err != nil {
		t.Fatalf("new release: %v", err)
	}

	out, _, err := runCLI(t, []string{"releases", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("releases list: %v", err)
	}
	requireContains(t, out, "Night Drive")
	requireContains(t, out, "upload rejected")

	if _, _, err := runCLI(t, []string{"releases", "live", strconv.FormatInt(failed.ID, 10)}, env.configPath); err == nil {
		t.Fatal("expected live on an errored release to fail")
	}
	out, _, err = runCLI(t, []string{"releases", "live", strconv.FormatInt(submitted.ID, 10)}, env.configPath)
	if err != nil {
		t.Fatalf("releases live: %v", err)
	}
	requireContains(t, out, "is live")
	live, err := env.store.GetRelease(ctx, submitted.ID)
	if err != nil {
		t.Fatalf("get release: %v", err)
	}
	if live.Status != distribution.StatusLive || len(live.Transitions) != 1 {
		t.Fatalf("expected live with one transition, got %s (%d)", live.Status, len(live.Transitions))
	}

	// The files do not exist, so the release lands back in draft with problems.
	out, _, err = runCLI(t, []string{"releases", "reset", strconv.FormatInt(failed.ID, 10)}, env.configPath)
	if err == nil {
		t.Fatal("expected prepare after reset to report problems")
	}
	requireContains(t, out, "is not ready")
	reset, err := env.store.GetRelease(ctx, failed.ID)
	if err != nil {
		t.Fatalf("get release: %v", err)
	}
	if reset.Status != distribution.StatusDraft || reset.ErrorMessage != "" || len(reset.Blocking) == 0 {
		t.Fatalf("unexpected reset release: status=%s error=%q blocking=%v", reset.Status, reset.ErrorMessage, reset.Blocking)
	}

	if _, _, err := runCLI(t, []string{"releases", "show", "999"}, env.configPath); err == nil {
		t.Fatal("expected missing release error")
	}
}

func TestReleasesUploadWithNothingReady(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"releases", "upload"}, env.configPath)
	if err != nil {
		t.Fatalf("releases upload: %v", err)
	}
	requireContains(t, out, "No releases ready")
}

func TestSelectorsListAndReset(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"selectors", "list", "prompt_input"}, env.configPath)
	if err != nil {
		t.Fatalf("selectors list: %v", err)
	}
	requireContains(t, out, "prompt_input")
	requireContains(t, out, "textarea")

	if _, _, err := runCLI(t, []string{"selectors", "list", "nope"}, env.configPath); err == nil {
		t.Fatal("expected unknown group error")
	}
	if _, _, err := runCLI(t, []string{"selectors", "reset", "nope"}, env.configPath); err == nil {
		t.Fatal("expected unknown group error")
	}
	out, _, err = runCLI(t, []string{"selectors", "reset", "prompt_input"}, env.configPath)
	if err != nil {
		t.Fatalf("selectors reset: %v", err)
	}
	requireContains(t, out, "Reset prompt_input")
}

func TestSelectorsCheckReportsEachSite(t *testing.T) {
	env := setupCLITestEnv(t)

	var sessions []*browsertest.Session
	original := openBrowser
	openBrowser = func(_ context.Context, opts browser.Options) (browser.Session, error) {
		if opts.Site == browser.SiteDistributor {
			return nil, errors.New("profile locked")
		}
		session := browsertest.New(opts.Site)
		for _, group := range []string{"prompt_input", "lyrics_toggle", "home_nav", "project_card"} {
			session.Element(group)
		}
		sessions = append(sessions, session)
		return session, nil
	}
	t.Cleanup(func() { openBrowser = original })

	out, _, err := runCLI(t, []string{"selectors", "check"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "2 of 6 selector checks failed") {
		t.Fatalf("expected two failures, got %v\n%s", err, out)
	}
	requireContains(t, out, "PASS")
	requireContains(t, out, "FAIL")
	requireContains(t, out, "no candidate visible")
	requireContains(t, out, "profile locked")
	if len(sessions) != 1 || !sessions[0].Closed() {
		t.Fatalf("expected the generator session to be closed")
	}
	if sessions[0].Peeks() != 0 {
		t.Fatalf("health check should not record lookups")
	}

	out, _, err = runCLI(t, []string{"selectors", "check", "generator", "--json"}, env.configPath)
	if err == nil {
		t.Fatal("expected generate_button to fail")
	}
	var results []browser.HealthResult
	if jerr := json.Unmarshal([]byte(out), &results); jerr != nil {
		t.Fatalf("decode json: %v\n%s", jerr, out)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 generator results, got %d", len(results))
	}

	if _, _, err := runCLI(t, []string{"selectors", "check", "myspace"}, env.configPath); err == nil || !strings.Contains(err.Error(), "unknown site") {
		t.Fatalf("expected unknown site error, got %v", err)
	}
}

func TestPreflightLocalChecks(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"preflight"}, env.configPath)
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	requireContains(t, out, "[OK]")
	if strings.Contains(out, "[ERROR]") {
		t.Fatalf("unexpected failing check:\n%s", out)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications are disabled")
}

func TestLoginRejectsUnknownSite(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"login", "myspace"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unknown site") {
		t.Fatalf("expected unknown site error, got %v", err)
	}
}

func TestRunLockIsExclusive(t *testing.T) {
	env := setupCLITestEnv(t)
	first := newCommandContext(&env.configPath)
	second := newCommandContext(&env.configPath)

	unlock, err := first.acquireRunLock()
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := second.acquireRunLock(); !errors.Is(err, errRunnerActive) {
		t.Fatalf("expected errRunnerActive, got %v", err)
	}
	unlock()
	unlockAgain, err := second.acquireRunLock()
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	unlockAgain()
}

func TestGeneratorProfileNames(t *testing.T) {
	if got := generatorProfile(0); got != "generator" {
		t.Fatalf("slot 0 = %q", got)
	}
	if got := generatorProfile(2); got != "generator-3" {
		t.Fatalf("slot 2 = %q", got)
	}
}

func TestLogsFiltersBySong(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.cfg.Paths.LogDir, "tunesmith.log")
	content := strings.Join([]string{
		`{"ts":"2026-03-01T10:00:00Z","level":"info","msg":"song transition","component":"submission","item_key":"night-drive-1a2b3c4d","to":"polling"}`,
		`{"ts":"2026-03-01T10:00:01Z","level":"info","msg":"song transition","component":"submission","item_key":"other-song-00000000","to":"resolved"}`,
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--item", "night-drive-1a2b3c4d"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "night-drive-1a2b3c4d")
	requireContains(t, out, "to=polling")
	if strings.Contains(out, "other-song") {
		t.Fatalf("filter leaked another song:\n%s", out)
	}
}
