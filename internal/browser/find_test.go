package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunesmith/internal/selectors"
	"tunesmith/internal/services"
)

type stubElement struct{ locator string }

func (stubElement) Click(context.Context) error                       { return nil }
func (stubElement) Fill(context.Context, string) error                { return nil }
func (stubElement) SetFiles(context.Context, []string) error          { return nil }
func (stubElement) Select(context.Context, string) error              { return nil }
func (stubElement) Check(context.Context) error                       { return nil }
func (stubElement) Text(context.Context) (string, error)              { return "", nil }
func (stubElement) Attribute(context.Context, string) (string, error) { return "", nil }

func visibleOnly(visible ...string) (LocatorFunc, *[]string) {
	var seen []string
	set := make(map[string]bool, len(visible))
	for _, v := range visible {
		set[v] = true
	}
	return func(_ context.Context, loc Locator) (Element, error) {
		seen = append(seen, loc.Raw)
		if set[loc.Raw] {
			return stubElement{locator: loc.Raw}, nil
		}
		return nil, ErrNotVisible
	}, &seen
}

func newRegistry(t *testing.T) (*selectors.Registry, *selectors.MemoryStore) {
	t.Helper()
	store := selectors.NewMemoryStore(nil)
	reg := selectors.New(context.Background(), store, map[string][]string{
		"generate": {"#go", "button::Generate", "[type=submit]"},
	}, nil)
	return reg, store
}

func TestParseLocator(t *testing.T) {
	loc := ParseLocator(`button::^\s*Generate\s*$`)
	assert.Equal(t, "button", loc.CSS)
	assert.Equal(t, `^\s*Generate\s*$`, loc.TextRE)
	assert.True(t, loc.HasText)

	plain := ParseLocator(" textarea[name=prompt] ")
	assert.Equal(t, "textarea[name=prompt]", plain.CSS)
	assert.False(t, plain.HasText)
}

func TestFindWithPromotesFallbackWinner(t *testing.T) {
	ctx := context.Background()
	reg, store := newRegistry(t)
	try, seen := visibleOnly("button::Generate")

	el, locator, err := FindWith(ctx, reg, "generate", try, nil)
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Equal(t, "button::Generate", locator)
	assert.Equal(t, []string{"#go", "button::Generate"}, *seen)
	assert.Equal(t, []string{"button::Generate", "#go", "[type=submit]"}, reg.Resolve("generate"))
	assert.Equal(t, reg.Resolve("generate"), store.Group("generate"))
}

func TestFindWithDemotesEveryCandidateOnMiss(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	before := reg.Resolve("generate")
	try, seen := visibleOnly()

	_, _, err := FindWith(ctx, reg, "generate", try, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrSelectorNotFound))
	assert.True(t, errors.Is(err, ErrNotVisible))
	assert.Len(t, *seen, 3)
	assert.ElementsMatch(t, before, reg.Resolve("generate"))
}

func TestFindWithUnknownGroup(t *testing.T) {
	reg, _ := newRegistry(t)
	try, seen := visibleOnly("x")
	_, _, err := FindWith(context.Background(), reg, "missing", try, nil)
	assert.ErrorIs(t, err, services.ErrSelectorNotFound)
	assert.Empty(t, *seen)
}

func TestFindWithStopsWhenCancelled(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	try, seen := visibleOnly("#go")
	_, _, err := FindWith(ctx, reg, "generate", try, nil)
	assert.ErrorIs(t, err, services.ErrCancelled)
	assert.Empty(t, *seen)
	assert.Equal(t, []string{"#go", "button::Generate", "[type=submit]"}, reg.Resolve("generate"))
}

func TestPeekWithLeavesOrderAloneOnMiss(t *testing.T) {
	ctx := context.Background()
	reg, store := newRegistry(t)
	try, seen := visibleOnly()

	_, _, err := PeekWith(ctx, reg, "generate", try)
	assert.ErrorIs(t, err, services.ErrSelectorNotFound)
	assert.Len(t, *seen, 3)
	assert.Equal(t, []string{"#go", "button::Generate", "[type=submit]"}, reg.Resolve("generate"))
	assert.Zero(t, store.Saves)

	hit, _ := visibleOnly("[type=submit]")
	_, locator, err := PeekWith(ctx, reg, "generate", hit)
	require.NoError(t, err)
	assert.Equal(t, "[type=submit]", locator)
	assert.Equal(t, []string{"[type=submit]", "#go", "button::Generate"}, reg.Resolve("generate"))
	assert.Equal(t, 1, store.Saves)
}

func TestLocateWithRecordsNothing(t *testing.T) {
	ctx := context.Background()
	reg, store := newRegistry(t)

	hit, _ := visibleOnly("button::Generate")
	locator, err := LocateWith(ctx, reg, "generate", hit)
	require.NoError(t, err)
	assert.Equal(t, "button::Generate", locator)

	miss, _ := visibleOnly()
	_, err = LocateWith(ctx, reg, "generate", miss)
	assert.ErrorIs(t, err, services.ErrSelectorNotFound)

	assert.Equal(t, []string{"#go", "button::Generate", "[type=submit]"}, reg.Resolve("generate"))
	assert.Zero(t, store.Saves)
}
