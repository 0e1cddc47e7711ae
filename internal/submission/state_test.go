package submission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateDraft, StateSubmitting, true},
		{StateDraft, StatePolling, true},
		{StateDraft, StateDownloading, false},
		{StateSubmitting, StateAwaitingIdentifier, true},
		{StateSubmitting, StateResolved, false},
		{StateAwaitingIdentifier, StateResolved, true},
		{StateVerifying, StateDownloading, true},
		{StateVerifying, StateCompleted, true},
		{StateDownloading, StateCompleted, false},
		{StatePolling, StateFailed, true},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateFailed, false},
		{StateCompleted, StateDraft, true},
		{StateFailed, StateDraft, true},
		{StateCompleted, StateDownloading, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatePercentIsMonotonic(t *testing.T) {
	order := []State{
		StateDraft, StateSubmitting, StateAwaitingIdentifier, StatePolling,
		StateResolved, StateDownloading, StateVerifying, StateCompleted,
	}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, statePercent[order[i]], statePercent[order[i-1]], string(order[i]))
		assert.Equal(t, i, stateStep[order[i]])
	}
}

func TestDestinationPath(t *testing.T) {
	day := time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "/music/2026-01-02_neon-rain/neon-rain_v1.mp3", DestinationPath("/music", "Neon Rain", 0, "", day))
	assert.Equal(t, "/music/2026-01-02_cafe-del-mar/cafe-del-mar_v2.wav", DestinationPath("/music", "Café del Mar!", 2, ".wav", day))
	assert.Equal(t, "/music/2026-01-02_untitled", SongDir("/music", "  ", day))
}
