package repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSweepCutoff(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)

	cutoff := sweepCutoff(now)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), cutoff)

	// An event from two days ago is past the cutoff, yesterday's is not.
	assert.True(t, time.Date(2026, 8, 27, 18, 0, 0, 0, time.UTC).Before(cutoff))
	assert.False(t, time.Date(2026, 8, 28, 18, 0, 0, 0, time.UTC).Before(cutoff))
}

func TestSweepCutoff_Midnight(t *testing.T) {
	// Right at midnight the preceding day just completed: an event that
	// started the day before that becomes stale exactly now.
	now := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	cutoff := sweepCutoff(now)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), cutoff)
	assert.True(t, time.Date(2026, 8, 27, 23, 59, 0, 0, time.UTC).Before(cutoff))
}
