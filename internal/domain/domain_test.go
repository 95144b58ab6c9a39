package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	in := time.Date(2026, 8, 24, 23, 59, 58, 123, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), Normalize(in))

	// Location is preserved.
	loc := time.FixedZone("KST", 9*3600)
	in = time.Date(2026, 8, 24, 1, 0, 0, 0, loc)
	out := Normalize(in)
	assert.Equal(t, loc, out.Location())
	assert.Equal(t, 0, out.Hour())
}

func TestCycleSince(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(-30*24*time.Hour), CycleSince(now))
}

func TestPeriod(t *testing.T) {
	assert.Equal(t, "2026-08", Period(time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-09", Period(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))
}
