package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClampStars(t *testing.T) {
	tests := []struct {
		in       int
		expected int
	}{
		{-3, 0},
		{0, 0},
		{5, 5},
		{10, 10},
		{14, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClampStars(tt.in))
	}
}

func TestSongDuration(t *testing.T) {
	s := Song{DurationSec: 185}
	assert.Equal(t, 185*time.Second, s.Duration())
}

func TestSongIsActive(t *testing.T) {
	assert.True(t, (&Song{Status: SongStatusNowPlaying}).IsActive())
	assert.True(t, (&Song{Status: SongStatusDebut}).IsActive())
	assert.False(t, (&Song{Status: SongStatusPool}).IsActive())
	assert.False(t, (&Song{Status: SongStatusGraveyard}).IsActive())
}

func TestRoundKey_SortedAndDistinct(t *testing.T) {
	candidates := []*Song{{ID: 9}, {ID: 2}, {ID: 9}, {ID: 5}}
	assert.Equal(t, "2-5-9", RoundKey(candidates))
}

func TestRoundKey_Single(t *testing.T) {
	assert.Equal(t, "7", RoundKey([]*Song{{ID: 7}}))
}
