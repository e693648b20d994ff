package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday-advisor/config"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(config.SessionConfig{TimeZone: "Asia/Jakarta", Open: "09:00", Close: "16:00"})
	require.NoError(t, err)
	return s
}

func TestSessionIsOpen(t *testing.T) {
	s := newTestSession(t)
	loc := s.Location()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2024, 3, 4, 8, 59, 0, 0, loc), false},
		{"at open", time.Date(2024, 3, 4, 9, 0, 0, 0, loc), true},
		{"midday", time.Date(2024, 3, 4, 12, 30, 0, 0, loc), true},
		{"at close", time.Date(2024, 3, 4, 16, 0, 0, 0, loc), false},
		{"saturday", time.Date(2024, 3, 9, 10, 0, 0, 0, loc), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsOpen(tt.at))
		})
	}
}

func TestSessionMinutesToClose(t *testing.T) {
	s := newTestSession(t)
	loc := s.Location()

	assert.Equal(t, 20, s.MinutesToClose(time.Date(2024, 3, 4, 15, 40, 0, 0, loc)))
	assert.Equal(t, -1, s.MinutesToClose(time.Date(2024, 3, 4, 17, 0, 0, 0, loc)))
	assert.Equal(t, PreClosing, s.Name(time.Date(2024, 3, 4, 15, 55, 0, 0, loc)))
}

func TestSessionNextOpenSkipsWeekend(t *testing.T) {
	s := newTestSession(t)
	loc := s.Location()

	friday := time.Date(2024, 3, 8, 17, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 11, 9, 0, 0, 0, loc), s.NextOpen(friday))
}

func TestNewSessionRejectsInvertedHours(t *testing.T) {
	_, err := NewSession(config.SessionConfig{TimeZone: "UTC", Open: "16:00", Close: "09:00"})
	assert.Error(t, err)
}
