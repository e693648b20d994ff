package market

import (
	"fmt"
	"time"

	"intraday-advisor/config"
)

// Trading session names
const (
	PreOpening = "PRE_OPENING"
	Regular    = "REGULAR"
	PreClosing = "PRE_CLOSING"
	AfterHours = "AFTER_HOURS"
	Weekend    = "WEEKEND"
)

// Session describes one exchange trading day window in its local timezone
type Session struct {
	loc         *time.Location
	openMinute  int // minutes after local midnight
	closeMinute int
	alwaysOpen  bool
}

// NewSession builds a Session from config
func NewSession(cfg config.SessionConfig) (*Session, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		// tzdata missing in slim images: assume WIB (UTC+7)
		loc = time.FixedZone("WIB", 7*60*60)
	}

	open, err := parseClock(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("market open: %w", err)
	}
	closeAt, err := parseClock(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("market close: %w", err)
	}
	if closeAt <= open {
		return nil, fmt.Errorf("market close %s must be after open %s", cfg.Close, cfg.Open)
	}

	return &Session{
		loc:         loc,
		openMinute:  open,
		closeMinute: closeAt,
		alwaysOpen:  cfg.AllowOutsideHours,
	}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Location returns the exchange timezone
func (s *Session) Location() *time.Location {
	return s.loc
}

// IsOpen checks if t falls inside trading hours on a weekday
func (s *Session) IsOpen(t time.Time) bool {
	if s.alwaysOpen {
		return true
	}
	local := t.In(s.loc)
	if isWeekend(local) {
		return false
	}
	m := minuteOfDay(local)
	return m >= s.openMinute && m < s.closeMinute
}

// MinutesToClose returns minutes left until today's close, or -1 when the market is shut
func (s *Session) MinutesToClose(t time.Time) int {
	local := t.In(s.loc)
	if isWeekend(local) {
		return -1
	}
	m := minuteOfDay(local)
	if m < s.openMinute || m >= s.closeMinute {
		return -1
	}
	return s.closeMinute - m
}

// Name returns the session segment for t
func (s *Session) Name(t time.Time) string {
	local := t.In(s.loc)
	if isWeekend(local) {
		return Weekend
	}
	m := minuteOfDay(local)
	switch {
	case m >= s.openMinute-15 && m < s.openMinute:
		return PreOpening
	case m >= s.openMinute && m < s.closeMinute-10:
		return Regular
	case m >= s.closeMinute-10 && m < s.closeMinute:
		return PreClosing
	default:
		return AfterHours
	}
}

// SessionDate returns local midnight of t's trading date
func (s *Session) SessionDate(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}

// CloseTime returns the close instant of t's local date
func (s *Session) CloseTime(t time.Time) time.Time {
	return s.SessionDate(t).Add(time.Duration(s.closeMinute) * time.Minute)
}

// NextOpen returns the next session open at or after t
func (s *Session) NextOpen(t time.Time) time.Time {
	day := s.SessionDate(t)
	for i := 0; i < 8; i++ {
		open := day.Add(time.Duration(s.openMinute) * time.Minute)
		if !isWeekend(day) && !open.Before(t) {
			return open
		}
		day = day.AddDate(0, 0, 1)
	}
	return day.Add(time.Duration(s.openMinute) * time.Minute)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
