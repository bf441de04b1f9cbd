package trading

import (
	"time"

	"breakout-trader/pkg/utils"
)

// MarketSession is the trading window check used by the monitor loop.
type MarketSession struct {
	location *time.Location
	open     utils.ClockTime
	close    utils.ClockTime
	holidays map[string]bool // YYYY-MM-DD
}

// NewMarketSession creates a session for the [open, close) window in loc.
func NewMarketSession(loc *time.Location, open, close utils.ClockTime) *MarketSession {
	if loc == nil {
		loc = utils.IndiaLocation
	}
	return &MarketSession{
		location: loc,
		open:     open,
		close:    close,
		holidays: make(map[string]bool),
	}
}

// DefaultMarketSession returns the NSE cash/F&O session, 09:15 to 15:30 IST.
func DefaultMarketSession() *MarketSession {
	return NewMarketSession(utils.IndiaLocation, utils.ClockTime{Hour: 9, Minute: 15}, utils.ClockTime{Hour: 15, Minute: 30})
}

// AddHoliday adds a market holiday.
func (m *MarketSession) AddHoliday(date time.Time) {
	m.holidays[date.In(m.location).Format("2006-01-02")] = true
}

// AddHolidays parses and adds YYYY-MM-DD dates.
func (m *MarketSession) AddHolidays(dates []string) error {
	for _, d := range dates {
		t, err := time.ParseInLocation("2006-01-02", d, m.location)
		if err != nil {
			return err
		}
		m.AddHoliday(t)
	}
	return nil
}

// IsHoliday checks if a date is a market holiday.
func (m *MarketSession) IsHoliday(date time.Time) bool {
	return m.holidays[date.In(m.location).Format("2006-01-02")]
}

// IsOpen reports whether t falls inside the trading window on a trading day.
// Both the open and the close instant belong to the window.
func (m *MarketSession) IsOpen(t time.Time) bool {
	t = t.In(m.location)
	if utils.IsWeekend(t, m.location) || m.IsHoliday(t) {
		return false
	}
	return !t.Before(m.open.On(t, m.location)) && !t.After(m.close.On(t, m.location))
}

// Location returns the session timezone.
func (m *MarketSession) Location() *time.Location {
	return m.location
}

// NextOpen returns the next session open at or after t.
func (m *MarketSession) NextOpen(t time.Time) time.Time {
	t = t.In(m.location)
	next := m.open.On(t, m.location)
	if t.After(next) {
		next = next.AddDate(0, 0, 1)
	}
	for utils.IsWeekend(next, m.location) || m.IsHoliday(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
