package trading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakout-trader/pkg/utils"
)

func TestMarketSession_IsOpen(t *testing.T) {
	s := DefaultMarketSession()
	require.NoError(t, s.AddHolidays([]string{"2025-01-16"}))
	at := func(day, h, m int) time.Time {
		return time.Date(2025, 1, day, h, m, 0, 0, utils.IndiaLocation)
	}
	atSec := func(day, h, m, s int) time.Time {
		return time.Date(2025, 1, day, h, m, s, 0, utils.IndiaLocation)
	}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"before open", atSec(15, 9, 14, 59), false},
		{"at open", at(15, 9, 15), true},
		{"midday", at(15, 12, 0), true},
		{"last minute", at(15, 15, 29), true},
		{"at close", at(15, 15, 30), true},
		{"after close", atSec(15, 15, 30, 1), false},
		{"holiday", at(16, 11, 0), false},
		{"saturday", at(18, 11, 0), false},
		{"sunday", at(19, 11, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsOpen(tt.t))
		})
	}
}

func TestMarketSession_NextOpen(t *testing.T) {
	s := DefaultMarketSession()
	require.NoError(t, s.AddHolidays([]string{"2025-01-20"}))

	// Friday evening rolls past the weekend and the Monday holiday.
	friday := time.Date(2025, 1, 17, 16, 0, 0, 0, utils.IndiaLocation)
	assert.Equal(t, time.Date(2025, 1, 21, 9, 15, 0, 0, utils.IndiaLocation), s.NextOpen(friday))
}

func TestMarketSession_BadHoliday(t *testing.T) {
	assert.Error(t, DefaultMarketSession().AddHolidays([]string{"16/01/2025"}))
}
