package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakout-trader/internal/models"
	"breakout-trader/internal/trading"
)

type recordingChannel struct {
	mu   sync.Mutex
	name string
	err  error
	got  []Notification
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Send(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingChannel) types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.got))
	for i, n := range r.got {
		out[i] = n.Type
	}
	return out
}

func newTestNotifier(level Level, channels ...Channel) *Notifier {
	return New(Config{Level: level, Channels: channels, Limit: 1000, Burst: 100, Logger: zerolog.Nop()})
}

func openTrade(key models.InstrumentKey, id string) *models.Trade {
	return &models.Trade{
		ID:            id,
		Key:           key,
		TradingSymbol: string(key),
		Underlying:    "SBIN",
		Kind:          models.Call,
		LotSize:       750,
		Status:        models.TradeOpen,
		EntryPrice:    14.2,
		StopLoss:      10.87,
		EntryTime:     time.Date(2025, 1, 15, 9, 45, 0, 0, time.UTC),
	}
}

func closed(t *models.Trade) *models.Trade {
	c := *t
	c.Status = models.TradeClosed
	c.ExitPrice = 19.1
	c.ExitReason = models.ExitTrailingStop
	c.RealizedPnL = 3675
	c.ExitTime = t.EntryTime.Add(20 * time.Minute)
	return &c
}

func TestLevel_Allows(t *testing.T) {
	assert.True(t, LevelAll.Allows(TypeSession))
	assert.True(t, LevelTrades.Allows(TypeExit))
	assert.False(t, LevelTrades.Allows(TypeSession))
	assert.True(t, LevelSummary.Allows(TypeSession))
	assert.False(t, LevelSummary.Allows(TypeEntry))
}

func TestNotifier_FailingChannelDoesNotBlockOthers(t *testing.T) {
	bad := &recordingChannel{name: "bad", err: fmt.Errorf("502")}
	good := &recordingChannel{name: "good"}
	n := newTestNotifier(LevelAll, bad, good)

	err := n.Send(context.Background(), EntryNotification(openTrade("SBIN25JAN820CE", "t1")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Len(t, good.got, 1)
	assert.True(t, n.Enabled())
	assert.False(t, newTestNotifier(LevelAll).Enabled())
}

func TestNotifier_LevelFilters(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	n := newTestNotifier(LevelSummary, ch)

	require.NoError(t, n.Send(context.Background(), EntryNotification(openTrade("SBIN25JAN820CE", "t1"))))
	require.NoError(t, n.Send(context.Background(), SessionNotification(trading.Summary{State: trading.StateStoppedAutoExit}, time.Now())))
	assert.Equal(t, []Type{TypeSession}, ch.types())
}

func TestNotifier_RunEmitsEntryThenExitOnce(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	n := newTestNotifier(LevelAll, ch)

	call := openTrade("SBIN25JAN820CE", "t1")
	put := openTrade("SBIN25JAN820PE", "t2")
	snaps := make(chan models.Snapshot, 4)
	snaps <- models.Snapshot{Tick: 1, Trades: map[models.InstrumentKey]*models.Trade{call.Key: call}}
	snaps <- models.Snapshot{Tick: 2, Trades: map[models.InstrumentKey]*models.Trade{call.Key: call, put.Key: put}}
	snaps <- models.Snapshot{Tick: 3, Trades: map[models.InstrumentKey]*models.Trade{call.Key: closed(call), put.Key: put}}
	snaps <- models.Snapshot{Tick: 4, Trades: map[models.InstrumentKey]*models.Trade{call.Key: closed(call), put.Key: put}}
	close(snaps)

	n.Run(context.Background(), snaps)
	assert.Equal(t, []Type{TypeEntry, TypeEntry, TypeExit}, ch.types())
	assert.Contains(t, ch.got[2].Title, "Trailing Stop")
	assert.Contains(t, ch.got[2].Message, "3,675")
	assert.Contains(t, ch.got[2].Message, "after 20m0s")
}

func TestNotifier_RunTradeFirstSeenClosed(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	n := newTestNotifier(LevelAll, ch)

	call := openTrade("SBIN25JAN820CE", "t1")
	snaps := make(chan models.Snapshot, 1)
	snaps <- models.Snapshot{Trades: map[models.InstrumentKey]*models.Trade{call.Key: closed(call)}}
	close(snaps)

	n.Run(context.Background(), snaps)
	assert.Equal(t, []Type{TypeEntry, TypeExit}, ch.types())
}

func TestWebhookChannel(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookChannel(srv.URL).Send(context.Background(), EntryNotification(openTrade("SBIN25JAN820CE", "t1")))
	require.NoError(t, err)
	assert.Equal(t, TypeEntry, got.Type)
	assert.Equal(t, "BUY SBIN25JAN820CE", got.Title)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	err = NewWebhookChannel(failing.URL).Send(context.Background(), Notification{Type: TypeEntry})
	assert.ErrorContains(t, err, "status 500")
}

func TestTelegramChannel(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
	}))
	defer srv.Close()

	tg := NewTelegramChannel("123:abc", "-1001")
	tg.apiBase = srv.URL
	require.NoError(t, tg.Send(context.Background(), Notification{Title: "P&L <today>", Message: "ok"}))

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "-1001", body["chat_id"])
	assert.Equal(t, "<b>P&amp;L &lt;today&gt;</b>\n\nok", body["text"])
}

func TestTelegramChannel_ErrorHidesToken(t *testing.T) {
	tg := NewTelegramChannel("999:supersecret", "1")
	tg.apiBase = "http://127.0.0.1:1"

	err := tg.Send(context.Background(), Notification{Title: "x"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "supersecret")
}

func TestSessionNotification(t *testing.T) {
	n := SessionNotification(trading.Summary{
		Mode:          models.ModePaper,
		State:         trading.StateStoppedDailyLossLimit,
		TotalTrades:   3,
		ClosedTrades:  2,
		OpenTrades:    1,
		WinningTrades: 0,
		RealizedPnL:   -10500,
	}, time.Now())

	assert.Equal(t, TypeSession, n.Type)
	assert.Contains(t, n.Title, "paper")
	assert.True(t, strings.HasPrefix(n.Message, "STOPPED_DAILY_LOSS_LIMIT"))
	assert.Contains(t, n.Message, "1 position(s) still open")
}

// Property: However many times a trade reappears in snapshots, it produces
// exactly one entry and, once closed, exactly one exit.
func TestProperty_OneEntryOneExitPerTrade(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("events are deduplicated", prop.ForAll(
		func(openTicks, closedTicks int) bool {
			trade := openTrade("SBIN25JAN820CE", "t1")
			seen := make(map[string]models.TradeStatus)
			var events []Notification
			for i := 0; i < openTicks; i++ {
				events = append(events, tradeEvents(seen, models.Snapshot{Trades: map[models.InstrumentKey]*models.Trade{trade.Key: trade}})...)
			}
			for i := 0; i < closedTicks; i++ {
				events = append(events, tradeEvents(seen, models.Snapshot{Trades: map[models.InstrumentKey]*models.Trade{trade.Key: closed(trade)}})...)
			}

			entries, exits := 0, 0
			for _, e := range events {
				switch e.Type {
				case TypeEntry:
					entries++
				case TypeExit:
					exits++
				}
			}
			wantExits := 0
			if closedTicks > 0 {
				wantExits = 1
			}
			return entries == 1 && exits == wantExits
		},
		gen.IntRange(1, 10),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
