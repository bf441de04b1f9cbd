package broker

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// fakeKite implements kiteAPI with canned responses.
type fakeKite struct {
	mu sync.Mutex

	prices   map[string]float64
	ltpCalls [][]string
	ltpFails int

	orderErr error
	orders   []kiteconnect.OrderParams

	history     []kiteconnect.HistoricalData
	instruments kiteconnect.Instruments

	token string
}

func newFakeKite() *fakeKite {
	return &fakeKite{prices: make(map[string]float64)}
}

func (f *fakeKite) GetLoginURL() string { return "https://kite.example/login" }

func (f *fakeKite) GenerateSession(requestToken string, apiSecret string) (kiteconnect.UserSession, error) {
	if requestToken == "" {
		return kiteconnect.UserSession{}, fmt.Errorf("missing request token")
	}
	var s kiteconnect.UserSession
	s.AccessToken = "access-" + requestToken
	s.UserID = "AB1234"
	return s, nil
}

func (f *fakeKite) SetAccessToken(accessToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = accessToken
}

func (f *fakeKite) GetUserProfile() (kiteconnect.UserProfile, error) {
	return kiteconnect.UserProfile{UserID: "AB1234"}, nil
}

func (f *fakeKite) GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ltpCalls = append(f.ltpCalls, append([]string(nil), instruments...))
	if f.ltpFails > 0 {
		f.ltpFails--
		return nil, fmt.Errorf("gateway timeout")
	}

	// QuoteLTP values are anonymous structs; decode through JSON.
	var parts []string
	for _, name := range instruments {
		if p, ok := f.prices[name]; ok {
			parts = append(parts, fmt.Sprintf("%q:{\"instrument_token\":1,\"last_price\":%v}", name, p))
		}
	}
	var out kiteconnect.QuoteLTP
	if err := json.Unmarshal([]byte("{"+strings.Join(parts, ",")+"}"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeKite) GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error) {
	return f.history, nil
}

func (f *fakeKite) GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error) {
	return f.instruments, nil
}

func (f *fakeKite) PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return kiteconnect.OrderResponse{}, f.orderErr
	}
	f.orders = append(f.orders, orderParams)
	return kiteconnect.OrderResponse{OrderID: fmt.Sprintf("2401%06d", len(f.orders))}, nil
}

func (f *fakeKite) GetOrders() (kiteconnect.Orders, error) {
	return kiteconnect.Orders{}, nil
}

func (f *fakeKite) ltpCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ltpCalls)
}
