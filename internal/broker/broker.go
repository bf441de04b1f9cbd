// Package broker provides Kite Connect adapters for market data, order
// placement and the instrument master, plus a paper execution gateway.
package broker

import (
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// kiteAPI is the subset of the Kite Connect client used by this package.
type kiteAPI interface {
	GetLoginURL() string
	GenerateSession(requestToken string, apiSecret string) (kiteconnect.UserSession, error)
	SetAccessToken(accessToken string)
	GetUserProfile() (kiteconnect.UserProfile, error)

	GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)

	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	GetOrders() (kiteconnect.Orders, error)
}

var _ kiteAPI = (*kiteconnect.Client)(nil)

// Kite Connect limits: at most 1000 instruments per LTP call.
const maxLTPBatch = 1000

const validityDay = "DAY"
