package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"breakout-trader/internal/errors"
	"breakout-trader/internal/models"
)

// InstrumentLoader downloads the instrument master for one exchange.
type InstrumentLoader func(ctx context.Context, exchange models.Exchange) (kiteconnect.Instruments, error)

// InstrumentMaster caches the NFO option chain grouped by underlying. The
// master is downloaded once per process and refreshed only on demand.
type InstrumentMaster struct {
	load     InstrumentLoader
	options  map[string][]models.OptionContract
	loadedAt time.Time
	mu       sync.RWMutex
}

// NewInstrumentMaster creates an instrument master backed by a Kite client.
func NewInstrumentMaster(z *Zerodha) *InstrumentMaster {
	return NewInstrumentMasterWithLoader(z.instruments)
}

// NewInstrumentMasterWithLoader creates an instrument master with a custom loader.
func NewInstrumentMasterWithLoader(load InstrumentLoader) *InstrumentMaster {
	return &InstrumentMaster{load: load}
}

// Load downloads the NFO master and indexes its stock and index options.
func (m *InstrumentMaster) Load(ctx context.Context) error {
	list, err := m.load(ctx, models.NFO)
	if err != nil {
		return fmt.Errorf("failed to load instruments for %s: %w", models.NFO, err)
	}

	options := groupOptions(list)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.options = options
	m.loadedAt = time.Now()
	return nil
}

func (m *InstrumentMaster) ensureLoaded(ctx context.Context) error {
	m.mu.RLock()
	loaded := m.options != nil
	m.mu.RUnlock()
	if loaded {
		return nil
	}
	return m.Load(ctx)
}

// OptionContracts returns the CE and PE contracts of underlying that expire on
// the same calendar day as expiry, ordered by strike.
func (m *InstrumentMaster) OptionContracts(ctx context.Context, underlying string, expiry time.Time) ([]models.OptionContract, error) {
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.OptionContract
	for _, c := range m.options[underlying] {
		if sameDay(c.Expiry, expiry) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(errors.ErrInstrumentNotFound, "%s options expiring %s", underlying, expiry.Format("2006-01-02"))
	}
	return out, nil
}

// LotSize returns the F&O lot size of underlying.
func (m *InstrumentMaster) LotSize(ctx context.Context, underlying string) (int, error) {
	if err := m.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.options[underlying] {
		if c.LotSize > 0 {
			return c.LotSize, nil
		}
	}
	return 0, errors.Wrapf(errors.ErrInstrumentNotFound, "%s not in F&O", underlying)
}

// Expiries returns the distinct option expiries listed for underlying, earliest first.
func (m *InstrumentMaster) Expiries(ctx context.Context, underlying string) ([]time.Time, error) {
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []time.Time
	for _, c := range m.options[underlying] {
		day := c.Expiry.Format("2006-01-02")
		if !seen[day] {
			seen[day] = true
			out = append(out, c.Expiry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// LoadedAt returns when the master was last downloaded.
func (m *InstrumentMaster) LoadedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadedAt
}

// groupOptions keeps CE/PE rows and indexes them by underlying name.
func groupOptions(list kiteconnect.Instruments) map[string][]models.OptionContract {
	options := make(map[string][]models.OptionContract)
	for _, inst := range list {
		var kind models.OptionKind
		switch inst.InstrumentType {
		case "CE":
			kind = models.Call
		case "PE":
			kind = models.Put
		default:
			continue
		}
		options[inst.Name] = append(options[inst.Name], models.OptionContract{
			Symbol:     inst.Tradingsymbol,
			Token:      uint32(inst.InstrumentToken),
			Underlying: inst.Name,
			Strike:     inst.StrikePrice,
			Expiry:     inst.Expiry.Time,
			Kind:       kind,
			LotSize:    int(inst.LotSize),
		})
	}
	for name := range options {
		contracts := options[name]
		sort.SliceStable(contracts, func(i, j int) bool { return contracts[i].Strike < contracts[j].Strike })
	}
	return options
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
