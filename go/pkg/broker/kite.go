package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"breakout-trader/go/pkg/chart"
	"breakout-trader/go/pkg/shared"
	"breakout-trader/go/pkg/universe"
)

// KiteGateway implements Gateway against the Zerodha Kite Connect REST
// API. One instance is shared by the equity and future dispatchers; the
// underlying HTTP client is safe for concurrent calls.
type KiteGateway struct {
	kc      *kiteconnect.Client
	cfg     shared.KiteConfig
	session shared.SessionConfig
	log     shared.Logger

	mu          sync.Mutex
	instruments map[string]kiteconnect.Instrument // tradingsymbol -> dump row
}

func NewKiteGateway(cfg shared.KiteConfig, session shared.SessionConfig, log shared.Logger) *KiteGateway {
	kc := kiteconnect.New(cfg.APIKey)
	kc.SetAccessToken(cfg.AccessToken)
	return &KiteGateway{
		kc:          kc,
		cfg:         cfg,
		session:     session,
		log:         log,
		instruments: make(map[string]kiteconnect.Instrument),
	}
}

// LoadInstruments caches the venue instrument dump for token lookups
// and contract listings. Call once at startup.
func (g *KiteGateway) LoadInstruments(ctx context.Context) error {
	dump, err := g.kc.GetInstruments()
	if err != nil {
		return fmt.Errorf("broker: instrument dump: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, in := range dump {
		if in.Exchange != g.cfg.Exchange && in.Exchange != g.cfg.FutExchange {
			continue
		}
		g.instruments[in.Tradingsymbol] = in
	}
	g.log.Printf("loaded %d instruments for %s/%s", len(g.instruments), g.cfg.Exchange, g.cfg.FutExchange)
	return nil
}

func (g *KiteGateway) lookup(code string) (kiteconnect.Instrument, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.instruments[code]
	if !ok {
		return kiteconnect.Instrument{}, fmt.Errorf("%w: unknown instrument %s", ErrGatewayRejected, code)
	}
	return in, nil
}

// Token returns the streaming token for a code; the live tick source
// subscribes by token, not symbol.
func (g *KiteGateway) Token(code string) (uint32, error) {
	in, err := g.lookup(code)
	if err != nil {
		return 0, err
	}
	return uint32(in.InstrumentToken), nil
}

// ListContracts exposes the futures rows of the dump for front-month
// resolution.
func (g *KiteGateway) ListContracts(context.Context) ([]universe.Contract, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.instruments) == 0 {
		return nil, fmt.Errorf("%w: instrument dump not loaded", ErrGatewayRejected)
	}
	out := make([]universe.Contract, 0, 64)
	for _, in := range g.instruments {
		if in.Exchange != g.cfg.FutExchange || in.InstrumentType != "FUT" {
			continue
		}
		out = append(out, universe.Contract{
			Code:   in.Tradingsymbol,
			Name:   in.Name,
			Expiry: in.Expiry.Time,
		})
	}
	return out, nil
}

// BootstrapBars fetches today's minute candles for code, oldest first.
// Candle timestamps are bucket-start; the chart keys buckets right-closed,
// so each timestamp shifts forward one minute.
func (g *KiteGateway) BootstrapBars(ctx context.Context, code string, count int) ([]chart.Bar, error) {
	in, err := g.lookup(code)
	if err != nil {
		return nil, err
	}
	to := time.Now()
	from := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
	candles, err := g.kc.GetHistoricalData(in.InstrumentToken, "minute", from, to, false, false)
	if err != nil {
		return nil, fmt.Errorf("broker: historical data for %s: %w", code, err)
	}
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	if len(candles) < count {
		g.log.Printf("bootstrap for %s returned %d/%d bars, seeding short", code, len(candles), count)
	}
	bars := make([]chart.Bar, 0, len(candles))
	for _, cd := range candles {
		t := cd.Date.Time.Add(time.Minute)
		bars = append(bars, chart.Bar{
			Date:  t.Format("20060102"),
			Time:  t.Hour()*100 + t.Minute(),
			Open:  cd.Open,
			High:  cd.High,
			Low:   cd.Low,
			Close: cd.Close,
		})
	}
	return bars, nil
}

// CurrentPosition scans net positions for any instrument in the universe.
func (g *KiteGateway) CurrentPosition(ctx context.Context, uni map[string]string) (string, error) {
	positions, err := g.kc.GetPositions()
	if err != nil {
		return "", fmt.Errorf("broker: positions: %w", err)
	}
	for _, p := range positions.Net {
		if p.Quantity == 0 {
			continue
		}
		if _, ok := uni[p.Tradingsymbol]; ok {
			return p.Tradingsymbol, nil
		}
	}
	return "", nil
}

// TradableAmount sizes an order: buys from available cash at the quoted
// (or limit) price, sells from the held net quantity.
func (g *KiteGateway) TradableAmount(ctx context.Context, code string, side Side, limitPrice float64) (int, error) {
	switch side {
	case SideSell:
		positions, err := g.kc.GetPositions()
		if err != nil {
			return 0, fmt.Errorf("broker: positions: %w", err)
		}
		for _, p := range positions.Net {
			if p.Tradingsymbol == code && p.Quantity > 0 {
				return p.Quantity, nil
			}
		}
		return 0, nil
	case SideBuy:
		in, err := g.lookup(code)
		if err != nil {
			return 0, err
		}
		price := limitPrice
		if price <= 0 {
			quotes, err := g.kc.GetLTP(in.Exchange + ":" + code)
			if err != nil {
				return 0, fmt.Errorf("broker: ltp for %s: %w", code, err)
			}
			price = quotes[in.Exchange+":"+code].LastPrice
		}
		if price <= 0 {
			return 0, fmt.Errorf("%w: no quote for %s", ErrGatewayRejected, code)
		}
		margins, err := g.kc.GetUserMargins()
		if err != nil {
			return 0, fmt.Errorf("broker: margins: %w", err)
		}
		qty := int(margins.Equity.Net / price)
		if lot := int(in.LotSize); lot > 1 {
			qty = (qty / lot) * lot
		}
		return qty, nil
	}
	return 0, fmt.Errorf("%w: bad side %v", ErrGatewayRejected, side)
}

// PlaceOrder submits a day-validity market (or limit) order.
func (g *KiteGateway) PlaceOrder(ctx context.Context, code string, side Side, qty int, limitPrice float64) (OrderAck, error) {
	if qty <= 0 {
		return OrderAck{}, fmt.Errorf("%w: non-positive quantity %d for %s", ErrGatewayRejected, qty, code)
	}
	in, err := g.lookup(code)
	if err != nil {
		return OrderAck{}, err
	}
	params := kiteconnect.OrderParams{
		Exchange:        in.Exchange,
		Tradingsymbol:   code,
		Product:         g.cfg.Product,
		Quantity:        qty,
		Validity:        kiteconnect.ValidityDay,
		OrderType:       kiteconnect.OrderTypeMarket,
		TransactionType: kiteconnect.TransactionTypeBuy,
	}
	if side == SideSell {
		params.TransactionType = kiteconnect.TransactionTypeSell
	}
	if limitPrice > 0 {
		params.OrderType = kiteconnect.OrderTypeLimit
		params.Price = limitPrice
	}
	resp, err := g.kc.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return OrderAck{}, fmt.Errorf("%w: %s %s x%d: %v", ErrGatewayRejected, side, code, qty, err)
	}
	return OrderAck{OrderID: resp.OrderID}, nil
}

// SessionWindow derives class bounds from the configured equity session.
func (g *KiteGateway) SessionWindow(ctx context.Context, class InstrumentClass) (shared.SessionWindow, error) {
	offset := 0
	if class == ClassFuture {
		offset = g.session.FutureOffsetMin
	}
	return shared.NewSessionWindow(g.session.StartHHMM, g.session.EndHHMM, offset), nil
}
