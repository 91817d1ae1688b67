package feed

import (
	"context"
	"errors"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"breakout-trader/go/pkg/broker"
	"breakout-trader/go/pkg/shared"
)

// KiteSource streams live traded prices and order updates over the
// Zerodha websocket and maps them to tick events. Events are emitted in
// websocket arrival order; a full out channel drops the tick rather
// than stalling the socket.
type KiteSource struct {
	cfg         shared.KiteConfig
	tokens      []uint32
	tokenToCode map[uint32]string
	codes       map[string]bool
	log         shared.Logger
	m           Metrics
}

func NewKiteSource(cfg shared.KiteConfig, tokenToCode map[uint32]string, log shared.Logger, m Metrics) *KiteSource {
	tokens := make([]uint32, 0, len(tokenToCode))
	codes := make(map[string]bool, len(tokenToCode))
	for tok, code := range tokenToCode {
		tokens = append(tokens, tok)
		codes[code] = true
	}
	return &KiteSource{
		cfg:         cfg,
		tokens:      tokens,
		tokenToCode: tokenToCode,
		codes:       codes,
		log:         log,
		m:           m,
	}
}

func (k *KiteSource) Start(ctx context.Context, out chan<- shared.TickEvent) error {
	if len(k.tokens) == 0 {
		return errors.New("feed: no tokens to subscribe")
	}
	t := kiteticker.New(k.cfg.APIKey, k.cfg.AccessToken)

	t.OnError(func(err error) {
		k.log.Printf("[ws] error: %v", err)
		k.m.events.WithLabelValues("error").Inc()
	})
	t.OnClose(func(code int, reason string) {
		k.log.Printf("[ws] closed %d %s", code, reason)
		k.m.events.WithLabelValues("close").Inc()
	})
	t.OnReconnect(func(attempt int, delay time.Duration) {
		k.log.Printf("[ws] reconnecting attempt=%d delay=%s", attempt, delay)
		k.m.events.WithLabelValues("reconnect").Inc()
	})
	t.OnConnect(func() {
		k.log.Printf("[ws] connected; subscribing %d tokens", len(k.tokens))
		k.m.events.WithLabelValues("connect").Inc()
		for _, chunk := range chunkTokens(k.tokens, 200) {
			if err := t.Subscribe(chunk); err != nil {
				k.log.Printf("[ws] subscribe chunk failed: %v", err)
			}
			// Quote mode carries the exchange timestamp; LTP mode does not.
			if err := t.SetMode(kiteticker.ModeQuote, chunk); err != nil {
				k.log.Printf("[ws] set mode failed: %v", err)
			}
		}
	})
	t.OnNoReconnect(func(attempt int) {
		k.log.Printf("[ws] no more reconnects after attempt %d", attempt)
		k.m.events.WithLabelValues("noreconnect").Inc()
	})
	t.OnTick(func(tk kitemodels.Tick) {
		code := k.tokenToCode[tk.InstrumentToken]
		if code == "" {
			return
		}
		ts := tk.Timestamp.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		k.emit(out, shared.TickEvent{
			Kind:  shared.EventCurrent,
			Code:  code,
			Time:  hhmmss(ts),
			Price: tk.LastPrice,
			Phase: shared.PhaseRegular,
		})
	})
	t.OnOrderUpdate(func(o kiteconnect.Order) {
		if !k.codes[o.TradingSymbol] {
			return
		}
		class := broker.ClassEquity
		if o.Exchange == k.cfg.FutExchange {
			class = broker.ClassFuture
		}
		status := broker.StatusCode(class, broker.StatusFromText(o.Status))
		if status == "" {
			return
		}
		side := "2"
		if o.TransactionType == "SELL" {
			side = "1"
		}
		k.emit(out, shared.TickEvent{
			Kind:    shared.EventConfirm,
			Code:    o.TradingSymbol,
			Time:    hhmmss(time.Now()),
			Price:   o.AveragePrice,
			OrderID: o.OrderID,
			Side:    side,
			Status:  status,
			Qty:     int64(o.FilledQuantity),
		})
	})

	go func() {
		<-ctx.Done()
		t.Stop()
		close(out)
	}()
	go t.ServeWithContext(ctx)
	return nil
}

func (k *KiteSource) emit(out chan<- shared.TickEvent, ev shared.TickEvent) {
	select {
	case out <- ev:
		k.m.decoded.Inc()
	default:
		k.m.dropped.Inc()
	}
}

func hhmmss(t time.Time) int {
	return t.Hour()*10000 + t.Minute()*100 + t.Second()
}

func chunkTokens(tokens []uint32, size int) [][]uint32 {
	if size <= 0 {
		size = 200
	}
	out := [][]uint32{}
	for i := 0; i < len(tokens); i += size {
		j := i + size
		if j > len(tokens) {
			j = len(tokens)
		}
		out = append(out, tokens[i:j])
	}
	return out
}
