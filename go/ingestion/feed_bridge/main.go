// feed_bridge streams tick events onto Kafka so the trading sessions
// can consume them independently of the websocket. One bridge carries
// both the equity and the futures universes; the traders filter their
// own codes off the topic.
package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"

	"breakout-trader/go/pkg/broker"
	"breakout-trader/go/pkg/feed"
	"breakout-trader/go/pkg/shared"
	"breakout-trader/go/pkg/universe"
)

type Config struct {
	Kafka   shared.KafkaConfig
	Metrics shared.MetricsConfig
	Kite    shared.KiteConfig
	Session shared.SessionConfig

	TickTopic     string  `envconfig:"TICKS_TOPIC" default:"ticks"`
	EtfUniverse   string  `envconfig:"ETF_UNIVERSE" default:"NIFTYBEES=NIFTY 50 ETF,BANKBEES=BANK NIFTY ETF"`
	FutIndexes    string  `envconfig:"FUT_INDEXES" default:"NIFTY,BANKNIFTY"`
	SimTicks      bool    `envconfig:"SIM_TICKS" default:"false"`
	SimStepSec    int     `envconfig:"SIM_STEP_SEC" default:"15"`
	SimIntervalMs int     `envconfig:"SIM_INTERVAL_MS" default:"100"`
	SimBasePrice  float64 `envconfig:"SIM_BASE_PRICE" default:"250.0"`
	BatchFlushMs  int     `envconfig:"BATCH_FLUSH_MS" default:"200"`
	MaxBatch      int     `envconfig:"MAX_BATCH" default:"256"`
}

type bridgeMetrics struct {
	published prometheus.Counter
	batchSz   prometheus.Histogram
	dropped   prometheus.Counter
}

func newBridgeMetrics() bridgeMetrics {
	return bridgeMetrics{
		published: shared.NewCounter(prometheus.CounterOpts{Name: "bridge_ticks_total", Help: "Tick events published"}),
		batchSz:   shared.NewHist(prometheus.HistogramOpts{Name: "bridge_batch_size", Help: "Publish batch size", Buckets: []float64{1, 5, 10, 25, 50, 100, 250}}),
		dropped:   shared.NewCounter(prometheus.CounterOpts{Name: "bridge_ticks_dropped_total", Help: "Tick events dropped on publish failure"}),
	}
}

func main() {
	var cfg Config
	envconfig.MustProcess("", &cfg)
	logger := shared.NewLogger("bridge")
	bm := newBridgeMetrics()
	fm := feed.NewMetrics("bridge")
	shared.NewMetricsServer(cfg.Metrics.Port).Start()

	ctx, stopSig := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stopSig()

	src, err := buildSource(ctx, cfg, logger, fm)
	if err != nil {
		logger.Fatalf("build source: %v", err)
	}

	producer, err := shared.NewProducer(cfg.Kafka)
	if err != nil {
		logger.Fatalf("producer init: %v", err)
	}
	defer producer.Close()

	events := make(chan shared.TickEvent, 20000)
	if err := src.Start(ctx, events); err != nil {
		logger.Fatalf("source start: %v", err)
	}

	logger.Printf("bridging ticks -> topic=%s sim=%v", cfg.TickTopic, cfg.SimTicks)
	pump(ctx, cfg, logger, bm, producer, events)
	logger.Printf("bridge shutdown")
}

// pump batches events off the channel and publishes them. After ctx
// cancellation the channel close finishes the drain.
func pump(ctx context.Context, cfg Config, logger shared.Logger, m bridgeMetrics,
	producer shared.Producer, events <-chan shared.TickEvent) {

	maxBatch := cfg.MaxBatch
	if maxBatch < 1 {
		maxBatch = 256
	}
	flushEvery := time.Duration(cfg.BatchFlushMs) * time.Millisecond
	if flushEvery <= 0 {
		flushEvery = 50 * time.Millisecond
	}

	batch := make([]shared.TickEvent, 0, maxBatch)
	timer := time.NewTimer(flushEvery)
	defer timer.Stop()
	done := ctx.Done()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		m.batchSz.Observe(float64(len(batch)))
		records := make([]shared.Record, 0, len(batch))
		for _, ev := range batch {
			raw, err := json.Marshal(ev)
			if err != nil {
				m.dropped.Inc()
				continue
			}
			records = append(records, shared.Record{Key: []byte(ev.Code), Value: raw, Time: time.Now().UTC()})
		}
		if len(records) > 0 {
			writeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := producer.ProduceBatch(writeCtx, cfg.TickTopic, records)
			cancel()
			if err != nil {
				m.dropped.Add(float64(len(records)))
				logger.Printf("batch write failed: %v", err)
			} else {
				m.published.Add(float64(len(records)))
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= maxBatch {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(flushEvery)
			}
		case <-timer.C:
			flush()
			timer.Reset(flushEvery)
		case <-done:
			// Stop selecting on ctx.Done to avoid busy-looping; channel close will finish drain.
			done = nil
		}
	}
}

func buildSource(ctx context.Context, cfg Config, logger shared.Logger, fm feed.Metrics) (feed.Source, error) {
	etf := universe.NewStatic(cfg.EtfUniverse)
	etfUni, err := etf.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.SimTicks {
		window := shared.NewSessionWindow(cfg.Session.StartHHMM, cfg.Session.EndHHMM, cfg.Session.FutureOffsetMin)
		return feed.NewSimSource(
			sortedCodes(etfUni), window, cfg.SimBasePrice, cfg.SimStepSec,
			time.Duration(cfg.SimIntervalMs)*time.Millisecond,
		), nil
	}

	gw := broker.NewKiteGateway(cfg.Kite, cfg.Session, logger)
	if err := gw.LoadInstruments(ctx); err != nil {
		return nil, err
	}
	futUni, err := universe.NewFrontMonth(gw, splitList(cfg.FutIndexes)).Resolve(ctx)
	if err != nil {
		return nil, err
	}

	tokenToCode := make(map[uint32]string, len(etfUni)+len(futUni))
	for _, uni := range []map[string]string{etfUni, futUni} {
		for code := range uni {
			tok, err := gw.Token(code)
			if err != nil {
				return nil, err
			}
			tokenToCode[tok] = code
		}
	}
	return feed.NewKiteSource(cfg.Kite, tokenToCode, logger, fm), nil
}

func sortedCodes(uni map[string]string) []string {
	out := make([]string, 0, len(uni))
	for code := range uni {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
