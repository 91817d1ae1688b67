// future trades front-month index futures. The futures session extends
// the equity window on both sides, so the chart, the signal guards, and
// the halt condition all run on the shifted bounds.
package main

import (
	"context"
	"errors"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"

	"breakout-trader/go/pkg/broker"
	"breakout-trader/go/pkg/chart"
	"breakout-trader/go/pkg/feed"
	"breakout-trader/go/pkg/journal"
	"breakout-trader/go/pkg/session"
	"breakout-trader/go/pkg/shared"
	"breakout-trader/go/pkg/strategy"
	"breakout-trader/go/pkg/universe"
)

type Config struct {
	Kafka    shared.KafkaConfig
	Postgres shared.PostgresConfig
	Metrics  shared.MetricsConfig
	Kite     shared.KiteConfig
	Session  shared.SessionConfig

	FeedMode      string  `envconfig:"FEED_MODE" default:"kafka"` // kafka, live, or sim
	TickTopic     string  `envconfig:"TICKS_TOPIC" default:"ticks"`
	BarTopic      string  `envconfig:"BARS_TOPIC" default:"bars_1m"`
	EventTopic    string  `envconfig:"EVENTS_TOPIC" default:"trade_events"`
	Indexes       string  `envconfig:"FUT_INDEXES" default:"NIFTY,BANKNIFTY"`
	BootstrapBars int     `envconfig:"BOOTSTRAP_BARS" default:"411"`
	JournalPG     bool    `envconfig:"JOURNAL_PG" default:"true"`
	SimStepSec    int     `envconfig:"SIM_STEP_SEC" default:"15"`
	SimBasePrice  float64 `envconfig:"SIM_BASE_PRICE" default:"22000.0"`
}

func main() {
	var cfg Config
	envconfig.MustProcess("", &cfg)
	logger := shared.NewLogger("future")
	m := session.NewMetrics("future")
	fm := feed.NewMetrics("future")
	shared.NewMetricsServer(cfg.Metrics.Port).Start()

	ctx, stopSig := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stopSig()

	gw := broker.NewKiteGateway(cfg.Kite, cfg.Session, logger)
	if err := gw.LoadInstruments(ctx); err != nil {
		logger.Fatalf("load instruments: %v", err)
	}

	// Contract resolution needs the venue dump even in sim mode; the
	// front-month symbols change with every expiry.
	uni, err := universe.NewFrontMonth(gw, splitList(cfg.Indexes)).Resolve(ctx)
	if err != nil {
		logger.Fatalf("resolve front months: %v", err)
	}
	codes := sortedCodes(uni)
	logger.Printf("front months: %v", codes)

	window, err := gw.SessionWindow(ctx, broker.ClassFuture)
	if err != nil {
		logger.Fatalf("session window: %v", err)
	}

	ch := chart.New(codes, window)
	for _, code := range codes {
		bars, err := gw.BootstrapBars(ctx, code, cfg.BootstrapBars)
		if err != nil {
			logger.Printf("bootstrap %s: %v", code, err)
			continue
		}
		if err := ch.Seed(code, bars); err != nil {
			logger.Fatalf("seed %s: %v", code, err)
		}
	}
	held, err := gw.CurrentPosition(ctx, uni)
	if err != nil {
		logger.Printf("current position: %v", err)
	}
	ch.InitPosition(held)
	if held != "" {
		logger.Printf("resuming with open position %s", held)
	}

	rec, cleanup := buildRecorder(ctx, cfg, "future", codes, logger)
	defer cleanup()

	disp, err := session.New(
		session.Config{Date: time.Now().Format("20060102"), Class: broker.ClassFuture, Window: window},
		ch, strategy.New(window), gw, held, rec, logger, m,
	)
	if err != nil {
		logger.Fatalf("dispatcher: %v", err)
	}

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	disp.Halt = stopFeed

	src, err := buildSource(cfg, codes, window, logger, fm)
	if err != nil {
		logger.Fatalf("build source: %v", err)
	}
	events := make(chan shared.TickEvent, 4096)
	if err := src.Start(feedCtx, events); err != nil {
		logger.Fatalf("source start: %v", err)
	}

	logger.Printf("trading %s feed=%s", window, cfg.FeedMode)
	if err := disp.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("run: %v", err)
	}
	logger.Printf("session over (halted=%v position=%q)", disp.Halted(), disp.Position())
}

func buildSource(cfg Config, codes []string, window shared.SessionWindow,
	logger shared.Logger, fm feed.Metrics) (feed.Source, error) {

	switch cfg.FeedMode {
	case "kafka":
		consumer, err := shared.NewConsumer(cfg.Kafka, cfg.TickTopic)
		if err != nil {
			return nil, err
		}
		return feed.NewKafkaSource(consumer, codes, logger, fm), nil
	case "sim":
		return feed.NewSimSource(codes, window, cfg.SimBasePrice, cfg.SimStepSec, 10*time.Millisecond), nil
	case "live":
		return nil, errors.New("live feed belongs to the bridge; run feed_bridge and use FEED_MODE=kafka")
	}
	return nil, errors.New("unknown FEED_MODE " + cfg.FeedMode)
}

func buildRecorder(ctx context.Context, cfg Config, group string, codes []string, logger shared.Logger) (session.Recorder, func()) {
	var sinks journal.Tee
	var closers []func()

	if producer, err := shared.NewProducer(cfg.Kafka); err != nil {
		logger.Printf("journal producer: %v", err)
	} else {
		sinks = append(sinks, journal.NewKafka(producer, group, codes, cfg.BarTopic, cfg.EventTopic, logger))
		closers = append(closers, producer.Close)
	}
	if cfg.JournalPG {
		if db, err := shared.NewPgxPool(ctx, cfg.Postgres); err != nil {
			logger.Printf("journal pg: %v", err)
		} else {
			sinks = append(sinks, journal.NewPG(db, group, codes, logger))
			closers = append(closers, db.Close)
		}
	}
	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
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
