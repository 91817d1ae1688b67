// Package journal persists and publishes session facts: closed minute
// bars, trade decisions, and execution fills. Recorders are called from
// the dispatcher goroutine and must never block the tick stream on a
// slow sink, so failures are logged and dropped.
package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"breakout-trader/go/pkg/broker"
	"breakout-trader/go/pkg/chart"
	"breakout-trader/go/pkg/shared"
	"breakout-trader/go/pkg/session"
)

const writeTimeout = 3 * time.Second

const upsertBarSQL = `
INSERT INTO bars_1m(grp, code, d, bucket, o, h, l, c)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT(grp, code, d, bucket) DO UPDATE
SET o = EXCLUDED.o,
    h = GREATEST(bars_1m.h, EXCLUDED.h),
    l = LEAST(bars_1m.l, EXCLUDED.l),
    c = EXCLUDED.c;
`

const insertDecisionSQL = `
INSERT INTO decisions(grp, code, side, price, tick_time, at)
VALUES($1, $2, $3, $4, $5, now());
`

const insertFillSQL = `
INSERT INTO fills(grp, order_id, side, status, price, qty, balance, at)
VALUES($1, $2, $3, $4, $5, $6, $7, now());
`

// PG writes session facts to Postgres. codes must match the chart's
// column order so row cells map to instruments.
type PG struct {
	db    *shared.PgxDB
	group string
	codes []string
	log   shared.Logger
}

func NewPG(db *shared.PgxDB, group string, codes []string, log shared.Logger) *PG {
	return &PG{db: db, group: group, codes: codes, log: log}
}

// BarClosed upserts one bar per populated cell in a single batch.
func (p *PG) BarClosed(row chart.Row) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	conn, err := p.db.Acquire(ctx)
	if err != nil {
		p.log.Printf("[journal] acquire: %v", err)
		return
	}
	defer conn.Release()

	batch := &pgx.Batch{}
	queued := 0
	for i, cell := range row.Cells {
		if !cell.Set || i >= len(p.codes) {
			continue
		}
		batch.Queue(upsertBarSQL, p.group, p.codes[i], row.Date, row.Bucket,
			cell.Open, cell.High, cell.Low, cell.Close)
		queued++
	}
	if queued == 0 {
		return
	}
	br := conn.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			p.log.Printf("[journal] bar upsert %s/%04d: %v", row.Date, row.Bucket, err)
			return
		}
	}
}

func (p *PG) Decision(code string, side broker.Side, price float64, tickTime int) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.db.Exec(ctx, insertDecisionSQL, p.group, code, side.String(), price, tickTime); err != nil {
		p.log.Printf("[journal] decision insert: %v", err)
	}
}

func (p *PG) Fill(ev shared.TickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.db.Exec(ctx, insertFillSQL, p.group, ev.OrderID,
		ev.Side, ev.Status, ev.Price, ev.Qty, ev.Balance); err != nil {
		p.log.Printf("[journal] fill insert: %v", err)
	}
}

type barMsg struct {
	Group  string  `json:"grp"`
	Code   string  `json:"code"`
	Date   string  `json:"d"`
	Bucket int     `json:"bucket"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
}

type decisionMsg struct {
	Group    string  `json:"grp"`
	Code     string  `json:"code"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	TickTime int     `json:"tick_time"`
}

// Kafka publishes session facts for downstream consumers.
type Kafka struct {
	producer   shared.Producer
	group      string
	codes      []string
	barTopic   string
	eventTopic string
	log        shared.Logger
}

func NewKafka(producer shared.Producer, group string, codes []string, barTopic, eventTopic string, log shared.Logger) *Kafka {
	return &Kafka{
		producer:   producer,
		group:      group,
		codes:      codes,
		barTopic:   barTopic,
		eventTopic: eventTopic,
		log:        log,
	}
}

func (k *Kafka) BarClosed(row chart.Row) {
	if k.barTopic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	for i, cell := range row.Cells {
		if !cell.Set || i >= len(k.codes) {
			continue
		}
		code := k.codes[i]
		msg := barMsg{
			Group: k.group, Code: code, Date: row.Date, Bucket: row.Bucket,
			Open: cell.Open, High: cell.High, Low: cell.Low, Close: cell.Close,
		}
		if err := k.producer.ProduceJSON(ctx, k.barTopic, []byte(code), msg); err != nil {
			k.log.Printf("[journal] bar publish %s: %v", code, err)
		}
	}
}

func (k *Kafka) Decision(code string, side broker.Side, price float64, tickTime int) {
	if k.eventTopic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	msg := decisionMsg{Group: k.group, Code: code, Side: side.String(), Price: price, TickTime: tickTime}
	if err := k.producer.ProduceJSON(ctx, k.eventTopic, []byte(code), msg); err != nil {
		k.log.Printf("[journal] decision publish %s: %v", code, err)
	}
}

func (k *Kafka) Fill(ev shared.TickEvent) {
	if k.eventTopic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := k.producer.ProduceJSON(ctx, k.eventTopic, []byte(ev.OrderID), ev); err != nil {
		k.log.Printf("[journal] fill publish %s: %v", ev.OrderID, err)
	}
}

// Tee fans recorder calls out to several sinks.
type Tee []session.Recorder

func (t Tee) BarClosed(row chart.Row) {
	for _, r := range t {
		r.BarClosed(row)
	}
}

func (t Tee) Decision(code string, side broker.Side, price float64, tickTime int) {
	for _, r := range t {
		r.Decision(code, side, price, tickTime)
	}
}

func (t Tee) Fill(ev shared.TickEvent) {
	for _, r := range t {
		r.Fill(ev)
	}
}
