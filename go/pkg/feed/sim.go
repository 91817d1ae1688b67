package feed

import (
	"context"
	"math/rand"
	"time"

	"breakout-trader/go/pkg/shared"
)

// SimSource replays a synthetic trading day: a random walk per code,
// clocked through the session window. During the last minutes of the
// session it also emits indicative closing-auction events, so the
// auction exit path can be exercised without a venue.
type SimSource struct {
	codes     []string
	window    shared.SessionWindow
	basePrice float64
	stepSec   int           // simulated seconds between rounds
	interval  time.Duration // wall-clock pause between rounds, 0 for full speed
	seed      int64
}

func NewSimSource(codes []string, window shared.SessionWindow, basePrice float64, stepSec int, interval time.Duration) *SimSource {
	return &SimSource{
		codes:     codes,
		window:    window,
		basePrice: basePrice,
		stepSec:   stepSec,
		interval:  interval,
		seed:      time.Now().UnixNano(),
	}
}

func (s *SimSource) Start(ctx context.Context, out chan<- shared.TickEvent) error {
	codes := s.codes
	if len(codes) == 0 {
		codes = []string{"SIM"}
	}
	step := s.stepSec
	if step <= 0 {
		step = 15
	}
	base := s.basePrice
	if base <= 0 {
		base = 250.0
	}
	rng := rand.New(rand.NewSource(s.seed))
	prices := make(map[string]float64, len(codes))
	for _, c := range codes {
		prices[c] = base + rng.Float64()*10.0 - 5.0
	}
	auctionFrom := (s.window.EndMin - 10) * 60

	go func() {
		defer close(out)
		var timer *time.Timer
		if s.interval > 0 {
			timer = time.NewTimer(s.interval)
			defer timer.Stop()
		}
		for sec := s.window.StartMin * 60; sec <= (s.window.EndMin+1)*60; sec += step {
			for _, c := range codes {
				drift := rng.Float64()*0.8 - 0.4
				price := prices[c] + drift
				if price < 1.0 {
					price = 1.0
				}
				prices[c] = price
				ev := shared.TickEvent{
					Kind:  shared.EventCurrent,
					Code:  c,
					Time:  secHHMMSS(sec),
					Price: price,
					Phase: shared.PhaseRegular,
				}
				select {
				case <-ctx.Done():
					return
				case out <- ev:
				}
				if sec >= auctionFrom {
					indicative := shared.TickEvent{
						Kind:  shared.EventExpected,
						Code:  c,
						Time:  secHHMMSS(sec),
						Price: price * (1 + rng.Float64()*0.002 - 0.001),
						Phase: shared.PhaseClosingAuction,
					}
					select {
					case <-ctx.Done():
						return
					case out <- indicative:
					}
				}
			}
			if timer != nil {
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
					timer.Reset(s.interval)
				}
			}
		}
	}()
	return nil
}

func secHHMMSS(sec int) int {
	return (sec/3600)*10000 + ((sec/60)%60)*100 + sec%60
}
