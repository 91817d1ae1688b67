package feed

import (
	"context"
	"errors"

	"breakout-trader/go/pkg/shared"
)

// KafkaSource replays tick events from the bridge topic. Events are
// delivered in partition order and committed after the dispatcher has
// taken them, so a restart resumes without losing ticks.
type KafkaSource struct {
	consumer shared.Consumer
	codes    map[string]bool // nil accepts every code
	log      shared.Logger
	m        Metrics
}

func NewKafkaSource(consumer shared.Consumer, codes []string, log shared.Logger, m Metrics) *KafkaSource {
	var filter map[string]bool
	if len(codes) > 0 {
		filter = make(map[string]bool, len(codes))
		for _, c := range codes {
			filter[c] = true
		}
	}
	return &KafkaSource{consumer: consumer, codes: filter, log: log, m: m}
}

func (k *KafkaSource) Start(ctx context.Context, out chan<- shared.TickEvent) error {
	go func() {
		defer close(out)
		defer k.consumer.Close()
		for {
			msg, err := k.consumer.Poll(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				k.log.Printf("[feed] poll: %v", err)
				k.m.events.WithLabelValues("error").Inc()
				continue
			}
			ev, err := decodeEvent(msg.Value)
			if err != nil {
				k.log.Printf("[feed] bad payload at %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
				k.m.dropped.Inc()
				_ = k.consumer.Commit(msg)
				continue
			}
			if k.codes != nil && !k.codes[ev.Code] {
				_ = k.consumer.Commit(msg)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- ev:
				k.m.decoded.Inc()
			}
			if err := k.consumer.Commit(msg); err != nil {
				k.log.Printf("[feed] commit: %v", err)
			}
		}
	}()
	return nil
}
