// Package events publishes generation and sweep notifications to the bus.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"time"

	"stagegen/services/generator"
	"stagegen/services/sweeper"
)

const (
	StreamName = "STAGEGEN"

	GeneratedSubject      = "stagegen.artifacts.generated"
	SweepCompletedSubject = "stagegen.sweep.completed"
	SweepRequestedSubject = "stagegen.sweep.requested"

	sweepRequestDurable = "stagegen-sweeper"
)

// Subjects lists every subject carried by StreamName.
func Subjects() []string {
	return []string{GeneratedSubject, SweepCompletedSubject, SweepRequestedSubject}
}

// Bus is the subset of pkg/bus used here.
type Bus interface {
	Publish(ctx context.Context, subj string, v any) error
	Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error)
}

type GeneratedEvent struct {
	ProductID  string            `json:"product_id"`
	GUID       string            `json:"guid"`
	Serial     string            `json:"serial"`
	Links      map[string]string `json:"links"`
	Descriptor string            `json:"descriptor_path"`
	CreatedAt  time.Time         `json:"created_at"`
}

type SweepCompletedEvent struct {
	Removed []string  `json:"removed"`
	Errors  int       `json:"errors"`
	SweptAt time.Time `json:"swept_at"`
}

// SweepRequest asks a running server to sweep now.
type SweepRequest struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// Publisher emits events for finished generations and sweeps.
type Publisher struct {
	bus    Bus
	logger *log.Logger
	now    func() time.Time
}

func NewPublisher(bus Bus, logger *log.Logger) (*Publisher, error) {
	if bus == nil {
		return nil, errors.New("bus is required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Publisher{bus: bus, logger: logger, now: time.Now}, nil
}

// RecordGeneration publishes a GeneratedEvent.
func (p *Publisher) RecordGeneration(ctx context.Context, res *generator.Result) error {
	if p == nil {
		return errors.New("nil publisher")
	}
	if res == nil {
		return errors.New("nil result")
	}
	return p.bus.Publish(ctx, GeneratedSubject, GeneratedEvent{
		ProductID:  res.Parameters.ProductID,
		GUID:       res.Parameters.GUID,
		Serial:     res.Parameters.Serial,
		Links:      res.Links(),
		Descriptor: res.Descriptor.Path,
		CreatedAt:  res.CreatedAt,
	})
}

// SweepCompleted publishes a SweepCompletedEvent. Failures are logged.
func (p *Publisher) SweepCompleted(ctx context.Context, r sweeper.Report) {
	if p == nil {
		return
	}
	evt := SweepCompletedEvent{Removed: []string{}, Errors: len(r.Errors), SweptAt: p.now().UTC()}
	for _, rm := range r.Removed {
		evt.Removed = append(evt.Removed, rm.Path)
	}
	if err := p.bus.Publish(ctx, SweepCompletedSubject, evt); err != nil {
		p.logger.Printf("WARN publish sweep completed: %v", err)
	}
}

// SubscribeSweepRequests runs sweep for every SweepRequest received.
func SubscribeSweepRequests(ctx context.Context, bus Bus, logger *log.Logger, sweep func(context.Context) sweeper.Report) (io.Closer, error) {
	if bus == nil {
		return nil, errors.New("bus is required")
	}
	if sweep == nil {
		return nil, errors.New("sweep func is required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return bus.Subscribe(ctx, SweepRequestedSubject, sweepRequestDurable, func(ctx context.Context, data []byte) error {
		var req SweepRequest
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				logger.Printf("WARN discarding malformed sweep request: %v", err)
				return nil
			}
		}
		logger.Printf("INFO sweep requested by %q", req.RequestedBy)
		sweep(ctx)
		return nil
	})
}
