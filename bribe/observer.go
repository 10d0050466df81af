package bribe

import (
	"context"

	logger "github.com/sirupsen/logrus"
)

// ObserverEventLog stores every ledger event so indexers can read them back.
// All kinds share one channel so rows are written in emission order.
type ObserverEventLog struct {
	backend Storage
	Ch      chan Event
}

func NewObserverEventLog(backend Storage, bufferSize int) *ObserverEventLog {
	return &ObserverEventLog{
		backend: backend,
		Ch:      make(chan Event, bufferSize),
	}
}

// Subscribe registers the observer's channel with p.
func (o *ObserverEventLog) Subscribe(p *PublisherService) {
	p.RegisterObserver(o.Ch)
}

// Start consumes events until ctx is done.
// You should run it as a separate goroutine (with go)
func (o *ObserverEventLog) Start(ctx context.Context) error {
	logger.Info("starting bribe event log")
	defer logger.Info("stopping bribe event log")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-o.Ch:
			if err := o.backend.AddEvent(ev.WTXID, ev.Kind, ev.Data()); err != nil {
				logger.Errorf("failed to store bribe event: kind=%s, wtxid=%s, err=%v", ev.Kind, ev.WTXID.String(), err)
			}
		}
	}
}
