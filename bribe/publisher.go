package bribe

import "sync"

type subscriber struct {
	ch       chan Event
	pending  []Event // waiting for room in ch, oldest first
	draining bool
}

// PublisherService is a concurrent-safe service that
// could "Notify" channels of observers.
// Please "Register" observers via RegisterObserver before Notify.
// Every observer sees the events in emission order.
type PublisherService struct {
	subscribers []*subscriber
	mu          sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func NewPublisherService() *PublisherService {
	return &PublisherService{
		subscribers: make([]*subscriber, 0),
		done:        make(chan struct{}),
	}
}

func (m *PublisherService) RegisterObserver(observer chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscribers = append(m.subscribers, &subscriber{ch: observer})
}

// Close stops delivering backlogged events. Call it once the observers
// stopped reading.
func (m *PublisherService) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

// Notify sends ev to every observer without blocking the caller. Once an
// observer's channel is full, later events queue behind it and a single
// goroutine feeds them in order until the queue is empty or Close is called.
func (m *PublisherService) Notify(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subscribers {
		if s.draining {
			s.pending = append(s.pending, ev)
			continue
		}
		select {
		case s.ch <- ev:
		default:
			s.pending = append(s.pending, ev)
			s.draining = true
			go m.drain(s)
		}
	}
}

func (m *PublisherService) drain(s *subscriber) {
	for {
		m.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			m.mu.Unlock()
			return
		}
		ev := s.pending[0]
		m.mu.Unlock()

		select {
		case <-m.done:
			return
		default:
		}

		select {
		case s.ch <- ev:
		case <-m.done:
			return
		}

		m.mu.Lock()
		s.pending[0] = Event{}
		s.pending = s.pending[1:]
		m.mu.Unlock()
	}
}

func (m *PublisherService) NotifyPlaced(ev BribePlacedEvent) {
	m.Notify(Event{Kind: EventPlaced, WTXID: ev.WTXID, Placed: &ev})
}

func (m *PublisherService) NotifyWithdrawn(ev BribeWithdrawnEvent) {
	m.Notify(Event{Kind: EventWithdrawn, WTXID: ev.WTXID, Withdrawn: &ev})
}

func (m *PublisherService) NotifyClaimed(ev BribeClaimedEvent) {
	m.Notify(Event{Kind: EventClaimed, WTXID: ev.WTXID, Claimed: &ev})
}
