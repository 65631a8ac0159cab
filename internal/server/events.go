package server

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const subscriberBuffer = 8

// DocumentEvent notifies stream subscribers that a document changed.
type DocumentEvent struct {
	DocumentID string    `json:"document_id"`
	Revision   int64     `json:"revision"`
	UpdatedBy  string    `json:"updated_by"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Dispatcher fans document events out to per-document subscribers.
// Publishing never blocks; a subscriber that cannot keep up misses
// events and catches up through the regular poll.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan DocumentEvent]struct{}
	logger      *zap.Logger
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		subscribers: make(map[string]map[chan DocumentEvent]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a listener for one document. The returned cancel
// function must be called exactly once when the listener goes away.
func (d *Dispatcher) Subscribe(documentID string) (<-chan DocumentEvent, func()) {
	ch := make(chan DocumentEvent, subscriberBuffer)

	d.mu.Lock()
	listeners, ok := d.subscribers[documentID]
	if !ok {
		listeners = make(map[chan DocumentEvent]struct{})
		d.subscribers[documentID] = listeners
	}
	listeners[ch] = struct{}{}
	d.mu.Unlock()

	cancel := func() {
		d.mu.Lock()
		if listeners, ok := d.subscribers[documentID]; ok {
			delete(listeners, ch)
			if len(listeners) == 0 {
				delete(d.subscribers, documentID)
			}
		}
		d.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Publish delivers the event to every live subscriber of its document.
func (d *Dispatcher) Publish(event DocumentEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for ch := range d.subscribers[event.DocumentID] {
		select {
		case ch <- event:
		default:
			d.logger.Debug("server.event_dropped", zap.String("document_id", event.DocumentID))
		}
	}
}
