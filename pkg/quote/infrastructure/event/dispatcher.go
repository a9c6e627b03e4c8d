package event

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"quoteengine/pkg/common/domain"
)

type Handler func(event domain.Event) error

// Dispatcher logs every domain event and fans it out to subscribed handlers.
// A failing handler is logged and does not stop the others.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   log.FieldLogger
}

func NewDispatcher(logger log.FieldLogger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

func (d *Dispatcher) Subscribe(eventType string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

func (d *Dispatcher) Dispatch(event domain.Event) error {
	d.logger.WithFields(log.Fields{
		"event":   event.Type(),
		"payload": event,
	}).Info("domain event")

	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[event.Type()]...)
	d.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			d.logger.WithError(err).WithField("event", event.Type()).Error("event handler failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
