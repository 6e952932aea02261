// Package events carries in-process notifications about session and sale
// lifecycle changes. A Bus is injected into the components that emit them.
package events

import (
	"sync"
	"time"
)

const (
	SessionCreated     = "session.created"
	SessionRecovered   = "session.recovered"
	SessionInterrupted = "session.interrupted"
	SessionMerged      = "session.merged"
	SessionSplit       = "session.split"
	SessionTransferred = "session.transferred"
	SessionsExpired    = "sessions.expired"
	SessionsArchived   = "sessions.archived"
	SaleCompleted      = "sale.completed"
	SaleFailed         = "sale.failed"
	ReceiptEmailed     = "receipt.emailed"
	StockLow           = "stock.low"
)

type Event struct {
	Name      string
	SessionID int64
	UserID    int64
	Count     int
	Amount    int64
	Attrs     map[string]string
	At        time.Time
}

type Handler func(Event)

type Dispatcher interface {
	Dispatch(evt Event)
}

// Bus dispatches events synchronously to handlers registered by name.
// Handlers registered under "*" receive every event.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: map[string][]Handler{}}
}

func (b *Bus) Listen(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

func (b *Bus) Dispatch(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[evt.Name])+len(b.handlers["*"]))
	hs = append(hs, b.handlers[evt.Name]...)
	hs = append(hs, b.handlers["*"]...)
	b.mu.RUnlock()

	for _, h := range hs {
		h(evt)
	}
}

type Noop struct{}

func (Noop) Dispatch(Event) {}
