package registry

import (
	"sync"

	"signalbridge/src/model"
)

const DefaultHistoryCapacity = 50

// SignalHistory keeps the two bounded signal histories: one per strategy for
// admin monitoring and one per subscriber for delivered copies. Both are
// append-and-truncate-from-front ring buffers; the capacity bound, not a
// database, is the resource control here.
type SignalHistory struct {
	mu       sync.RWMutex
	capacity int

	perStrategy   map[string][]model.Signal
	perSubscriber map[string][]model.Signal
}

func NewSignalHistory(capacity int) *SignalHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &SignalHistory{
		capacity:      capacity,
		perStrategy:   make(map[string][]model.Signal),
		perSubscriber: make(map[string][]model.Signal),
	}
}

func appendBounded(buf []model.Signal, sig model.Signal, capacity int) []model.Signal {
	buf = append(buf, sig)
	if len(buf) > capacity {
		buf = buf[len(buf)-capacity:]
	}
	return buf
}

func (h *SignalHistory) AppendStrategy(strategyID string, sig model.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.perStrategy[strategyID] = appendBounded(h.perStrategy[strategyID], sig, h.capacity)
}

func (h *SignalHistory) AppendSubscriber(uid string, sig model.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.perSubscriber[uid] = appendBounded(h.perSubscriber[uid], sig, h.capacity)
}

// Strategy returns a copy of the strategy's history, oldest first.
func (h *SignalHistory) Strategy(strategyID string) []model.Signal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.Signal(nil), h.perStrategy[strategyID]...)
}

// Subscriber returns a copy of the subscriber's delivered history.
func (h *SignalHistory) Subscriber(uid string) []model.Signal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.Signal(nil), h.perSubscriber[uid]...)
}
