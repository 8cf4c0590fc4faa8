package sse

import (
	"context"
	"sync"
	"time"
)

// GateScan is what the live check-in board receives for every scan.
type GateScan struct {
	EventSlug         string    `json:"event_slug"`
	ReservationUnitID int64     `json:"reservation_unit_id,omitempty"`
	Status            string    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	Operator          string    `json:"operator,omitempty"`
	At                time.Time `json:"at"`
}

// GateEventEmitter fans gate scan results out to SSE subscribers, one
// channel per connected board, keyed by event slug.
type GateEventEmitter struct {
	clients map[string][]chan GateScan
	mu      sync.RWMutex
}

func NewGateEventEmitter() *GateEventEmitter {
	return &GateEventEmitter{clients: make(map[string][]chan GateScan)}
}

// Subscribe registers a board for an event's scans. The channel is
// closed and removed when the subscriber's context ends.
func (e *GateEventEmitter) Subscribe(ctx context.Context, eventSlug string) chan GateScan {
	clientChan := make(chan GateScan, 10)

	e.mu.Lock()
	e.clients[eventSlug] = append(e.clients[eventSlug], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventSlug, clientChan)
	}()

	return clientChan
}

// Emit broadcasts a scan to every board watching its event. Sends are
// non-blocking: a board that stopped draining loses scans rather than
// stalling the gate.
func (e *GateEventEmitter) Emit(scan GateScan) {
	e.mu.RLock()
	clients := e.clients[scan.EventSlug]
	e.mu.RUnlock()

	for _, clientChan := range clients {
		select {
		case clientChan <- scan:
		default:
		}
	}
}

func (e *GateEventEmitter) remove(eventSlug string, clientChan chan GateScan) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventSlug]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[eventSlug] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[eventSlug]) == 0 {
		delete(e.clients, eventSlug)
	}
}

// ClientCount reports how many boards are watching an event.
func (e *GateEventEmitter) ClientCount(eventSlug string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventSlug])
}
