package netmon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Monitor reports device connectivity and notifies subscribers of
// transitions. The engine depends on this interface only; tests swap in a
// deterministic fake.
type Monitor interface {
	IsOnline() bool
	// Subscribe registers fn to be called on every online/offline
	// transition. The returned func cancels the subscription.
	Subscribe(fn func(online bool)) (cancel func())
}

// ProbeMonitor decides connectivity by polling an HTTP endpoint. Anything
// other than a transport error counts as online: a reachable backend that
// answers 500 is still reachable.
type ProbeMonitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

func NewProbeMonitor(url string, interval time.Duration, logger *slog.Logger) *ProbeMonitor {
	return &ProbeMonitor{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
		subs:     make(map[int]func(bool)),
	}
}

func (m *ProbeMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *ProbeMonitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Run probes until ctx is cancelled. The first probe fires immediately so
// startup does not wait a full interval to learn it is online.
func (m *ProbeMonitor) Run(ctx context.Context) {
	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *ProbeMonitor) check(ctx context.Context) {
	m.update(m.probe(ctx))
}

func (m *ProbeMonitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "HEAD", m.url, nil)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return true
}

// update records the probe result and notifies subscribers on transitions.
func (m *ProbeMonitor) update(online bool) {
	m.mu.Lock()
	changed := online != m.online
	m.online = online
	var fns []func(bool)
	if changed {
		fns = make([]func(bool), 0, len(m.subs))
		for _, fn := range m.subs {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Info("connectivity changed", "online", online)
	for _, fn := range fns {
		fn(online)
	}
}
