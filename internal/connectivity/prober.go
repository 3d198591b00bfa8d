package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// StateSetter receives probe results.
type StateSetter interface {
	SetOnline(online bool)
}

// Prober polls a health URL and reports reachability. Any response below 500
// counts as online.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
	state    StateSetter
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewProber creates a Prober. A nil client uses a client with a 5s timeout.
func NewProber(url string, interval time.Duration, client *http.Client, state StateSetter, clock clockwork.Clock, logger *slog.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Prober{
		url:      url,
		interval: interval,
		client:   client,
		state:    state,
		clock:    clock,
		logger:   logger,
	}
}

// Run probes immediately and then on every interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.Probe(ctx)
		}
	}
}

// Probe performs one check and reports the result.
func (p *Prober) Probe(ctx context.Context) bool {
	online := p.check(ctx)
	if ctx.Err() != nil {
		return online
	}
	p.state.SetOnline(online)
	return online
}

func (p *Prober) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		p.logger.Error("build probe request", "url", p.url, "error", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "url", p.url, "error", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
