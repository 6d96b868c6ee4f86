package rates

import (
	"context"
	"log"
	"sync"
	"time"
)

// Refresher keeps the rate cache warm so payment submissions rarely wait on the network.
type Refresher struct {
	client   *Client
	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	running  bool
	mu       sync.Mutex
}

// NewRefresher creates a refresher. A non-positive interval defaults to
// the client's cache TTL.
func NewRefresher(client *Client, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = client.config.CacheTTL
	}
	return &Refresher{
		client:   client,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start fetches once immediately, then on every tick.
func (r *Refresher) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.ticker = time.NewTicker(r.interval)
	r.mu.Unlock()

	log.Printf("[RateRefresher] Started - Interval: %v, Target: %s", r.interval, r.client.config.Target)

	go func() {
		r.RunNow()
		r.run()
	}()
}

func (r *Refresher) run() {
	for {
		select {
		case <-r.ticker.C:
			r.RunNow()
		case <-r.stopCh:
			log.Printf("[RateRefresher] Stopped")
			return
		}
	}
}

// RunNow performs one refresh and logs the outcome.
func (r *Refresher) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), r.client.config.Timeout)
	defer cancel()

	rate, err := r.client.Refresh(ctx)
	if err != nil {
		log.Printf("[RateRefresher] Refresh failed: %v", err)
		return
	}
	log.Printf("[RateRefresher] %s rate refreshed: %s", r.client.config.Target, rate)
}

// Stop halts the refresher. Safe to call more than once.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.ticker != nil {
			r.ticker.Stop()
		}
		close(r.stopCh)
		r.running = false
	})
}
