package tool

import (
	"context"
	"sync"
	"time"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/pkg/logger"
)

// Pool bounds the number of live transports per provider and reuses healthy
// ones across calls. Health is checked lazily: an idle transport is pinged
// when it is handed out again, never in the background.
type Pool struct {
	maxPerProvider int
	acquireTimeout time.Duration

	mu        sync.Mutex
	providers map[string]*providerPool
	closed    bool
}

type providerPool struct {
	provider Provider
	slots    chan struct{}

	mu     sync.Mutex
	idle   []Transport
	closed bool
}

// PoolStats is a point-in-time snapshot of one provider's pool.
type PoolStats struct {
	Capacity int
	InUse    int
	Idle     int
}

// NewPool creates a pool with the given per-provider capacity and acquisition
// timeout.
func NewPool(maxPerProvider int, acquireTimeout time.Duration) *Pool {
	if maxPerProvider <= 0 {
		maxPerProvider = 1
	}
	return &Pool{
		maxPerProvider: maxPerProvider,
		acquireTimeout: acquireTimeout,
		providers:      make(map[string]*providerPool),
	}
}

// Lease is an acquired transport. The holder must call Release exactly once.
type Lease struct {
	pool     *Pool
	bucket   *providerPool
	t        Transport
	released bool
}

// Transport returns the leased transport.
func (l *Lease) Transport() Transport { return l.t }

// Release returns the transport to the pool. An unhealthy transport is closed
// instead of being reused; its capacity slot frees up either way. After the
// pool has shut down the transport is closed too, not re-idled, so nothing
// outlives Close.
func (l *Lease) Release(healthy bool) {
	if l.released {
		return
	}
	l.released = true
	if healthy {
		l.bucket.mu.Lock()
		if l.bucket.closed {
			l.bucket.mu.Unlock()
			if l.t != nil {
				_ = l.t.Close()
			}
		} else {
			l.bucket.idle = append(l.bucket.idle, l.t)
			l.bucket.mu.Unlock()
		}
	} else if l.t != nil {
		_ = l.t.Close()
	}
	<-l.bucket.slots
}

// Acquire obtains a transport for the provider, waiting up to the acquisition
// timeout for a free slot. Idle transports are pinged before reuse and
// replaced when stale.
func (p *Pool) Acquire(ctx context.Context, provider Provider) (*Lease, error) {
	bucket, err := p.bucketFor(provider)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()
	select {
	case bucket.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, apperrors.Wrap(apperrors.CodeTimeout, ctx.Err(), "acquire cancelled",
			apperrors.WithMetadata("provider", provider.Key()))
	case <-timer.C:
		return nil, apperrors.New(apperrors.CodePoolExhausted, "",
			apperrors.WithMetadata("provider", provider.Key()))
	}

	// Slot held from here on; any failure path must give it back.
	for {
		bucket.mu.Lock()
		var t Transport
		if n := len(bucket.idle); n > 0 {
			t = bucket.idle[n-1]
			bucket.idle = bucket.idle[:n-1]
		}
		bucket.mu.Unlock()
		if t == nil {
			break
		}
		if err := t.Ping(ctx); err == nil {
			return &Lease{pool: p, bucket: bucket, t: t}, nil
		}
		logger.Named("tool_pool").Warn("discarding stale transport", "provider", provider.Key())
		_ = t.Close()
	}

	t, err := provider.Dial(ctx)
	if err != nil {
		<-bucket.slots
		return nil, apperrors.Wrap(apperrors.CodeToolExecution, err, "dial tool provider",
			apperrors.WithMetadata("provider", provider.Key()))
	}
	return &Lease{pool: p, bucket: bucket, t: t}, nil
}

func (p *Pool) bucketFor(provider Provider) (*providerPool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, apperrors.New(apperrors.CodeInitialization, "pool is closed")
	}
	bucket, ok := p.providers[provider.Key()]
	if !ok {
		bucket = &providerPool{
			provider: provider,
			slots:    make(chan struct{}, p.maxPerProvider),
		}
		p.providers[provider.Key()] = bucket
	}
	return bucket, nil
}

// Stats reports per-provider usage, keyed by provider key.
func (p *Pool) Stats() map[string]PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]PoolStats, len(p.providers))
	for key, bucket := range p.providers {
		bucket.mu.Lock()
		idle := len(bucket.idle)
		bucket.mu.Unlock()
		out[key] = PoolStats{
			Capacity: p.maxPerProvider,
			InUse:    len(bucket.slots),
			Idle:     idle,
		}
	}
	return out
}

// Close closes every idle transport and rejects further acquisitions.
// Transports currently on lease are closed by their holders via Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	buckets := make([]*providerPool, 0, len(p.providers))
	for _, bucket := range p.providers {
		buckets = append(buckets, bucket)
	}
	p.mu.Unlock()

	for _, bucket := range buckets {
		bucket.mu.Lock()
		bucket.closed = true
		for _, t := range bucket.idle {
			_ = t.Close()
		}
		bucket.idle = nil
		bucket.mu.Unlock()
	}
	return nil
}
