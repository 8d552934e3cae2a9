// Package keypool manages the pool of provider API keys: round-robin
// selection across active keys, failure accounting, and deactivation of
// keys that keep failing.
package keypool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pocccco-max/nexusv2/internal/observability"
	"github.com/pocccco-max/nexusv2/pkg/kvstore"
)

// recordKey is the store record holding the whole pool.
const recordKey = "groq-api-keys"

// maxFailures is the failure count at which a key is deactivated.
const maxFailures = 3

// ErrNoActiveKey is returned by Acquire when every key is inactive or the
// pool is empty.
var ErrNoActiveKey = errors.New("no active API keys")

// Key is a single provider credential with its health state.
type Key struct {
	Secret    string `json:"key"`
	Active    bool   `json:"active"`
	FailCount int    `json:"failCount"`
}

// Pool holds the ordered key set and the rotation cursor. The cursor is
// process-local and deliberately not persisted.
type Pool struct {
	store  kvstore.Store
	logger zerolog.Logger

	mu     sync.Mutex
	keys   []Key
	cursor int
}

// New loads the persisted pool record from the store.
func New(ctx context.Context, store kvstore.Store, logger zerolog.Logger) (*Pool, error) {
	observability.EnsureRegistered()

	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	p := &Pool{
		store:  store,
		logger: logger,
	}

	data, err := store.Get(ctx, recordKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load key pool: %w", err)
	}
	if data != nil {
		if err := json.Unmarshal(data, &p.keys); err != nil {
			return nil, fmt.Errorf("failed to parse key pool record: %w", err)
		}
	}

	p.publishGauges()
	logger.Info().Int("keys", len(p.keys)).Msg("Key pool loaded")

	return p, nil
}

// Add inserts a new active key. Adding a secret that is already present is
// a no-op, so the call is idempotent.
func (p *Pool) Add(ctx context.Context, secret string) error {
	if secret == "" {
		return fmt.Errorf("key secret cannot be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range p.keys {
		if k.Secret == secret {
			return nil
		}
	}

	p.keys = append(p.keys, Key{Secret: secret, Active: true, FailCount: 0})
	if err := p.persist(ctx); err != nil {
		p.keys = p.keys[:len(p.keys)-1]
		return err
	}

	p.logger.Info().Str("key", maskSecret(secret)).Msg("API key added")
	return nil
}

// Remove deletes a key by secret value; absent secrets are a no-op.
func (p *Pool) Remove(ctx context.Context, secret string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := make([]Key, 0, len(p.keys))
	removed := false
	for _, k := range p.keys {
		if k.Secret == secret {
			removed = true
			continue
		}
		kept = append(kept, k)
	}
	if !removed {
		return nil
	}

	prev := p.keys
	p.keys = kept
	if err := p.persist(ctx); err != nil {
		p.keys = prev
		return err
	}

	p.logger.Info().Str("key", maskSecret(secret)).Msg("API key removed")
	return nil
}

// Acquire selects the next active key in rotation order. The cursor advances
// on every call, even when the active set has shrunk since the last one.
func (p *Pool) Acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var active []Key
	for _, k := range p.keys {
		if k.Active {
			active = append(active, k)
		}
	}
	if len(active) == 0 {
		return "", ErrNoActiveKey
	}

	k := active[p.cursor%len(active)]
	p.cursor++

	observability.RecordKeyAcquire()
	return k.Secret, nil
}

// ReportFailure increments the failure count for a key and deactivates it
// once the count reaches the threshold. Unknown secrets are a no-op.
func (p *Pool) ReportFailure(ctx context.Context, secret string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.keys {
		if p.keys[i].Secret != secret {
			continue
		}

		prev := p.keys[i]
		p.keys[i].FailCount++
		deactivated := false
		if p.keys[i].FailCount >= maxFailures {
			p.keys[i].Active = false
			deactivated = true
		}
		if err := p.persist(ctx); err != nil {
			p.keys[i] = prev
			return err
		}

		observability.RecordKeyFailure(deactivated)
		evt := p.logger.Warn().Str("key", maskSecret(secret)).Int("failCount", p.keys[i].FailCount)
		if deactivated {
			evt.Msg("API key deactivated after repeated failures")
		} else {
			evt.Msg("API key failure recorded")
		}
		return nil
	}

	return nil
}

// ReportSuccess resets a key to healthy, reactivating it if needed.
// Unknown secrets are a no-op.
func (p *Pool) ReportSuccess(ctx context.Context, secret string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.keys {
		if p.keys[i].Secret != secret {
			continue
		}

		prev := p.keys[i]
		p.keys[i].FailCount = 0
		p.keys[i].Active = true
		if err := p.persist(ctx); err != nil {
			p.keys[i] = prev
			return err
		}

		p.logger.Debug().Str("key", maskSecret(secret)).Msg("API key healthy")
		return nil
	}

	return nil
}

// Keys returns a snapshot of the pool in insertion order.
func (p *Pool) Keys() []Key {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Key, len(p.keys))
	copy(out, p.keys)
	return out
}

// ActiveCount returns the number of currently active keys.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, k := range p.keys {
		if k.Active {
			count++
		}
	}
	return count
}

// persist writes the whole pool record. Callers hold p.mu.
func (p *Pool) persist(ctx context.Context) error {
	data, err := json.Marshal(p.keys)
	if err != nil {
		return fmt.Errorf("failed to marshal key pool: %w", err)
	}
	if err := p.store.Put(ctx, recordKey, data); err != nil {
		return fmt.Errorf("failed to persist key pool: %w", err)
	}
	p.publishGauges()
	return nil
}

// publishGauges updates pool health gauges. Callers hold p.mu.
func (p *Pool) publishGauges() {
	active := 0
	for _, k := range p.keys {
		if k.Active {
			active++
		}
	}
	observability.SetPoolKeys(active, len(p.keys))
}

// maskSecret shortens a secret for log output.
func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "…" + secret[len(secret)-4:]
}
