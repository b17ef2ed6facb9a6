package session

import (
	"context"
	"log"
	"time"
)

const DefaultReapInterval = 10 * time.Minute

// StartIdleReaper removes sessions untouched for longer than ttl. It does
// nothing when ttl <= 0.
func (m *Manager) StartIdleReaper(ctx context.Context, interval, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	log.Printf("[session] idle reaper every %s, ttl %s", interval, ttl)
	go m.reapLoop(ctx, interval, ttl)
}

func (m *Manager) reapLoop(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.reapIdle(ctx, ttl); err != nil {
				log.Printf("[session] reap idle sessions error: %v", err)
			}
		}
	}
}

func (m *Manager) reapIdle(ctx context.Context, ttl time.Duration) (int, error) {
	ids, err := m.store.IdleSince(ctx, m.now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		m.agents.CleanSession(id)
		ok, err := m.DeleteSession(ctx, id)
		if err != nil {
			log.Printf("[session] delete idle session %s failed: %v", id, err)
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[session] reaped %d idle sessions", removed)
	}
	return removed, nil
}
