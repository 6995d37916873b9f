package events

import "time"

// backlog is the per-request ring of recently published frames, replayed
// oldest-first to late subscribers. Bounded by size and pruned by TTL.
type backlog struct {
	frames    []Frame
	max       int
	updatedAt time.Time
}

func newBacklog(max int) *backlog {
	return &backlog{max: max}
}

func (b *backlog) append(f Frame, now time.Time) {
	b.frames = append(b.frames, f)
	if len(b.frames) > b.max {
		b.frames = b.frames[len(b.frames)-b.max:]
	}
	b.updatedAt = now
}

// snapshot returns the retained frames oldest-first.
func (b *backlog) snapshot() []Frame {
	out := make([]Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

func (b *backlog) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(b.updatedAt) > ttl
}
