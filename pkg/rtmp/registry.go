package rtmp

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Registry maps stream keys to live Sources. It is owned by the loop
// goroutine and never locked.
type Registry struct {
	sources map[string]*Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]*Source)}
}

func (r *Registry) Source(key string) (*Source, bool) {
	src, ok := r.sources[key]
	return src, ok
}

func (r *Registry) Len() int {
	return len(r.sources)
}

// Publish attaches p as the publisher of key, creating the Source if needed.
// A different live publisher is replaced and returned so the caller can
// detach it. Consumers are kept and receive the new publisher's cached
// headers.
func (r *Registry) Publish(key string, p Publisher) (*Source, Publisher) {
	src, ok := r.sources[key]
	if !ok {
		src = newSource(key)
		r.sources[key] = src
	}

	var replaced Publisher
	if src.publisher != nil && src.publisher != p {
		replaced = src.publisher
		slog.Info("Publisher replaced", "stream", key, "sessionId", p.ID(), "previous", replaced.ID())
	}

	src.publisher = p
	for _, c := range src.consumers {
		c.reset()
	}
	slog.Info("Publisher set", "stream", key, "sessionId", p.ID(), "playerCount", len(src.consumers))
	return src, replaced
}

// Play adds p as a consumer of key. A Source without publisher is created so
// the player is ready when publishing starts.
func (r *Registry) Play(key string, p Player) (*Source, error) {
	src, ok := r.sources[key]
	if !ok {
		src = newSource(key)
		r.sources[key] = src
	} else if src.consumerIndex(p) >= 0 {
		return nil, fmt.Errorf("%s: %w", key, ErrAlreadyPlaying)
	}

	src.addConsumer(p)
	return src, nil
}

// Unpublish clears p as publisher of src. The Source survives while it has
// consumers.
func (r *Registry) Unpublish(src *Source, p Publisher) {
	if src == nil || src.publisher != p {
		return
	}
	src.publisher = nil
	slog.Info("Publisher removed", "stream", src.key, "sessionId", p.ID(), "playerCount", len(src.consumers))
	r.removeIfIdle(src)
}

// Stop removes p from the consumers of src.
func (r *Registry) Stop(src *Source, p Player) {
	if src == nil {
		return
	}
	src.removeConsumer(p)
	r.removeIfIdle(src)
}

// Relay forwards a tag from the publisher of src to its consumers.
func (r *Registry) Relay(src *Source, tag *Tag) []Player {
	return src.relay(tag)
}

func (r *Registry) removeIfIdle(src *Source) {
	if src.publisher != nil || len(src.consumers) > 0 {
		return
	}
	if r.sources[src.key] == src {
		delete(r.sources, src.key)
		slog.Info("Source removed", "stream", src.key)
	}
}

// SourceStats is a point-in-time view of one Source.
type SourceStats struct {
	Key        string
	Publishing bool
	Players    int
	Tags       uint64
	Bytes      uint64
	Uptime     time.Duration
}

// Snapshot returns stats for every Source ordered by key.
func (r *Registry) Snapshot() []SourceStats {
	stats := make([]SourceStats, 0, len(r.sources))
	now := time.Now()
	for _, src := range r.sources {
		stats = append(stats, SourceStats{
			Key:        src.key,
			Publishing: src.publisher != nil,
			Players:    len(src.consumers),
			Tags:       src.tags,
			Bytes:      src.bytes,
			Uptime:     now.Sub(src.createdAt),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}
