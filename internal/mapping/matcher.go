package mapping

import (
	"log/slog"
	"strings"
)

// Suffix window bounds, in digits. Longest-first keeps the match as specific
// as the input allows before widening.
const (
	maxSuffixLen = 12
	minSuffixLen = 6
)

// SnapshotSource yields the current mapping table. Implemented by the
// filestore.Store; a bare Mappings value satisfies it for tests.
type SnapshotSource interface {
	Snapshot() *Mappings
}

// Resolver maps raw inbound numbers to subscribers. Upstream systems report
// numbers with or without country codes and punctuation, so after an exact
// lookup it falls back to comparing trailing digit runs. The fallback is a
// heuristic: two stored numbers sharing a long common suffix can collide,
// and the first one in stored order wins.
type Resolver struct {
	source SnapshotSource
	logger *slog.Logger
}

// NewResolver creates a Resolver over the given mapping source.
func NewResolver(source SnapshotSource, logger *slog.Logger) *Resolver {
	return &Resolver{source: source, logger: logger.With("component", "resolver")}
}

// Resolve returns the subscriber for a raw inbound number, or false when no
// stored key matches. Lookup order, first hit wins: exact normalized key;
// trailing suffixes from 12 down to 6 digits tested against stored keys in
// stored order; any key ending with the entire normalized input.
func (r *Resolver) Resolve(raw string) (SubscriberID, bool) {
	norm := Normalize(raw)
	if norm == "" {
		return 0, false
	}
	snap := r.source.Snapshot()
	if id, ok := snap.Get(norm); ok {
		return id, true
	}
	keys := snap.Numbers()
	for n := maxSuffixLen; n >= minSuffixLen; n-- {
		if len(norm) < n {
			continue
		}
		suffix := norm[len(norm)-n:]
		for _, k := range keys {
			if strings.HasSuffix(k, suffix) {
				r.logger.Debug("Resolved by suffix match", "input", norm, "matched_key", k, "suffix_len", n)
				id, _ := snap.Get(k)
				return id, true
			}
		}
	}
	// Input shorter than the smallest window: match on the whole of it.
	for _, k := range keys {
		if strings.HasSuffix(k, norm) {
			r.logger.Debug("Resolved by loose suffix match", "input", norm, "matched_key", k)
			id, _ := snap.Get(k)
			return id, true
		}
	}
	return 0, false
}
