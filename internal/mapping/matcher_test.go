package mapping

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(m *Mappings) *Resolver {
	return NewResolver(m, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolverExactMatch(t *testing.T) {
	m := NewMappings()
	m.Put("8801799999", 42)

	id, ok := newTestResolver(m).Resolve("+880-17-99999")
	require.True(t, ok)
	assert.Equal(t, SubscriberID(42), id)
}

func TestResolverSuffixMatchToleratesCountryCodeMismatch(t *testing.T) {
	m := NewMappings()
	m.Put("15550100100", 42)

	// Normalizes to 15550100100; the stored key shares an 11-digit tail.
	id, ok := newTestResolver(m).Resolve("+1 (555) 010-0100")
	require.True(t, ok)
	assert.Equal(t, SubscriberID(42), id)
}

func TestResolverSuffixMatchDroppedPrefix(t *testing.T) {
	m := NewMappings()
	m.Put("8801799999999", 7)

	// Sender omitted the country code; the 10-digit tail still matches.
	id, ok := newTestResolver(m).Resolve("1799999999")
	require.True(t, ok)
	assert.Equal(t, SubscriberID(7), id)
}

func TestResolverFirstStoredKeyWinsOnCollision(t *testing.T) {
	m := NewMappings()
	m.Put("111222333444", 1)
	m.Put("999222333444", 2)

	// Both keys end with the same 9-digit tail; insertion order decides.
	id, ok := newTestResolver(m).Resolve("222333444")
	require.True(t, ok)
	assert.Equal(t, SubscriberID(1), id)
}

func TestResolverLooseFallbackForShortInput(t *testing.T) {
	m := NewMappings()
	m.Put("8801799999", 13)

	// Five digits is below the smallest suffix window.
	id, ok := newTestResolver(m).Resolve("99999")
	require.True(t, ok)
	assert.Equal(t, SubscriberID(13), id)
}

func TestResolverNotFound(t *testing.T) {
	m := NewMappings()
	m.Put("8801799999", 13)

	_, ok := newTestResolver(m).Resolve("12345678")
	assert.False(t, ok)
}

func TestResolverEmptyInput(t *testing.T) {
	m := NewMappings()
	m.Put("8801799999", 13)

	_, ok := newTestResolver(m).Resolve("no digits at all")
	assert.False(t, ok, "digit-free input must not loose-match every key")
}
