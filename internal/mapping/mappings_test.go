package mapping

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingsPutOverwritesOwner(t *testing.T) {
	m := NewMappings()
	m.Put("8801799999", 100)
	m.Put("8801799999", 200)

	id, ok := m.Get("8801799999")
	require.True(t, ok)
	assert.Equal(t, SubscriberID(200), id)
	assert.Equal(t, 1, m.Len())
}

func TestMappingsOrderPreservedAcrossJSONRoundTrip(t *testing.T) {
	m := NewMappings()
	m.Put("8801711111", 1)
	m.Put("15550100100", 2)
	m.Put("4915200000", 3)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	decoded := NewMappings()
	require.NoError(t, json.Unmarshal(data, decoded))

	assert.Equal(t, []string{"8801711111", "15550100100", "4915200000"}, decoded.Numbers())
	id, ok := decoded.Get("15550100100")
	require.True(t, ok)
	assert.Equal(t, SubscriberID(2), id)
}

func TestMappingsUnmarshalRejectsNonObject(t *testing.T) {
	m := NewMappings()
	assert.Error(t, json.Unmarshal([]byte(`["8801799999"]`), m))
	assert.Error(t, json.Unmarshal([]byte(`{"8801799999": "not a number"}`), m))
}

func TestMappingsNumbersFor(t *testing.T) {
	m := NewMappings()
	m.Put("8801711111", 7)
	m.Put("8801722222", 9)
	m.Put("8801733333", 7)

	assert.Equal(t, []string{"8801711111", "8801733333"}, m.NumbersFor(7))
	assert.Empty(t, m.NumbersFor(42))
}

func TestMappingsCloneIsIndependent(t *testing.T) {
	m := NewMappings()
	m.Put("8801711111", 1)

	c := m.Clone()
	c.Put("8801722222", 2)

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, c.Len())
}
