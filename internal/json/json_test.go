package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X int    `json:"x"`
	Y int    `json:"y"`
	N string `json:"n,omitempty"`
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Marshal(point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1,"y":2}`, string(data))
	assert.True(t, Valid(data))

	var p point
	require.NoError(t, Unmarshal(data, &p))
	assert.Equal(t, point{X: 1, Y: 2}, p)
}

func TestMarshalSortsMapKeys(t *testing.T) {
	s, err := MarshalString(map[string]int{"b": 2, "a": 1, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2,"c":3}`, s)
}

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(point{X: 7}))

	var p point
	require.NoError(t, NewDecoder(&buf).Decode(&p))
	assert.Equal(t, 7, p.X)

	out, err := MarshalIndent(point{X: 1}, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(out), "\n  \"x\": 1")
}

func TestInvalid(t *testing.T) {
	assert.False(t, Valid([]byte(`{"x":`)))
	var p point
	assert.Error(t, Unmarshal([]byte(`{"x":"not a number"}`), &p))
}
