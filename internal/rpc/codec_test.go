package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_RoundTrip(t *testing.T) {
	c := jsonCodec{}
	in := &BatchMsg{
		BatchID: "b1",
		SendAt:  1234,
		Logs:    []LogLineMsg{{Label: "app", Line: "hello", Timestamp: 1}},
	}

	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out BatchMsg
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, *in, out)
}

func TestJSONCodec_Name(t *testing.T) {
	assert.Equal(t, "json", jsonCodec{}.Name())
	assert.Equal(t, "json", Name)
}
