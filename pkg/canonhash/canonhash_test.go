package canonhash

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	t.Run("sorts object keys recursively", func(t *testing.T) {
		out, err := Canonicalize([]byte(`{"b":1,"a":{"z":true,"y":null}}`))
		require.NoError(t, err)
		assert.Equal(t, `{"a":{"y":null,"z":true},"b":1}`, string(out))
	})

	t.Run("strips whitespace", func(t *testing.T) {
		out, err := Canonicalize([]byte("{\n  \"k\" : [ 1 , 2 ]\n}"))
		require.NoError(t, err)
		assert.Equal(t, `{"k":[1,2]}`, string(out))
	})

	t.Run("preserves array order", func(t *testing.T) {
		out, err := Canonicalize([]byte(`[3,1,2]`))
		require.NoError(t, err)
		assert.Equal(t, `[3,1,2]`, string(out))
	})

	t.Run("preserves number literals", func(t *testing.T) {
		out, err := Canonicalize([]byte(`{"n":12345678901234567890,"f":0.1}`))
		require.NoError(t, err)
		assert.Equal(t, `{"f":0.1,"n":12345678901234567890}`, string(out))
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := Canonicalize([]byte(`{"unterminated`))
		require.Error(t, err)
	})
}

func TestSum256(t *testing.T) {
	t.Run("identical content hashes equal regardless of key order", func(t *testing.T) {
		h1, err := Sum256(map[string]any{"field_key": "email", "value": "a@b.c"})
		require.NoError(t, err)
		h2, err := Sum256(map[string]any{"value": "a@b.c", "field_key": "email"})
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
	})

	t.Run("different content hashes differ", func(t *testing.T) {
		h1, err := Sum256(map[string]any{"value": "old"})
		require.NoError(t, err)
		h2, err := Sum256(map[string]any{"value": "new"})
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2)
	})

	t.Run("raw message and decoded form hash equal", func(t *testing.T) {
		type payload struct {
			Value json.RawMessage `json:"value"`
		}
		h1, err := Sum256(payload{Value: json.RawMessage(`{"b": 2, "a": 1}`)})
		require.NoError(t, err)
		h2, err := Sum256(payload{Value: json.RawMessage(`{"a":1,"b":2}`)})
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
	})

	t.Run("hex encoded sha256 length", func(t *testing.T) {
		h, err := Sum256("x")
		require.NoError(t, err)
		assert.Len(t, h, 64)
	})
}
