package canonicalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_SortsKeysRecursively(t *testing.T) {
	b, err := JCS(map[string]any{
		"z": map[string]any{"y": "foo", "x": "bar"},
		"a": 1,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"z":{"x":"bar","y":"foo"}}`, string(b))
}

func TestJCS_StructTagsAndFieldOrder(t *testing.T) {
	type rec struct {
		Sequence uint64 `json:"sequence_no"`
		App      string `json:"application_id"`
	}
	b, err := JCS(rec{Sequence: 7, App: "APP-1"})
	require.NoError(t, err)
	assert.Equal(t, `{"application_id":"APP-1","sequence_no":7}`, string(b))
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	b, err := JCS(map[string]string{"owner": "A & B <Trust>"})
	require.NoError(t, err)
	assert.Equal(t, `{"owner":"A & B <Trust>"}`, string(b))
}

func TestJCS_Numbers(t *testing.T) {
	tests := map[string]string{
		`1.0`:      `1`,
		`-0`:       `0`,
		`2.50`:     `2.5`,
		`1e21`:     `1e+21`,
		`1e-7`:     `1e-7`,
		`0.000001`: `0.000001`,
		`123e2`:    `12300`,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			b, err := JCS(json.RawMessage(in))
			require.NoError(t, err)
			assert.Equal(t, want, string(b))
		})
	}
}

func TestJCS_StringEscapes(t *testing.T) {
	b, err := JCS("line\nbreak\t\"quoted\"\u0001")
	require.NoError(t, err)
	assert.Equal(t, `"line\nbreak\t\"quoted\"\u0001"`, string(b))
}

func TestJCS_UTF16KeyOrder(t *testing.T) {
	// U+1F600 sorts before U+FB01 in UTF-16 (surrogate 0xD83D < 0xFB01)
	// but after it in UTF-8 byte order.
	b, err := JCS(map[string]int{"ﬁ": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"ﬁ\":1}", string(b))
}

func TestCanonicalHash_StableAcrossSpelling(t *testing.T) {
	h1, err := CanonicalHash(json.RawMessage(`{"b": 2.0, "a": "x"}`))
	require.NoError(t, err)
	h2, err := CanonicalHash(map[string]any{"a": "x", "b": 2})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashBytes(nil))
}
