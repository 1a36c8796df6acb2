package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"leading whitespace", "  \n```json\n[1,2]\n```  ", `[1,2]`},
		{"no newline after fence", "```{\"a\":1}```", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripFences(tc.in))
		})
	}
}

func TestFirstObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"prose around", `Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"nested", `x {"a":{"b":2}} y`, `{"a":{"b":2}}`},
		{"brace in string", `{"a":"}"}`, `{"a":"}"}`},
		{"escaped quote in string", `{"a":"\"}"}`, `{"a":"\"}"}`},
		{"none", "no json here", ""},
		{"unbalanced", `{"a":1`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FirstObject(tc.in))
		})
	}
}

func TestFirstArray(t *testing.T) {
	assert.Equal(t, `[{"a":1},{"b":2}]`, FirstArray(`result: [{"a":1},{"b":2}] done`))
	assert.Equal(t, "", FirstArray(`{"a":1}`))
}

func TestDecodeObject(t *testing.T) {
	var out struct {
		Intent string `json:"intent"`
	}
	err := DecodeObject("```json\n{\"intent\":\"search\"}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, "search", out.Intent)

	err = DecodeObject("nothing useful", &out)
	assert.Error(t, err)
}

func TestDecodeArrayWrapsLoneObject(t *testing.T) {
	var out []map[string]any
	err := DecodeArray(`{"tool":"web_search"}`, &out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "web_search", out[0]["tool"])
}

func TestDecodeArray(t *testing.T) {
	var out []int
	require.NoError(t, DecodeArray("```\n[1,2,3]\n```", &out))
	assert.Equal(t, []int{1, 2, 3}, out)

	assert.Error(t, DecodeArray("", &out))
}
