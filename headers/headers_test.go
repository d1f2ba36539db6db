package headers

import (
	"testing"

	"github.com/cockroachdb/crlib/testutils/require"
)

func TestSetReplacesAllPriorOccurrences(t *testing.T) {
	h := NewHeaders()
	h.Add("X-Foo", "1")
	h.Add("x-foo", "2")
	h.Set("X-FOO", "3")

	require.Equal(t, []string{"3"}, h.Values("x-foo"))
	v, ok := h.Get("x-foo")
	require.True(t, ok)
	require.Equal(t, "3", v)
}

func TestFieldsPreservesOrderAndSkipsTombstones(t *testing.T) {
	h := NewHeaders()
	h.Add("a", "1")
	h.Add("b", "2")
	h.Add("a", "3")
	h.Set("a", "4")

	fields := h.Fields()
	require.Equal(t, 2, len(fields))
	require.Equal(t, "a", fields[0].Name)
	require.Equal(t, "4", fields[0].Value)
	require.Equal(t, "b", fields[1].Name)
}

func TestOrdinaryFieldsExcludesPseudoHeaders(t *testing.T) {
	h := NewHeaders()
	h.Set(PseudoMethod, "GET")
	h.Set(PseudoPath, "/")
	h.Add("accept", "*/*")

	out := h.OrdinaryFields()
	require.Equal(t, 1, len(out))
	require.Equal(t, "accept", out[0].Name)
}

func TestCommaListHelpers(t *testing.T) {
	require.True(t, CommaListHas("keep-alive, Upgrade", "upgrade"))
	require.False(t, CommaListHas("close", "keep-alive"))

	last, ok := LastCommaToken("gzip, chunked")
	require.True(t, ok)
	require.Equal(t, "chunked", last)

	_, ok = LastCommaToken("")
	require.False(t, ok)
}

func TestClone(t *testing.T) {
	h := NewHeaders()
	h.Add("accept", "*/*")
	clone := h.Clone()
	clone.Add("accept", "text/plain")

	require.Equal(t, 1, len(h.Values("accept")))
	require.Equal(t, 2, len(clone.Values("accept")))
}
