package clarification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	s := New()
	s.Put("tok-1", "hello world", "sess-1")

	p, ok := s.Get("tok-1")
	require.True(t, ok)
	assert.Equal(t, "hello world", p.OriginalMessage)
	assert.Equal(t, "sess-1", p.SessionID)
	assert.Equal(t, 1, s.Len())
}

func TestResolveRemoves(t *testing.T) {
	s := New()
	s.Put("tok-2", "msg", "")

	p, ok := s.Resolve("tok-2")
	require.True(t, ok)
	assert.Equal(t, "msg", p.OriginalMessage)

	_, ok = s.Get("tok-2")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestResolveMissingReturnsFalse(t *testing.T) {
	s := New()
	_, ok := s.Resolve("nope")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	s := New()
	s.Put("a", "1", "")
	s.Put("b", "2", "")
	s.Clear()
	assert.Equal(t, 0, s.Len())
}
