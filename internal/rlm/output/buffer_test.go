package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBufferNoTruncationUnderCap(t *testing.T) {
	b := New(2000)
	b.Write("hello")
	require.Equal(t, "hello", b.Flush())
}

func TestBufferTruncationSuffix(t *testing.T) {
	b := New(2000)
	b.Write(strings.Repeat("x", 10000) + "\n")
	got := b.Flush()
	want := strings.Repeat("x", 2000) + "\n\n[truncated 10001 chars -> 2000]"
	require.Equal(t, want, got)
}

func TestBufferLenBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cap := rapid.IntRange(1, 500).Draw(t, "cap")
		n := rapid.IntRange(0, 2000).Draw(t, "n")
		b := New(cap)
		b.Write(strings.Repeat("a", n))
		out := b.Flush()
		if n <= cap {
			assert.Equal(t, n, len(out))
		} else {
			suffix := "\n\n[truncated " + itoa(n) + " chars -> " + itoa(cap) + "]"
			assert.True(t, strings.HasSuffix(out, suffix))
			assert.Equal(t, cap+len(suffix), len(out))
		}
	})
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
