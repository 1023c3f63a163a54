package tts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailBuffer_KeepsLastBytes(t *testing.T) {
	t.Parallel()

	tail := newTailBuffer(8)

	_, _ = tail.Write([]byte("abcd"))
	assert.Equal(t, "abcd", tail.String())

	_, _ = tail.Write([]byte("efghij"))
	assert.Equal(t, "cdefghij", tail.String())

	n, err := tail.Write([]byte(strings.Repeat("z", 20) + "12345678"))
	assert.NoError(t, err)
	assert.Equal(t, 28, n, "writes always report full length")
	assert.Equal(t, "12345678", tail.String())
}
