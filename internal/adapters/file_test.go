package adapters

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProducerChunksWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.bin")
	content := make([]byte, fileChunkSize*2+37)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	p, err := NewFileProducer(path)
	require.NoError(t, err)

	var got []byte
	for {
		payload, ok, eof := p.NextPayload()
		if eof {
			break
		}
		require.True(t, ok)
		got = append(got, payload...)
	}
	assert.Equal(t, content, got)

	// Further calls keep reporting eof rather than panicking on the closed file.
	_, ok, eof := p.NextPayload()
	assert.False(t, ok)
	assert.True(t, eof)
}

func TestFileConsumerWritesAndDigests(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	c, err := NewFileConsumer(path)
	require.NoError(t, err)

	c.Deliver([]byte("hello, "))
	c.Deliver([]byte("sham"))
	require.NoError(t, c.Close())

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello, sham", string(written))

	want := md5.Sum([]byte("hello, sham"))
	assert.Equal(t, hex.EncodeToString(want[:]), hex.EncodeToString(c.digest.Sum(nil)))
}
