package adapters

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// fileChunkSize caps how many bytes FileProducer hands the send window in
// one NextPayload call. It equals wire.MaxPayloadSize: internal/sham sends
// each payload as a single packet without splitting it, and the peer's
// decoder rejects larger payloads. Keeping an adapter-level constant avoids
// a direct dependency on the wire package.
const fileChunkSize = 1024

// FileProducer streams a file's contents in fixed-size chunks.
type FileProducer struct {
	f   *os.File
	eof bool
}

// NewFileProducer opens path for reading.
func NewFileProducer(path string) (*FileProducer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q for sending", path)
	}
	return &FileProducer{f: f}, nil
}

// NextPayload implements Producer. Unlike ChatProducer, reading a regular
// file never blocks meaningfully, so this runs synchronously on the event
// loop's own goroutine rather than through a pump.
func (p *FileProducer) NextPayload() ([]byte, bool, bool) {
	if p.eof {
		return nil, false, true
	}

	buf := make([]byte, fileChunkSize)
	n, err := p.f.Read(buf)
	if n > 0 {
		return buf[:n], true, false
	}
	if err == io.EOF || err == nil {
		p.eof = true
		p.f.Close()
		return nil, false, true
	}
	p.eof = true
	p.f.Close()
	return nil, false, true
}

// FileConsumer writes delivered bytes to a file and computes a running MD5
// digest, per spec.md section 6's integrity check.
type FileConsumer struct {
	f      *os.File
	digest hashWriter
	path   string
}

// hashWriter is the subset of hash.Hash FileConsumer needs; declared
// locally so this file doesn't need to import "hash" just for the
// interface name.
type hashWriter interface {
	io.Writer
	Sum([]byte) []byte
}

// NewFileConsumer creates (or truncates) path for writing.
func NewFileConsumer(path string) (*FileConsumer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %q for receiving", path)
	}
	return &FileConsumer{f: f, digest: md5.New(), path: path}, nil
}

// Deliver implements Consumer.
func (c *FileConsumer) Deliver(b []byte) {
	c.f.Write(b)
	c.digest.Write(b)
}

// Close flushes the file and prints the final MD5 digest, matching the
// original C responder's behavior of printing a checksum once the transfer
// completes.
func (c *FileConsumer) Close() error {
	sum := c.digest.Sum(nil)
	fmt.Fprintf(os.Stderr, "sham: wrote %s, md5=%s\n", c.path, hex.EncodeToString(sum))
	return c.f.Close()
}
