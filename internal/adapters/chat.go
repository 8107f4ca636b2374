// Package adapters implements the two Producer/Consumer pairs spec.md
// section 6 names: an interactive chat mode over stdin/stdout, and a file
// transfer mode with an MD5 integrity check. Each is a capability object
// rather than a global stdin reader, per spec.md's Design Notes on
// injectable collaborators.
package adapters

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// chatTerminator is the trailing byte chat mode appends to every line sent,
// so the peer's consumer knows where one message ends.
const chatTerminator = '\x00'

// ChatProducer reads stdin line by line in a background goroutine (so
// NextPayload never blocks the event loop) and hands each line, with its
// trailing terminator, to the caller.
type ChatProducer struct {
	lines chan []byte
	eof   chan struct{}
}

// NewChatProducer starts the background stdin reader. If stdin is an
// interactive terminal, it prints a small prompt banner the way an
// interactive chat client would.
func NewChatProducer(in io.Reader) *ChatProducer {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintln(os.Stderr, "sham chat: type a line and press enter to send, Ctrl-D to close")
	}

	p := &ChatProducer{
		lines: make(chan []byte, 16),
		eof:   make(chan struct{}),
	}
	go p.pump(in)
	return p
}

func (p *ChatProducer) pump(in io.Reader) {
	defer close(p.eof)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := append([]byte(scanner.Text()), chatTerminator)
		p.lines <- line
	}
}

// NextPayload implements Producer. A line sent by pump is always fully
// buffered before the eof channel is closed, so once eof is observed the
// lines channel is checked again; finding it empty then means the stream is
// genuinely exhausted, not a race.
func (p *ChatProducer) NextPayload() ([]byte, bool, bool) {
	select {
	case line := <-p.lines:
		return line, true, false
	default:
	}

	select {
	case <-p.eof:
		select {
		case line := <-p.lines:
			return line, true, false
		default:
		}
		return nil, false, true
	default:
		return nil, false, false
	}
}

// ChatConsumer writes delivered bytes to stdout, splitting on the chat
// terminator so each sent line prints on its own line.
type ChatConsumer struct {
	out     io.Writer
	partial []byte
}

// NewChatConsumer wraps out, normally os.Stdout.
func NewChatConsumer(out io.Writer) *ChatConsumer {
	return &ChatConsumer{out: out}
}

// Deliver implements Consumer.
func (c *ChatConsumer) Deliver(b []byte) {
	c.partial = append(c.partial, b...)
	for {
		idx := bytes.IndexByte(c.partial, chatTerminator)
		if idx < 0 {
			return
		}
		fmt.Fprintf(c.out, "peer> %s\n", c.partial[:idx])
		c.partial = c.partial[idx+1:]
	}
}

// Close implements Consumer; stdout needs no flush.
func (c *ChatConsumer) Close() error {
	return nil
}
