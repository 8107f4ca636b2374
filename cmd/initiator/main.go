// Command initiator opens a SHAM connection to a responder and transfers
// either interactive chat lines or a file, per spec.md section 6's
// invocation surface.
package main

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dperis/sham/internal/adapters"
	"github.com/dperis/sham/internal/dgram"
	"github.com/dperis/sham/internal/lossy"
	"github.com/dperis/sham/internal/metrics"
	"github.com/dperis/sham/internal/sham"
	"github.com/dperis/sham/internal/trace"
	"github.com/dperis/sham/internal/waiter"
)

// Exit codes per spec.md section 6: 0 on clean teardown, nonzero on
// handshake failure, file-open failure, invalid argument, or close
// timeout.
const (
	exitOK              = 0
	exitInvalidArgument = 1
	exitHandshakeFailed = 2
	exitFileOpenFailed  = 3
	exitCloseTimeout    = 4
	exitIoError         = 5
)

// exitCode lets RunE report which of the above applies; cobra itself only
// distinguishes "no error" from "error".
type exitCode struct {
	code int
	err  error
}

func (e *exitCode) Error() string { return e.err.Error() }
func (e *exitCode) Unwrap() error { return e.err }

func fail(code int, err error) error {
	return &exitCode{code: code, err: err}
}

func main() {
	var (
		peerAddr    string
		mode        string
		inputPath   string
		dropRate    float64
		configPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:           "initiator",
		Short:         "Open a SHAM connection and transfer a chat session or a file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitiator(peerAddr, mode, inputPath, configPath, metricsAddr, dropRate)
		},
	}
	cmd.Flags().StringVar(&peerAddr, "peer", "", "responder address, host:port (required)")
	cmd.Flags().StringVar(&mode, "mode", "chat", "transfer mode: chat or file")
	cmd.Flags().StringVar(&inputPath, "input", "", "file to send (required in file mode)")
	cmd.Flags().Float64Var(&dropRate, "drop-rate", 0, "probabilistic outbound drop rate in [0,1]")
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML tunables file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "optional address to serve Prometheus metrics on")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sham-initiator: %v\n", err)
		var ec *exitCode
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		os.Exit(exitInvalidArgument)
	}
}

func runInitiator(peerAddr, mode, inputPath, configPath, metricsAddr string, dropRate float64) error {
	if peerAddr == "" {
		return fail(exitInvalidArgument, errors.New("--peer is required"))
	}
	if mode != "chat" && mode != "file" {
		return fail(exitInvalidArgument, fmt.Errorf("unknown --mode %q", mode))
	}
	if mode == "file" && inputPath == "" {
		return fail(exitInvalidArgument, errors.New("--input is required in file mode"))
	}

	log := logrus.NewEntry(logrus.StandardLogger())

	peer, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return fail(exitInvalidArgument, fmt.Errorf("resolving --peer: %w", err))
	}

	cfg, err := sham.LoadConfig(configPath)
	if err != nil {
		return fail(exitInvalidArgument, err)
	}

	if metricsAddr != "" {
		metrics.ServeHTTP(metricsAddr)
	}

	ep, err := dgram.Listen(&net.UDPAddr{Port: 0})
	if err != nil {
		return fail(exitIoError, err)
	}
	defer ep.Close()

	tracer, err := trace.New("initiator")
	if err != nil {
		return fail(exitIoError, fmt.Errorf("opening trace log: %w", err))
	}
	defer tracer.Close()

	var mc *metrics.Collector
	if metricsAddr != "" {
		mc = metrics.New(prometheus.DefaultRegisterer, "initiator")
	}

	loss := lossy.NewPolicy(dropRate, rand.New(rand.NewSource(1)))
	conn := sham.NewConnection(sham.RoleInitiator, cfg, ep, loss, tracer, mc, log)

	producer, consumer, err := buildInitiatorAdapters(mode, inputPath)
	if err != nil {
		return fail(exitFileOpenFailed, err)
	}
	conn.Attach(producer, consumer)

	if mc != nil {
		stopWatch := watchConnectionState(conn, mc)
		defer stopWatch()
	}

	log.WithField("peer", peer.String()).Info("opening connection")
	if err := conn.OpenInitiator(peer); err != nil {
		return fail(exitHandshakeFailed, fmt.Errorf("handshake failed: %w", err))
	}
	log.Info("connection established")

	if err := conn.Run(); err != nil {
		if errors.Is(err, sham.ErrCloseTimeout) {
			return fail(exitCloseTimeout, err)
		}
		return fail(exitIoError, err)
	}
	if err := consumer.Close(); err != nil {
		return fail(exitIoError, err)
	}

	log.Info("connection closed")
	return nil
}

// watchConnectionState keeps mc.Connected in step with the connection's
// lifecycle by registering on its waiter queue instead of polling
// conn.State(). Returns a function that unregisters and stops the
// goroutine; call it once the connection is done with.
func watchConnectionState(conn *sham.Connection, mc *metrics.Collector) func() {
	entry, ch := waiter.NewChannelEntry(nil)
	conn.Waiters().EventRegister(&entry, waiter.EventConn|waiter.EventHUp|waiter.EventErr)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				if conn.State() == sham.StateEstablished {
					mc.Connected.Set(1)
				} else {
					mc.Connected.Set(0)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		conn.Waiters().EventUnregister(&entry)
	}
}

func buildInitiatorAdapters(mode, inputPath string) (sham.Producer, sham.Consumer, error) {
	switch mode {
	case "file":
		p, err := adapters.NewFileProducer(inputPath)
		if err != nil {
			return nil, nil, err
		}
		return p, adapters.DiscardConsumer{}, nil
	default:
		return adapters.NewChatProducer(os.Stdin), adapters.NewChatConsumer(os.Stdout), nil
	}
}
