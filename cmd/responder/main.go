// Command responder listens for a single SHAM connection and either prints
// chat lines or receives a file, per spec.md section 6's invocation
// surface.
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

const (
	exitOK              = 0
	exitInvalidArgument = 1
	exitHandshakeFailed = 2
	exitFileOpenFailed  = 3
	exitCloseTimeout    = 4
	exitIoError         = 5
)

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
		bindAddr    string
		mode        string
		outputPath  string
		dropRate    float64
		configPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:           "responder",
		Short:         "Listen for a single SHAM connection and receive a chat session or a file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResponder(bindAddr, mode, outputPath, configPath, metricsAddr, dropRate)
		},
	}
	cmd.Flags().StringVar(&bindAddr, "bind", ":9000", "local address to bind, host:port")
	cmd.Flags().StringVar(&mode, "mode", "chat", "transfer mode: chat or file")
	cmd.Flags().StringVar(&outputPath, "output", "received.out", "file to write to (file mode)")
	cmd.Flags().Float64Var(&dropRate, "drop-rate", 0, "probabilistic outbound drop rate in [0,1]")
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML tunables file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "optional address to serve Prometheus metrics on")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sham-responder: %v\n", err)
		var ec *exitCode
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		os.Exit(exitInvalidArgument)
	}
}

func runResponder(bindAddr, mode, outputPath, configPath, metricsAddr string, dropRate float64) error {
	if mode != "chat" && mode != "file" {
		return fail(exitInvalidArgument, fmt.Errorf("unknown --mode %q", mode))
	}

	log := logrus.NewEntry(logrus.StandardLogger())

	laddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return fail(exitInvalidArgument, fmt.Errorf("resolving --bind: %w", err))
	}

	cfg, err := sham.LoadConfig(configPath)
	if err != nil {
		return fail(exitInvalidArgument, err)
	}

	if metricsAddr != "" {
		metrics.ServeHTTP(metricsAddr)
	}

	ep, err := dgram.Listen(laddr)
	if err != nil {
		return fail(exitIoError, err)
	}
	defer ep.Close()

	tracer, err := trace.New("responder")
	if err != nil {
		return fail(exitIoError, fmt.Errorf("opening trace log: %w", err))
	}
	defer tracer.Close()

	var mc *metrics.Collector
	if metricsAddr != "" {
		mc = metrics.New(prometheus.DefaultRegisterer, "responder")
	}

	loss := lossy.NewPolicy(dropRate, rand.New(rand.NewSource(2)))
	conn := sham.NewConnection(sham.RoleResponder, cfg, ep, loss, tracer, mc, log)

	producer, consumer, err := buildResponderAdapters(mode, outputPath)
	if err != nil {
		return fail(exitFileOpenFailed, err)
	}
	conn.Attach(producer, consumer)

	if mc != nil {
		stopWatch := watchConnectionState(conn, mc)
		defer stopWatch()
	}

	log.WithField("bind", ep.LocalAddr().String()).Info("listening for a connection")
	if err := conn.AcceptResponder(); err != nil {
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

func buildResponderAdapters(mode, outputPath string) (sham.Producer, sham.Consumer, error) {
	switch mode {
	case "file":
		c, err := adapters.NewFileConsumer(outputPath)
		if err != nil {
			return nil, nil, err
		}
		return adapters.NoopProducer{}, c, nil
	default:
		return adapters.NewChatProducer(os.Stdin), adapters.NewChatConsumer(os.Stdout), nil
	}
}
