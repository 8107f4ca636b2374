package sham

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the tunables spec.md section 3 names, with its defaults as
// the zero-value fallback. The invocation surface (peer address, mode,
// paths, drop rate) is not part of this struct: those are per-run flags
// parsed by cmd/initiator and cmd/responder. This is the knob set an
// operator might want to override without recompiling, loaded from an
// optional YAML file (grounded on tinyrange/cc's use of gopkg.in/yaml.v3
// for its own config), the way a production service would externalize
// rarely-changed constants.
type Config struct {
	// WindowSize is the sender's unacknowledged-segment capacity, in
	// segments.
	WindowSize int `yaml:"window_size"`

	// MaxBufferPackets is the receiver's out-of-order slot count.
	MaxBufferPackets int `yaml:"max_buffer_packets"`

	// ReceiverBufferSize is the receiver's total advertised-window
	// budget, in bytes.
	ReceiverBufferSize int `yaml:"receiver_buffer_size"`

	// InitialEstimatedRTTMillis, InitialDevRTTMillis and
	// InitialRTOMillis seed the RTT estimator.
	InitialEstimatedRTTMillis int64 `yaml:"initial_estimated_rtt_millis"`
	InitialDevRTTMillis       int64 `yaml:"initial_dev_rtt_millis"`
	InitialRTOMillis          int64 `yaml:"initial_rto_millis"`

	// MinRTOMillis and MaxRTOMillis clamp the RTO.
	MinRTOMillis int64 `yaml:"min_rto_millis"`
	MaxRTOMillis int64 `yaml:"max_rto_millis"`

	// HandshakeTimeoutMillis bounds SYN_SENT.
	HandshakeTimeoutMillis int64 `yaml:"handshake_timeout_millis"`

	// FinRetries and FinRetryTimeoutMillis bound the teardown retry
	// rule.
	FinRetries            int   `yaml:"fin_retries"`
	FinRetryTimeoutMillis int64 `yaml:"fin_retry_timeout_millis"`

	// ProducerPollMillis is the event loop's poll deadline when the
	// send window is empty.
	ProducerPollMillis int64 `yaml:"producer_poll_millis"`
}

// DefaultConfig returns the constants spec.md section 3 and 4.6 specify.
func DefaultConfig() Config {
	return Config{
		WindowSize:                4,
		MaxBufferPackets:          10,
		ReceiverBufferSize:        8192,
		InitialEstimatedRTTMillis: 500,
		InitialDevRTTMillis:       0,
		InitialRTOMillis:          1000,
		MinRTOMillis:              100,
		MaxRTOMillis:              5000,
		HandshakeTimeoutMillis:    3000,
		FinRetries:                5,
		FinRetryTimeoutMillis:     1000,
		ProducerPollMillis:        1000,
	}
}

// LoadConfig reads tunables from a YAML file at path, starting from
// DefaultConfig so an omitted field keeps its spec default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config file %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config file %q", path)
	}
	return cfg, nil
}
