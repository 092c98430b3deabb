package port

import (
	"fmt"
	"net"
	"strings"

	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// Endpoint is one listener the daemon intends to bind.
type Endpoint struct {
	// Name identifies the component that wants the address in error
	// messages, e.g. "http_server" or "udp_collector".
	Name string

	// Network is "tcp" or "udp".
	Network string

	// Address is the configured listen address, e.g. ":6789".
	Address string
}

// Scanner checks whether listen addresses are free on the host.
//
// It asks the operating system directly: if the address can be bound,
// it is free. The probe listener is closed immediately, only
// bindability matters.
type Scanner struct{}

// NewScanner returns a Scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Available reports whether the address can currently be bound on the
// given network ("tcp" or "udp"). Unknown networks report unavailable.
func (s *Scanner) Available(network, address string) bool {
	switch network {
	case "tcp":
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return false
		}
		defer func() { _ = listener.Close() }()
		return true

	case "udp":
		conn, err := net.ListenPacket("udp", address)
		if err != nil {
			return false
		}
		defer func() { _ = conn.Close() }()
		return true

	default:
		return false
	}
}

// Check probes every endpoint and returns an error naming the ones
// already bound by another process. There is an unavoidable window
// between the probe and the real bind, so the daemon's listeners still
// handle bind errors themselves; Check exists to turn the common case
// into one readable startup failure.
func (s *Scanner) Check(endpoints []Endpoint) error {
	var busy []string
	for _, ep := range endpoints {
		if !s.Available(ep.Network, ep.Address) {
			busy = append(busy, fmt.Sprintf("%s (%s %s)", ep.Name, ep.Network, ep.Address))
		}
	}
	if len(busy) == 0 {
		return nil
	}
	return model.NewCLIError(
		model.ExitGeneralError,
		fmt.Sprintf("address already in use: %s", strings.Join(busy, ", ")),
	)
}
