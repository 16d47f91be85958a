// Package scanner defines the contract scan engines implement and the
// result model they report, along with the helpers the engines share:
// port specification parsing, sweep order shuffling, and probe templates.
package scanner

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is returned by Scan when the engine is closed under it.
var ErrCancelled = errors.New("scanner: scan cancelled")

// PortState is the verdict for a probed port.
type PortState uint8

const (
	// StateFiltered means no conclusive reply arrived before the
	// engine's timeout, usually a dropping firewall.
	StateFiltered PortState = iota
	StateOpen
	StateClosed
)

func (s PortState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "filtered"
	}
}

// MarshalJSON encodes the state by name rather than ordinal, which is what
// clients and report files want to see.
func (s PortState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PortState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "open":
		*s = StateOpen
	case "closed":
		*s = StateClosed
	case "filtered":
		*s = StateFiltered
	default:
		return fmt.Errorf("scanner: unknown port state %q", name)
	}
	return nil
}

// Reasons attached to results, naming the observation behind the verdict.
const (
	ReasonSynAck    = "syn-ack"
	ReasonReset     = "rst"
	ReasonTimeout   = "timeout"
	ReasonConnected = "connected"
	ReasonRefused   = "refused"
)

// Result is the verdict for a single probed port.
type Result struct {
	Port   uint16        `json:"port"`
	State  PortState     `json:"state"`
	Reason string        `json:"reason"`
	RTT    time.Duration `json:"rtt"`
}

// Scanner is a scan engine bound to one target. Scan probes the given ports
// and streams one Result per port to results, returning once every port has
// a verdict or the engine is closed. Close releases the engine's resources
// and unblocks an in flight Scan.
type Scanner interface {
	Scan(ports []uint16, results chan<- Result) error
	Close() error
}

// Summary aggregates a finished sweep.
type Summary struct {
	Ports    int           `json:"ports"`
	Open     int           `json:"open"`
	Closed   int           `json:"closed"`
	Filtered int           `json:"filtered"`
	Duration time.Duration `json:"duration"`
}

// Summarize counts the verdicts of a sweep that took d.
func Summarize(results []Result, d time.Duration) Summary {
	s := Summary{Ports: len(results), Duration: d}
	for _, r := range results {
		switch r.State {
		case StateOpen:
			s.Open++
		case StateClosed:
			s.Closed++
		default:
			s.Filtered++
		}
	}
	return s
}
