// Package connectscan implements a full handshake scan through the
// operating system's connect path. It needs no privileges: a completed
// connection marks the port open and is torn down at once, a refusal marks
// it closed, and a dial timeout marks it filtered.
package connectscan

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/juju/ratelimit"

	"github.com/FreibergVlad/port-scanner/scanner"
)

type Config struct {
	// TargetIP is the host being swept.
	TargetIP [4]byte

	// DialTimeout bounds each connection attempt. 0 means 2 seconds.
	DialTimeout time.Duration

	// ProbesPerSecond of 0 disables rate limiting.
	ProbesPerSecond float64
}

// Scanner is a connect scan engine. It supports one Scan at a time.
type Scanner struct {
	conf       Config
	bucket     *ratelimit.Bucket
	scanCancel chan bool
}

// MakeScanner builds the engine. Zero config fields are filled with usable
// defaults.
func MakeScanner(conf Config) (*Scanner, error) {
	s := &Scanner{conf: conf, scanCancel: make(chan bool)}
	if s.conf.DialTimeout <= 0 {
		s.conf.DialTimeout = 2 * time.Second
	}
	if s.conf.ProbesPerSecond > 0 {
		capacity := int64(s.conf.ProbesPerSecond)
		if capacity < 1 {
			capacity = 1
		}
		s.bucket = ratelimit.NewBucketWithRate(s.conf.ProbesPerSecond, capacity)
	}
	return s, nil
}

// Scan dials every port in turn and streams one Result per port to
// results. It returns early if the engine is closed.
func (s *Scanner) Scan(ports []uint16, results chan<- scanner.Result) error {
	// The dialer wants a context, the engine cancels through a closed
	// channel; bridge the two for the lifetime of the sweep.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.scanCancel:
			cancel()
		case <-ctx.Done():
		}
	}()

	host := net.IP(s.conf.TargetIP[:]).String()
	for _, port := range ports {
		select {
		case <-s.scanCancel:
			return scanner.ErrCancelled
		default:
		}
		if s.bucket != nil {
			select {
			case <-time.After(s.bucket.Take(1)):
			case <-s.scanCancel:
				return scanner.ErrCancelled
			}
		}

		dialer := net.Dialer{Timeout: s.conf.DialTimeout}
		start := time.Now()
		conn, err := dialer.DialContext(ctx, "tcp4", net.JoinHostPort(host, strconv.Itoa(int(port))))
		rtt := time.Since(start)

		switch {
		case err == nil:
			conn.Close()
			results <- scanner.Result{Port: port, State: scanner.StateOpen, Reason: scanner.ReasonConnected, RTT: rtt}
		case ctx.Err() != nil:
			return scanner.ErrCancelled
		case errors.Is(err, syscall.ECONNREFUSED):
			results <- scanner.Result{Port: port, State: scanner.StateClosed, Reason: scanner.ReasonRefused, RTT: rtt}
		default:
			// Timeouts and unreachable routes both read as a silent
			// drop from here.
			results <- scanner.Result{Port: port, State: scanner.StateFiltered, Reason: scanner.ReasonTimeout, RTT: rtt}
		}
	}
	return nil
}

// Close cancels an in flight Scan.
func (s *Scanner) Close() error {
	select {
	case <-s.scanCancel:
	default:
		close(s.scanCancel)
	}
	return nil
}
