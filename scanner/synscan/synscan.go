// Package synscan implements a half open TCP scan over a raw socket. It
// crafts a SYN probe per port with the segment codec, then matches raw
// replies back to probes: a SYN ACK acknowledging our sequence number marks
// the port open, a RST marks it closed, and silence past the read timeout
// marks it filtered. Probes never complete a handshake, so the target's
// accept queue is left alone.
//
// Raw sockets need elevated privileges; without them MakeScanner fails and
// the connect engine is the fallback.
package synscan

import (
	"bytes"
	"math/rand"
	"net"
	"time"

	"github.com/juju/ratelimit"
	"golang.org/x/net/ipv4"

	"github.com/FreibergVlad/port-scanner/layers/ip"
	"github.com/FreibergVlad/port-scanner/layers/tcp"
	"github.com/FreibergVlad/port-scanner/scanner"
)

type Config struct {
	// TargetIP is the host being swept.
	TargetIP [4]byte

	// SourceIP must be the address the kernel routes probes from, since
	// it feeds the checksum pseudo header and reply matching.
	SourceIP [4]byte

	// SourcePort of 0 picks a random ephemeral port.
	SourcePort uint16

	// Template shapes the probes. An empty template means "default".
	Template scanner.ProbeTemplate

	// ProbesPerSecond of 0 disables rate limiting.
	ProbesPerSecond float64

	// ReadTimeout bounds how long replies are awaited once the last
	// probe is out. 0 means 2 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single raw socket write. 0 waits
	// indefinitely.
	WriteTimeout time.Duration
}

// Scanner is a half open scan engine. It supports one Scan at a time.
type Scanner struct {
	conf    Config
	rawConn *ipv4.RawConn
	bucket  *ratelimit.Bucket
	rand    *rand.Rand

	// replyNetwork carries the target to source addressing that reply
	// checksums are verified against.
	replyNetwork *ip.Packet

	replies    chan reply
	scanCancel chan bool
}

// reply is a raw packet boiled down to the fields probe matching needs.
type reply struct {
	port  uint16
	ack   uint32
	flags tcp.ControlBits
	at    time.Time
}

// pendingProbe records what was sent to one port so its reply can be
// recognized and timed.
type pendingProbe struct {
	seq  uint32
	sent time.Time
}

// MakeScanner opens the raw connection and starts the reader. Zero config
// fields are filled with usable defaults.
func MakeScanner(conf Config) (*Scanner, error) {
	s := &Scanner{
		conf:       conf,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
		replies:    make(chan reply, 64),
		scanCancel: make(chan bool),
	}
	if s.conf.Template.BuildOptions == nil {
		t, err := scanner.TemplateByName("default")
		if err != nil {
			return nil, err
		}
		s.conf.Template = t
	}
	if s.conf.SourcePort == 0 {
		// The upper half of the ephemeral range, clear of listeners.
		s.conf.SourcePort = uint16(32768 + s.rand.Intn(28232))
	}
	if s.conf.ReadTimeout <= 0 {
		s.conf.ReadTimeout = 2 * time.Second
	}
	if s.conf.ProbesPerSecond > 0 {
		capacity := int64(s.conf.ProbesPerSecond)
		if capacity < 1 {
			capacity = 1
		}
		s.bucket = ratelimit.NewBucketWithRate(s.conf.ProbesPerSecond, capacity)
	}

	replyNetwork, err := ip.New(ip.Fields{
		SourceAddress:      net.IP(s.conf.TargetIP[:]),
		DestinationAddress: net.IP(s.conf.SourceIP[:]),
	})
	if err != nil {
		return nil, err
	}
	s.replyNetwork = replyNetwork

	conn, err := net.ListenPacket("ip4:6", "0.0.0.0")
	if err != nil {
		return nil, err
	}
	s.rawConn, err = ipv4.NewRawConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	go s.readLoop()
	return s, nil
}

// Scan probes every port and streams one Result per port to results, in no
// particular order. It returns early if the engine is closed.
func (s *Scanner) Scan(ports []uint16, results chan<- scanner.Result) error {
	pending := make(map[uint16]pendingProbe, len(ports))

	classify := func(r reply) {
		probe, ok := pending[r.port]
		if !ok {
			return
		}
		var result scanner.Result
		switch {
		case r.flags.SYN() && r.flags.ACK():
			// Only a reply acknowledging our sequence number speaks
			// for the probe.
			if r.ack != probe.seq+1 {
				return
			}
			result = scanner.Result{Port: r.port, State: scanner.StateOpen, Reason: scanner.ReasonSynAck, RTT: r.at.Sub(probe.sent)}
		case r.flags.RST():
			result = scanner.Result{Port: r.port, State: scanner.StateClosed, Reason: scanner.ReasonReset, RTT: r.at.Sub(probe.sent)}
		default:
			return
		}
		delete(pending, r.port)
		results <- result
	}

	for _, port := range ports {
		if s.bucket != nil {
			// Take instead of Wait keeps the pause cancellable.
			select {
			case <-time.After(s.bucket.Take(1)):
			case <-s.scanCancel:
				return scanner.ErrCancelled
			}
		}

		seq := s.rand.Uint32()
		p, h, err := s.buildProbe(port, seq)
		if err != nil {
			return err
		}
		cm := createCM(s.conf.SourceIP, s.conf.TargetIP, s.conf.Template.TTL)
		if err := s.writeConn(h, p, &cm); err != nil {
			select {
			case <-s.scanCancel:
				return scanner.ErrCancelled
			default:
			}
			return err
		}
		pending[port] = pendingProbe{seq: seq, sent: time.Now()}

		// Drain replies that already arrived so the pending map stays
		// small on large sweeps.
	drain:
		for {
			select {
			case r := <-s.replies:
				classify(r)
			default:
				break drain
			}
		}
	}

	deadline := time.After(s.conf.ReadTimeout)
	for len(pending) > 0 {
		select {
		case r := <-s.replies:
			classify(r)
		case <-deadline:
			for port := range pending {
				results <- scanner.Result{Port: port, State: scanner.StateFiltered, Reason: scanner.ReasonTimeout}
			}
			return nil
		case <-s.scanCancel:
			return scanner.ErrCancelled
		}
	}
	return nil
}

// Close cancels an in flight Scan and releases the raw connection.
func (s *Scanner) Close() error {
	select {
	case <-s.scanCancel:
	default:
		close(s.scanCancel)
	}
	return s.rawConn.Close()
}

// readLoop pushes decoded replies until the raw connection is closed.
func (s *Scanner) readLoop() {
	buf := make([]byte, 1024)
	for {
		h, p, _, err := s.rawConn.ReadFrom(buf)
		if err != nil {
			return
		}
		if r, ok := s.decodeReply(h, p); ok {
			select {
			case s.replies <- r:
			case <-s.scanCancel:
				return
			}
		}
	}
}

// decodeReply filters one raw packet down to a reply. Packets from other
// hosts, other flows, or with bad checksums are dropped.
func (s *Scanner) decodeReply(h *ipv4.Header, p []byte) (reply, bool) {
	if h == nil {
		return reply{}, false
	}
	if !bytes.Equal(h.Src.To4(), s.conf.TargetIP[:]) || !bytes.Equal(h.Dst.To4(), s.conf.SourceIP[:]) {
		return reply{}, false
	}
	if err := tcp.VerifyChecksum(p, s.replyNetwork); err != nil {
		return reply{}, false
	}
	segment, err := tcp.FromBytes(p)
	if err != nil {
		return reply{}, false
	}
	if segment.DestinationPort() != s.conf.SourcePort {
		return reply{}, false
	}
	return reply{
		port:  segment.SourcePort(),
		ack:   segment.AckNumber(),
		flags: segment.Flags(),
		at:    time.Now(),
	}, true
}

// buildProbe crafts the SYN segment for one port and the carrying IP
// header for the raw connection.
func (s *Scanner) buildProbe(port uint16, seq uint32) ([]byte, *ipv4.Header, error) {
	network, err := ip.New(ip.Fields{
		SourceAddress:      net.IP(s.conf.SourceIP[:]),
		DestinationAddress: net.IP(s.conf.TargetIP[:]),
		TTL:                s.conf.Template.TTL,
		Identification:     uint16(s.rand.Uint32()),
		DontFragment:       true,
	})
	if err != nil {
		return nil, nil, err
	}

	segment, err := tcp.New(tcp.Fields{
		SourcePort:      int(s.conf.SourcePort),
		DestinationPort: int(port),
		SequenceNumber:  seq,
		Flags:           tcp.NewControlBits(tcp.ControlFlags{SYN: true}),
		WindowSize:      s.conf.Template.WindowSize,
		Options:         s.conf.Template.BuildOptions(uint32(time.Now().UnixMilli())),
	})
	if err != nil {
		return nil, nil, err
	}
	segment.SetUnderlying(network)

	p, err := segment.ToBytes()
	if err != nil {
		return nil, nil, err
	}
	return p, createIPHeader(s.conf.SourceIP, s.conf.TargetIP, s.conf.Template.TTL, len(p)), nil
}

// writeConn writes to the raw connection while setting a timeout if
// necessary.
func (s *Scanner) writeConn(h *ipv4.Header, p []byte, cm *ipv4.ControlMessage) error {
	if s.conf.WriteTimeout > 0 {
		s.rawConn.SetWriteDeadline(time.Now().Add(s.conf.WriteTimeout))
	} else {
		// A deadline of zero means never timeout.
		s.rawConn.SetWriteDeadline(time.Time{})
	}
	return s.rawConn.WriteTo(h, p, cm)
}

// createIPHeader builds the header the raw connection prepends to a probe.
func createIPHeader(src, dst [4]byte, ttl uint8, payloadLen int) *ipv4.Header {
	return &ipv4.Header{
		Version:  4,
		Len:      ip.HeaderLength,
		TotalLen: ip.HeaderLength + payloadLen,
		Flags:    ipv4.DontFragment,
		TTL:      int(ttl),
		Protocol: int(tcp.ProtocolNumber),
		Src:      src[:],
		Dst:      dst[:],
	}
}

// createCM builds the control message sent with a probe.
func createCM(src, dst [4]byte, ttl uint8) ipv4.ControlMessage {
	return ipv4.ControlMessage{
		TTL:     int(ttl),
		Src:     src[:],
		Dst:     dst[:],
		IfIndex: 0,
	}
}
