package tcp

import (
	"bytes"
	"encoding/hex"
	"errors"
	"net"
	"testing"

	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"

	"github.com/FreibergVlad/port-scanner/layers"
	"github.com/FreibergVlad/port-scanner/layers/ip"
)

// Hex dump of a captured ACK segment from 192.168.1.32:59700 to
// 35.160.240.60:443 with two no-ops and a timestamps option, checksum
// included.
const hexDumpACK = "e93401bb53e4d83ddb2622df801001f5915600000101080ac1dd083515c518dd"

func goldenFields() Fields {
	return Fields{
		SourcePort:      59700,
		DestinationPort: 443,
		SequenceNumber:  1407506493,
		AckNumber:       3676709599,
		Flags:           NewControlBits(ControlFlags{ACK: true}),
		WindowSize:      501,
		Options:         Options{NoOp{}, NoOp{}, Timestamps(3252488245, 365238493)},
	}
}

func goldenNetwork(t *testing.T) *ip.Packet {
	t.Helper()
	n, err := ip.New(ip.Fields{
		SourceAddress:      net.ParseIP("192.168.1.32"),
		DestinationAddress: net.ParseIP("35.160.240.60"),
	})
	if err != nil {
		t.Fatalf("ip.New: err = '%s'; want nil", err.Error())
	}
	return n
}

func TestToBytesGoldenVector(t *testing.T) {
	p, err := New(goldenFields())
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	p.SetUnderlying(goldenNetwork(t))

	b, err := p.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: err = '%s'; want nil", err.Error())
	}
	if got := hex.EncodeToString(b); got != hexDumpACK {
		t.Errorf("segment = %s; want %s", got, hexDumpACK)
	}
}

func TestToBytesIsStable(t *testing.T) {
	p, err := New(goldenFields())
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	p.SetUnderlying(goldenNetwork(t))

	first, err := p.ToBytes()
	if err != nil {
		t.Fatalf("first ToBytes: err = '%s'; want nil", err.Error())
	}
	second, err := p.ToBytes()
	if err != nil {
		t.Fatalf("second ToBytes: err = '%s'; want nil", err.Error())
	}
	if !bytes.Equal(first, second) {
		t.Errorf("serialization not stable:\nfirst  %x\nsecond %x", first, second)
	}
}

func TestFromBytesGoldenVector(t *testing.T) {
	raw, _ := hex.DecodeString(hexDumpACK)
	got, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("FromBytes: err = '%s'; want nil", err.Error())
	}
	want, err := New(goldenFields())
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	if !got.Equal(want) {
		t.Errorf("parsed segment differs:\ngot  %v\nwant %v", got, want)
	}
	if len(got.Payload()) != 0 {
		t.Errorf("payload = %d bytes; want 0", len(got.Payload()))
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
	}{
		{"golden", goldenFields()},
		{
			"synWithOddPayload",
			Fields{
				SourcePort:      40000,
				DestinationPort: 22,
				SequenceNumber:  1,
				Flags:           NewControlBits(ControlFlags{SYN: true}),
				WindowSize:      65535,
				Options:         Options{MaxSegmentSize(1460), SACKPermitted(), Timestamps(7, 0), NoOp{}, WindowScale(7)},
				Payload:         []byte{0xde, 0xad, 0xbe},
			},
		},
		{
			"bareReset",
			Fields{
				SourcePort:      1,
				DestinationPort: 65535,
				Flags:           NewControlBits(ControlFlags{RST: true, ACK: true}),
			},
		},
		{
			"terminatedOptions",
			Fields{
				SourcePort:      5,
				DestinationPort: 6,
				Flags:           NewControlBits(ControlFlags{FIN: true}),
				Options:         Options{NoOp{}, EndOfList{}},
			},
		},
	}
	for _, tt := range tests {
		p, err := New(tt.fields)
		if err != nil {
			t.Fatalf("%s: New: err = '%s'; want nil", tt.name, err.Error())
		}
		p.SetUnderlying(goldenNetwork(t))
		b, err := p.ToBytes()
		if err != nil {
			t.Fatalf("%s: ToBytes: err = '%s'; want nil", tt.name, err.Error())
		}

		got, err := FromBytes(b)
		if err != nil {
			t.Fatalf("%s: FromBytes: err = '%s'; want nil", tt.name, err.Error())
		}
		p.SetUnderlying(nil)
		if !got.Equal(p) {
			t.Errorf("%s: round trip changed the segment:\nsent %v\ngot  %v", tt.name, p, got)
		}

		got.SetUnderlying(goldenNetwork(t))
		b2, err := got.ToBytes()
		if err != nil {
			t.Fatalf("%s: second ToBytes: err = '%s'; want nil", tt.name, err.Error())
		}
		if !bytes.Equal(b, b2) {
			t.Errorf("%s: re-serialization differs:\nfirst  %x\nsecond %x", tt.name, b, b2)
		}
	}
}

func TestRoundTripNormalizesPadding(t *testing.T) {
	// A lone no-op encodes as 01 00 00 00, and the zero padding reads
	// back as an end of list marker. The bytes still round trip.
	fields := goldenFields()
	fields.Options = Options{NoOp{}}
	p, err := New(fields)
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	p.SetUnderlying(goldenNetwork(t))
	b, err := p.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: err = '%s'; want nil", err.Error())
	}

	got, err := FromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: err = '%s'; want nil", err.Error())
	}
	if want := (Options{NoOp{}, EndOfList{}}); !got.Options().Equal(want) {
		t.Errorf("options = %v; want %v", got.Options(), want)
	}

	got.SetUnderlying(goldenNetwork(t))
	b2, err := got.ToBytes()
	if err != nil {
		t.Fatalf("second ToBytes: err = '%s'; want nil", err.Error())
	}
	if !bytes.Equal(b, b2) {
		t.Errorf("re-serialization differs:\nfirst  %x\nsecond %x", b, b2)
	}
}

func TestToBytesWithoutNetworkLayer(t *testing.T) {
	p, err := New(goldenFields())
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	if _, err := p.ToBytes(); !errors.Is(err, ErrNoNetworkLayer) {
		t.Errorf("no underlying: err = %v; want ErrNoNetworkLayer", err)
	}

	// A lower layer that is not a network layer is just as unusable.
	inner, err := New(Fields{SourcePort: 1, DestinationPort: 2})
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	p.SetUnderlying(inner)
	if _, err := p.ToBytes(); !errors.Is(err, ErrNoNetworkLayer) {
		t.Errorf("non network underlying: err = %v; want ErrNoNetworkLayer", err)
	}
}

func TestNewRejectsOutOfRangePorts(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
		ok     bool
	}{
		{"negativeSource", Fields{SourcePort: -1, DestinationPort: 80}, false},
		{"sourceTooBig", Fields{SourcePort: 65536, DestinationPort: 80}, false},
		{"negativeDestination", Fields{SourcePort: 80, DestinationPort: -1}, false},
		{"destinationTooBig", Fields{SourcePort: 80, DestinationPort: 70000}, false},
		{"lowerBound", Fields{SourcePort: 0, DestinationPort: 0}, true},
		{"upperBound", Fields{SourcePort: 65535, DestinationPort: 65535}, true},
	}
	for _, tt := range tests {
		_, err := New(tt.fields)
		if tt.ok && err != nil {
			t.Errorf("%s: err = '%s'; want nil", tt.name, err.Error())
		}
		if !tt.ok && !errors.Is(err, ErrPortRange) {
			t.Errorf("%s: err = %v; want ErrPortRange", tt.name, err)
		}
	}
}

func TestNewRejectsUnencodableOptions(t *testing.T) {
	_, err := New(Fields{
		SourcePort:      1,
		DestinationPort: 2,
		Options:         Options{Sized{Kind: 0xfd, Values: make([]uint32, 64)}},
	})
	if !errors.Is(err, ErrArgument) {
		t.Errorf("err = %v; want ErrArgument", err)
	}
}

func TestFromBytesRejectsReservedBits(t *testing.T) {
	raw, _ := hex.DecodeString(hexDumpACK)
	raw = raw[:HeaderLength]
	raw[offsetFlagsOffset] = 0x52 // data offset 5, reserved bit 9 raised
	raw[offsetFlagsOffset+1] = 0x10
	if _, err := FromBytes(raw); !errors.Is(err, ErrHeader) {
		t.Errorf("err = %v; want ErrHeader", err)
	}
}

func TestFromBytesHeaderErrors(t *testing.T) {
	base, _ := hex.DecodeString(hexDumpACK)

	short := base[:HeaderLength-1]
	if _, err := FromBytes(short); !errors.Is(err, ErrHeader) {
		t.Errorf("short buffer: err = %v; want ErrHeader", err)
	}

	belowMin := append([]byte{}, base[:HeaderLength]...)
	belowMin[offsetFlagsOffset] = 0x40 // data offset 4
	belowMin[offsetFlagsOffset+1] = 0x00
	if _, err := FromBytes(belowMin); !errors.Is(err, ErrHeader) {
		t.Errorf("data offset below minimum: err = %v; want ErrHeader", err)
	}

	overrun := append([]byte{}, base[:HeaderLength]...)
	overrun[offsetFlagsOffset] = 0x80 // data offset 8, but no option bytes
	overrun[offsetFlagsOffset+1] = 0x00
	if _, err := FromBytes(overrun); !errors.Is(err, ErrHeader) {
		t.Errorf("data offset overrun: err = %v; want ErrHeader", err)
	}
}

func TestFromBytesPropagatesOptionErrors(t *testing.T) {
	p, err := New(goldenFields())
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	p.SetUnderlying(goldenNetwork(t))
	raw, err := p.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: err = '%s'; want nil", err.Error())
	}

	// Rewrite the timestamps length byte so it overruns the field.
	raw[HeaderLength+3] = 0x20
	if _, err := FromBytes(raw); !errors.Is(err, ErrOptions) {
		t.Errorf("err = %v; want ErrOptions", err)
	}
}

func TestVerifyChecksum(t *testing.T) {
	network := goldenNetwork(t)
	raw, _ := hex.DecodeString(hexDumpACK)

	if err := VerifyChecksum(raw, network); err != nil {
		t.Fatalf("valid segment: err = '%s'; want nil", err.Error())
	}

	corrupted := append([]byte{}, raw...)
	corrupted[sequenceNumberOffset] ^= 0x01
	if err := VerifyChecksum(corrupted, network); !errors.Is(err, ErrChecksum) {
		t.Errorf("corrupted segment: err = %v; want ErrChecksum", err)
	}

	if err := VerifyChecksum(raw, nil); !errors.Is(err, ErrNoNetworkLayer) {
		t.Errorf("nil network: err = %v; want ErrNoNetworkLayer", err)
	}
	if err := VerifyChecksum(raw[:10], network); !errors.Is(err, ErrHeader) {
		t.Errorf("short segment: err = %v; want ErrHeader", err)
	}
}

func TestVerifyChecksumOddLengthSegment(t *testing.T) {
	fields := goldenFields()
	fields.Payload = []byte{0xaa, 0xbb, 0xcc}
	p, err := New(fields)
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	network := goldenNetwork(t)
	p.SetUnderlying(network)
	raw, err := p.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: err = '%s'; want nil", err.Error())
	}
	if err := VerifyChecksum(raw, network); err != nil {
		t.Errorf("err = '%s'; want nil", err.Error())
	}
}

func TestSegmentLengthPolicedByNetworkLayer(t *testing.T) {
	fields := goldenFields()
	fields.Options = nil
	fields.Payload = make([]byte, ip.MaxSegmentLength-HeaderLength+1)
	p, err := New(fields)
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	p.SetUnderlying(goldenNetwork(t))
	if _, err := p.ToBytes(); !errors.Is(err, layers.ErrSegmentLength) {
		t.Errorf("err = %v; want ErrSegmentLength", err)
	}
}

func TestToBytesMatchesGopacket(t *testing.T) {
	fields := Fields{
		SourcePort:      40000,
		DestinationPort: 443,
		SequenceNumber:  0x01020304,
		AckNumber:       0x0a0b0c0d,
		Flags:           NewControlBits(ControlFlags{SYN: true, ECE: true, CWR: true}),
		WindowSize:      64240,
		Options: Options{
			MaxSegmentSize(1460),
			SACKPermitted(),
			Timestamps(0xc1dd0835, 0),
			NoOp{},
			WindowScale(7),
		},
		Payload: []byte{1, 2, 3, 4, 5},
	}
	p, err := New(fields)
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	p.SetUnderlying(goldenNetwork(t))
	ours, err := p.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: err = '%s'; want nil", err.Error())
	}

	ref := &gplayers.TCP{
		SrcPort: 40000,
		DstPort: 443,
		Seq:     0x01020304,
		Ack:     0x0a0b0c0d,
		SYN:     true,
		ECE:     true,
		CWR:     true,
		Window:  64240,
		Options: []gplayers.TCPOption{
			{OptionType: gplayers.TCPOptionKindMSS, OptionLength: 4, OptionData: []byte{0x05, 0xb4}},
			{OptionType: gplayers.TCPOptionKindSACKPermitted, OptionLength: 2},
			{OptionType: gplayers.TCPOptionKindTimestamps, OptionLength: 10, OptionData: []byte{0xc1, 0xdd, 0x08, 0x35, 0, 0, 0, 0}},
			{OptionType: gplayers.TCPOptionKindNop},
			{OptionType: gplayers.TCPOptionKindWindowScale, OptionLength: 3, OptionData: []byte{7}},
		},
	}
	err = ref.SetNetworkLayerForChecksum(&gplayers.IPv4{
		SrcIP:    net.ParseIP("192.168.1.32").To4(),
		DstIP:    net.ParseIP("35.160.240.60").To4(),
		Protocol: gplayers.IPProtocolTCP,
	})
	if err != nil {
		t.Fatalf("SetNetworkLayerForChecksum: err = '%s'; want nil", err.Error())
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ref, gopacket.Payload(fields.Payload)); err != nil {
		t.Fatalf("gopacket serialize: err = '%s'; want nil", err.Error())
	}
	if !bytes.Equal(ours, buf.Bytes()) {
		t.Errorf("serialization mismatch\nours:     %x\ngopacket: %x", ours, buf.Bytes())
	}
}

func TestFromBytesAgreesWithGopacket(t *testing.T) {
	raw, _ := hex.DecodeString(hexDumpACK)

	var ref gplayers.TCP
	if err := ref.DecodeFromBytes(raw, gopacket.NilDecodeFeedback); err != nil {
		t.Fatalf("gopacket decode: err = '%s'; want nil", err.Error())
	}
	got, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("FromBytes: err = '%s'; want nil", err.Error())
	}

	if got.SourcePort() != uint16(ref.SrcPort) || got.DestinationPort() != uint16(ref.DstPort) {
		t.Errorf("ports = %d,%d; gopacket sees %d,%d",
			got.SourcePort(), got.DestinationPort(), ref.SrcPort, ref.DstPort)
	}
	if got.SequenceNumber() != ref.Seq || got.AckNumber() != ref.Ack {
		t.Errorf("seq,ack = %d,%d; gopacket sees %d,%d",
			got.SequenceNumber(), got.AckNumber(), ref.Seq, ref.Ack)
	}
	if got.Flags().ACK() != ref.ACK || got.Flags().SYN() != ref.SYN {
		t.Errorf("flags = (%s); gopacket sees ACK=%v SYN=%v", got.Flags(), ref.ACK, ref.SYN)
	}
	if got.WindowSize() != ref.Window {
		t.Errorf("window = %d; gopacket sees %d", got.WindowSize(), ref.Window)
	}
	if len(got.Options()) != len(ref.Options) {
		t.Errorf("option count = %d; gopacket sees %d", len(got.Options()), len(ref.Options))
	}
}

func TestCloneIsDeep(t *testing.T) {
	fields := goldenFields()
	fields.Payload = []byte{1, 2, 3}
	p, err := New(fields)
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	p.SetUnderlying(goldenNetwork(t))

	c := p.Clone().(*Packet)
	if !c.Equal(p) {
		t.Fatalf("clone is not equal to the original")
	}

	c.Payload()[0] = 0xff
	if p.Payload()[0] == 0xff {
		t.Errorf("mutating the clone's payload reached the original")
	}
	c.Options()[2].(Sized).Values[0] = 9
	if p.Options()[2].(Sized).Values[0] == 9 {
		t.Errorf("mutating the clone's options reached the original")
	}
}

func TestEqualConsidersUnderlying(t *testing.T) {
	a, err := New(goldenFields())
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	b, err := New(goldenFields())
	if err != nil {
		t.Fatalf("New: err = '%s'; want nil", err.Error())
	}
	if !a.Equal(b) {
		t.Fatalf("identical segments compare unequal")
	}

	a.SetUnderlying(goldenNetwork(t))
	if a.Equal(b) {
		t.Errorf("segment with a lower layer equals one without")
	}
	b.SetUnderlying(goldenNetwork(t))
	if !a.Equal(b) {
		t.Errorf("segments over equal lower layers compare unequal")
	}
}
