package scanner

import (
	"errors"
	"fmt"

	"github.com/FreibergVlad/port-scanner/layers/tcp"
)

// ErrUnknownTemplate is returned when a probe template name is not
// registered.
var ErrUnknownTemplate = errors.New("scanner: unknown probe template")

// ProbeTemplate shapes the SYN probes an engine emits: the TTL of the
// carrying packet, the advertised window, and the options list, which is
// most of what a remote stack judges a client by.
type ProbeTemplate struct {
	Name       string
	TTL        uint8
	WindowSize uint16

	// BuildOptions returns a fresh options list for one probe. tsVal
	// seeds the timestamps option for templates that carry one.
	BuildOptions func(tsVal uint32) tcp.Options
}

// The registered templates mirror the option layouts common stacks emit in
// their SYN segments.
var templates = []ProbeTemplate{
	{
		Name:       "default",
		TTL:        64,
		WindowSize: 65535,
		BuildOptions: func(uint32) tcp.Options {
			return tcp.Options{tcp.MaxSegmentSize(1460)}
		},
	},
	{
		Name:       "minimal",
		TTL:        64,
		WindowSize: 1024,
		BuildOptions: func(uint32) tcp.Options {
			return nil
		},
	},
	{
		Name:       "linux",
		TTL:        64,
		WindowSize: 64240,
		BuildOptions: func(tsVal uint32) tcp.Options {
			return tcp.Options{
				tcp.MaxSegmentSize(1460),
				tcp.SACKPermitted(),
				tcp.Timestamps(tsVal, 0),
				tcp.NoOp{},
				tcp.WindowScale(7),
			}
		},
	},
	{
		Name:       "windows",
		TTL:        128,
		WindowSize: 64240,
		BuildOptions: func(uint32) tcp.Options {
			return tcp.Options{
				tcp.MaxSegmentSize(1460),
				tcp.NoOp{},
				tcp.WindowScale(8),
				tcp.NoOp{},
				tcp.NoOp{},
				tcp.SACKPermitted(),
			}
		},
	},
}

// TemplateByName returns the registered template called name.
func TemplateByName(name string) (ProbeTemplate, error) {
	for _, t := range templates {
		if t.Name == name {
			return t, nil
		}
	}
	return ProbeTemplate{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
}

// TemplateNames returns the registered template names in registration
// order, default first.
func TemplateNames() []string {
	names := make([]string, len(templates))
	for i, t := range templates {
		names[i] = t.Name
	}
	return names
}
