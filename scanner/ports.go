package scanner

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// ErrPortSpec is returned for port specifications that cannot be expanded
// into a port list.
var ErrPortSpec = errors.New("scanner: invalid port specification")

// ParsePortRanges expands a specification such as "80,443,8000-8080" into
// the listed ports. Entries are single ports or inclusive ranges, ports run
// from 1 to 65535, duplicates are dropped, and first occurrence order is
// kept.
func ParsePortRanges(spec string) ([]uint16, error) {
	var (
		ports []uint16
		seen  = make(map[uint16]bool)
	)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return nil, fmt.Errorf("%w: empty entry in %q", ErrPortSpec, spec)
		}

		lowText, highText, isRange := strings.Cut(entry, "-")
		low, err := parsePort(lowText)
		if err != nil {
			return nil, err
		}
		high := low
		if isRange {
			if high, err = parsePort(highText); err != nil {
				return nil, err
			}
			if high < low {
				return nil, fmt.Errorf("%w: descending range %q", ErrPortSpec, entry)
			}
		}

		// The upper bound check lives at the bottom of the loop so a
		// range ending at 65535 terminates instead of wrapping.
		for p := low; ; p++ {
			if !seen[p] {
				seen[p] = true
				ports = append(ports, p)
			}
			if p == high {
				break
			}
		}
	}
	return ports, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 65535 {
		return 0, fmt.Errorf("%w: port %q is not in 1 to 65535", ErrPortSpec, s)
	}
	return uint16(n), nil
}

// ShufflePorts permutes ports in place so sweeps avoid the strictly
// ascending probe order that simple rate detectors key on. A nil source
// seeds one from the current time.
func ShufflePorts(ports []uint16, r *rand.Rand) {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	r.Shuffle(len(ports), func(i, j int) {
		ports[i], ports[j] = ports[j], ports[i]
	})
}
