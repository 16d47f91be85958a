// Package profile loads sweep descriptions from TOML files, so repeatable
// scans live in version controlled files instead of shell history.
package profile

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/FreibergVlad/port-scanner/controller/report"
	"github.com/FreibergVlad/port-scanner/scanner"
	"github.com/FreibergVlad/port-scanner/scanner/connectscan"
	"github.com/FreibergVlad/port-scanner/scanner/synscan"
)

// Profile describes one sweep. Field names double as the TOML keys,
// matched case insensitively.
type Profile struct {
	Targets   []string
	Ports     string
	Technique string
	Template  string
	Format    string

	// SourceIP and SourcePort only matter for the syn technique. An
	// empty SourceIP is filled with the outbound address at run time.
	SourceIP   string
	SourcePort uint16

	ProbesPerSecond uint64
	TimeoutMs       uint64
	Shuffle         bool
}

// Default returns the profile all loaded files start from.
func Default() Profile {
	return Profile{
		Ports:           "1-1024",
		Technique:       "connect",
		Template:        "default",
		Format:          "text",
		ProbesPerSecond: 100,
		TimeoutMs:       2000,
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Profile, error) {
	p := Default()
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Profile{}, err
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks every field that a sweep would consume.
func (p Profile) Validate() error {
	if len(p.Targets) == 0 {
		return errors.New("profile: no targets")
	}
	for _, t := range p.Targets {
		if _, err := parseIPv4(t); err != nil {
			return fmt.Errorf("profile: target %q is not an IPv4 address", t)
		}
	}
	if _, err := scanner.ParsePortRanges(p.Ports); err != nil {
		return err
	}
	switch p.Technique {
	case "syn", "connect":
	default:
		return fmt.Errorf("profile: unknown technique %q", p.Technique)
	}
	if p.SourceIP != "" {
		if _, err := parseIPv4(p.SourceIP); err != nil {
			return fmt.Errorf("profile: sourceip %q is not an IPv4 address", p.SourceIP)
		}
	}
	if _, err := scanner.TemplateByName(p.Template); err != nil {
		return err
	}
	if _, err := report.ByName(p.Format); err != nil {
		return err
	}
	return nil
}

// PortList expands the profile's port specification.
func (p Profile) PortList() ([]uint16, error) {
	ports, err := scanner.ParsePortRanges(p.Ports)
	if err != nil {
		return nil, err
	}
	if p.Shuffle {
		scanner.ShufflePorts(ports, nil)
	}
	return ports, nil
}

// Engine builds the scan engine the profile calls for, bound to one target.
func (p Profile) Engine(target string) (scanner.Scanner, error) {
	targetIP, err := parseIPv4(target)
	if err != nil {
		return nil, fmt.Errorf("profile: target %q is not an IPv4 address", target)
	}

	switch p.Technique {
	case "syn":
		sourceIP, err := parseIPv4(p.SourceIP)
		if err != nil {
			return nil, fmt.Errorf("profile: sourceip %q is not an IPv4 address", p.SourceIP)
		}
		template, err := scanner.TemplateByName(p.Template)
		if err != nil {
			return nil, err
		}
		return synscan.MakeScanner(synscan.Config{
			TargetIP:        targetIP,
			SourceIP:        sourceIP,
			SourcePort:      p.SourcePort,
			Template:        template,
			ProbesPerSecond: float64(p.ProbesPerSecond),
			ReadTimeout:     time.Duration(p.TimeoutMs) * time.Millisecond,
		})
	case "connect":
		return connectscan.MakeScanner(connectscan.Config{
			TargetIP:        targetIP,
			DialTimeout:     time.Duration(p.TimeoutMs) * time.Millisecond,
			ProbesPerSecond: float64(p.ProbesPerSecond),
		})
	}
	return nil, fmt.Errorf("profile: unknown technique %q", p.Technique)
}

// Reporter returns the renderer the profile's format names.
func (p Profile) Reporter() (report.Reporter, error) {
	return report.ByName(p.Format)
}

func parseIPv4(s string) ([4]byte, error) {
	var buf [4]byte
	ip := net.ParseIP(s)
	if ip == nil {
		return buf, errors.New("profile: not an IP address")
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return buf, errors.New("profile: not an IPv4 address")
	}
	copy(buf[:], ip4)
	return buf, nil
}
