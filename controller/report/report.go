// Package report renders finished sweeps for people and machines.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/FreibergVlad/port-scanner/scanner"
)

// ErrUnknownFormat is returned when a report format name is not registered.
var ErrUnknownFormat = errors.New("report: unknown format")

// Sweep is everything a reporter needs about one finished scan.
type Sweep struct {
	Target    string           `json:"target"`
	Technique string           `json:"technique"`
	Started   time.Time        `json:"started"`
	Summary   scanner.Summary  `json:"summary"`
	Results   []scanner.Result `json:"results"`
}

// A Reporter renders one finished sweep to w.
type Reporter interface {
	Render(w io.Writer, sweep Sweep) error
}

// JSON renders the whole sweep as one indented document.
type JSON struct{}

func (JSON) Render(w io.Writer, sweep Sweep) error {
	sweep.Results = sortedResults(sweep.Results)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sweep)
}

// CSV renders one row per port under a header row, RTTs in milliseconds.
type CSV struct{}

func (CSV) Render(w io.Writer, sweep Sweep) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"port", "state", "reason", "rtt_ms"}); err != nil {
		return err
	}
	for _, r := range sortedResults(sweep.Results) {
		row := []string{
			strconv.Itoa(int(r.Port)),
			r.State.String(),
			r.Reason,
			strconv.FormatFloat(float64(r.RTT)/float64(time.Millisecond), 'f', 3, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Text renders the table the CLI prints: one row per open port, with the
// remaining verdicts folded into the closing summary line.
type Text struct{}

func (Text) Render(w io.Writer, sweep Sweep) error {
	if _, err := fmt.Fprintf(w, "Scan report for %s (%s)\n", sweep.Target, sweep.Technique); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%-7s %-8s %-10s %s\n", "PORT", "STATE", "REASON", "RTT"); err != nil {
		return err
	}
	for _, r := range sortedResults(sweep.Results) {
		if r.State != scanner.StateOpen {
			continue
		}
		if _, err := fmt.Fprintf(w, "%-7d %-8s %-10s %s\n", r.Port, r.State, r.Reason, r.RTT); err != nil {
			return err
		}
	}
	s := sweep.Summary
	_, err := fmt.Fprintf(w, "%d ports swept in %s: %d open, %d closed, %d filtered\n",
		s.Ports, s.Duration, s.Open, s.Closed, s.Filtered)
	return err
}

// Reports list ports in ascending order whatever order the sweep finished
// in.
func sortedResults(results []scanner.Result) []scanner.Result {
	out := make([]scanner.Result, len(results))
	copy(out, results)
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

var formats = []struct {
	name     string
	reporter Reporter
}{
	{"text", Text{}},
	{"json", JSON{}},
	{"csv", CSV{}},
}

// ByName returns the reporter registered under name.
func ByName(name string) (Reporter, error) {
	for _, f := range formats {
		if f.name == name {
			return f.reporter, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatNames returns the registered format names, text first.
func FormatNames() []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.name
	}
	return names
}
