package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	prefix              = "   "
	runSummaryHeader    = "❯❯ Run Summary"
	successLabel        = "Succeeded"
	failureLabel        = "Failed"
	cachedLabel         = "Cached"
	skippedLabel        = "Skipped"
	acceptedLabel       = "Sweeps accepted"
	separatorLineLength = 28
	labelWidth          = 20
)

// Summary formats data from a report for output as a summary.
type Summary struct {
	firstRunStart *time.Time
	lastRunEnd    *time.Time
	padder        string
	runs          []*Run
	sweeps        map[string]bool
	Succeeded     int
	Failed        int
	Cached        int
	Skipped       int
	shouldColor   bool
}

// Summarize returns a summary of the report.
func (r *Report) Summarize() *Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := &Summary{
		shouldColor: r.shouldColor,
		padder:      ".",
		runs:        append([]*Run(nil), r.Runs...),
		sweeps:      make(map[string]bool),
	}

	for _, run := range r.Runs {
		summary.Update(run)
	}

	return summary
}

// Update counts run in the summary.
func (s *Summary) Update(run *Run) {
	run.mu.RLock()
	defer run.mu.RUnlock()

	if _, ok := s.sweeps[run.Sweep]; !ok {
		s.sweeps[run.Sweep] = true
	}

	switch run.Result {
	case ResultSucceeded:
		s.Succeeded++
	case ResultFailed:
		s.Failed++
		s.sweeps[run.Sweep] = false
	case ResultCached:
		s.Cached++
	case ResultSkipped:
		s.Skipped++
	}

	if s.firstRunStart == nil || run.Started.Before(*s.firstRunStart) {
		s.firstRunStart = &run.Started
	}

	if !run.Ended.IsZero() && (s.lastRunEnd == nil || run.Ended.After(*s.lastRunEnd)) {
		s.lastRunEnd = &run.Ended
	}
}

// TotalRuns returns the number of stage runs in the summary.
func (s *Summary) TotalRuns() int {
	return len(s.runs)
}

// SweepsAccepted returns how many sweeps had no failed stage, and how many sweeps there were.
func (s *Summary) SweepsAccepted() (int, int) {
	accepted := 0

	for _, ok := range s.sweeps {
		if ok {
			accepted++
		}
	}

	return accepted, len(s.sweeps)
}

// TotalDuration returns the total duration of all runs in the report.
func (s *Summary) TotalDuration() time.Duration {
	if s.firstRunStart == nil || s.lastRunEnd == nil {
		return 0
	}

	return s.lastRunEnd.Sub(*s.firstRunStart)
}

// WriteSummary writes the summary to a writer. Nothing is written for an empty report.
func (r *Report) WriteSummary(w io.Writer) error {
	summary := r.Summarize()

	if summary.TotalRuns() == 0 {
		return nil
	}

	return summary.Write(w)
}

// Write writes the summary to a writer.
func (s *Summary) Write(w io.Writer) error {
	colorizer := NewColorizer(s.shouldColor)

	header := fmt.Sprintf("%s  %s  %s",
		colorizer.headingTitleColorizer(runSummaryHeader),
		colorizer.headingUnitColorizer(fmt.Sprintf("%d stage runs", s.TotalRuns())),
		colorizer.colorDuration(s.TotalDuration()),
	)

	lines := []string{header, prefix + strings.Repeat("─", separatorLineLength)}

	accepted, total := s.SweepsAccepted()
	lines = append(lines, s.entry(colorizer.headingUnitColorizer(acceptedLabel), fmt.Sprintf("%d/%d", accepted, total), colorizer))

	counts := []struct {
		label string
		count int
		color func(string) string
	}{
		{successLabel, s.Succeeded, colorizer.successColorizer},
		{cachedLabel, s.Cached, colorizer.cachedColorizer},
		{skippedLabel, s.Skipped, colorizer.skippedColorizer},
		{failureLabel, s.Failed, colorizer.failureColorizer},
	}

	for _, count := range counts {
		if count.count > 0 {
			lines = append(lines, s.entry(count.color(count.label), strconv.Itoa(count.count), colorizer))
		}
	}

	for _, run := range s.runs {
		run.mu.RLock()
		failed := run.Result == ResultFailed
		line := run.Name() + ": " + string(run.Result)

		if run.Cause != nil {
			line += " (" + string(*run.Cause) + ")"
		}
		run.mu.RUnlock()

		if failed {
			lines = append(lines, prefix+colorizer.failureColorizer(line))
		}
	}

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))

	return err
}

func (s *Summary) entry(label, value string, colorizer *Colorizer) string {
	visible := utf8.RuneCountInString(stripANSI(label))

	padding := ""
	if visible < labelWidth {
		padding = strings.Repeat(s.padder, labelWidth-visible)
	}

	return prefix + label + " " + colorizer.paddingColorizer(padding) + " " + value
}

// stripANSI drops color escape sequences so padding is computed on visible text.
func stripANSI(text string) string {
	var sb strings.Builder

	inEscape := false

	for _, r := range text {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape && r == 'm':
			inEscape = false
		case !inEscape:
			sb.WriteRune(r)
		}
	}

	return sb.String()
}
