// cmd/report.go
package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/actuator/internal/session"
)

// Report formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown report format %q, want text, json or yaml", format)
}

// reportDoc is the serialized form of a session report.
type reportDoc struct {
	SessionID  string         `json:"session_id" yaml:"session_id"`
	Plan       string         `json:"plan" yaml:"plan"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
	Duration   string         `json:"duration" yaml:"duration"`
	Counters   map[string]int `json:"counters" yaml:"counters"`
	Steps      []stepDoc      `json:"steps" yaml:"steps"`
	Fatal      *fatalDoc      `json:"fatal,omitempty" yaml:"fatal,omitempty"`
}

type stepDoc struct {
	Index    int    `json:"index" yaml:"index"`
	Kind     string `json:"kind" yaml:"kind"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Success  bool   `json:"success" yaml:"success"`
	Reason   string `json:"reason" yaml:"reason"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

type fatalDoc struct {
	Step   int    `json:"step" yaml:"step"`
	Reason string `json:"reason" yaml:"reason"`
	Error  string `json:"error" yaml:"error"`
}

func newReportDoc(r *session.Report) reportDoc {
	doc := reportDoc{
		SessionID:  r.SessionID,
		Plan:       r.Plan,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Duration:   r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		Counters:   r.Counters,
		Steps:      make([]stepDoc, 0, len(r.Steps)),
	}
	if doc.Counters == nil {
		doc.Counters = map[string]int{}
	}
	for _, s := range r.Steps {
		sd := stepDoc{Index: s.Index, Kind: string(s.Kind), Name: s.Name, Success: s.Success, Reason: s.Reason, Attempts: s.Attempts}
		if s.Err != nil {
			sd.Error = s.Err.Error()
		}
		doc.Steps = append(doc.Steps, sd)
	}
	if r.Fatal != nil {
		doc.Fatal = &fatalDoc{Step: r.Fatal.Step, Reason: r.Fatal.Reason}
		if r.Fatal.Err != nil {
			doc.Fatal.Error = r.Fatal.Err.Error()
		}
	}
	return doc
}

// renderReport writes r to w in the given format.
func renderReport(w io.Writer, format string, r *session.Report) error {
	doc := newReportDoc(r)
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case formatText:
		return renderText(w, doc)
	}
	return validateFormat(format)
}

func renderText(w io.Writer, doc reportDoc) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s, plan %q, ran %s\n\n", doc.SessionID, doc.Plan, doc.Duration)

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTEP\tRESULT\tREASON\tATTEMPTS")
	for _, s := range doc.Steps {
		label := s.Kind
		if s.Name != "" {
			label = s.Name
		}
		result := "ok"
		if !s.Success {
			result = "failed"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", s.Index, label, result, s.Reason, s.Attempts)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	names := make([]string, 0, len(doc.Counters))
	for name := range doc.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	b.WriteString("\nVerified actions:")
	if len(names) == 0 {
		b.WriteString(" none")
	}
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%d", name, doc.Counters[name])
	}
	b.WriteString("\n")

	if doc.Fatal != nil {
		fmt.Fprintf(&b, "Fatal at step %d: %s (%s)\n", doc.Fatal.Step, doc.Fatal.Reason, doc.Fatal.Error)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
