// Package cli provides output formatting and flag helpers for the healthassist CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperjump/healthassist/internal/models"
	"github.com/hyperjump/healthassist/internal/schema"
	"github.com/hyperjump/healthassist/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates an --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return f, nil
	}
	return "", fmt.Errorf("invalid output format %q (use text or json)", s)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteDiagnosis writes a diagnosis to w in the given format.
func WriteDiagnosis(w io.Writer, d *models.Diagnosis, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, d)
	}
	fmt.Fprintln(w, "Patient Summary")
	fmt.Fprintf(w, "  Name:   %s\n", d.Patient.Name)
	fmt.Fprintf(w, "  Gender: %s\n", d.Patient.Gender)
	fmt.Fprintf(w, "  Age:    %s\n", d.Patient.Age)
	fmt.Fprintln(w)
	if sch, err := schema.Lookup(d.Disease); err == nil {
		fmt.Fprintln(w, sch.Title)
		for i, f := range sch.Fields {
			if i < len(d.Features) {
				fmt.Fprintf(w, "  %-26s %s\n", f.Label+":", formatFloat(d.Features[i]))
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, d.Message)
	if d.Suggestion != "" {
		fmt.Fprintf(w, "Suggestion: %s\n", d.Suggestion)
	}
	if d.HistoryID != "" {
		fmt.Fprintf(w, "History ID: %s\n", d.HistoryID)
	}
	return nil
}

// WriteExtract writes an extraction result. In text mode each field of the
// record is listed, and rule fields the report did not contain are shown as
// "Not found".
func WriteExtract(w io.Writer, res *models.ExtractResult, fields []string, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	if res.Record.Source != "" {
		fmt.Fprintf(w, "Source: %s\n", res.Record.Source)
	}
	if len(res.Patients) > 0 {
		fmt.Fprintf(w, "Patients: %s\n", strings.Join(res.Patients, ", "))
	}
	seen := make(map[string]bool)
	names := make([]string, 0, len(fields)+res.Record.Len())
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			names = append(names, f)
		}
	}
	for _, f := range res.Record.Names() {
		if !seen[f] {
			seen[f] = true
			names = append(names, f)
		}
	}
	for _, name := range names {
		fmt.Fprintf(w, "  %-26s %s\n", name+":", res.Record.Display(name, models.NotFound))
	}
	if res.ReportID != "" {
		fmt.Fprintf(w, "Report ID: %s\n", res.ReportID)
	}
	return nil
}

// WriteDiseases lists the disease schemas.
func WriteDiseases(w io.Writer, schemas []*schema.Schema, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, schemas)
	}
	for _, s := range schemas {
		fmt.Fprintf(w, "%s (%s)\n", s.Title, s.Disease)
		for i, f := range s.Fields {
			fmt.Fprintf(w, "  %d. %-26s %s\n", i+1, f.Name, f.Label)
		}
	}
	return nil
}

// historyNameWidth caps the patient column of the text history listing.
const historyNameWidth = 12

// WriteHistory lists stored predictions, newest first.
func WriteHistory(w io.Writer, items []*models.Prediction, format OutputFormat) error {
	if format == OutputJSON {
		if items == nil {
			items = []*models.Prediction{}
		}
		return WriteJSON(w, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "No predictions recorded.")
		return nil
	}
	for _, p := range items {
		name := p.PatientName
		if name == "" {
			name = models.NotAvail
		}
		fmt.Fprintf(w, "%s  %s  %-10s %-15s %s\n",
			p.CreatedAt.Local().Format("2006-01-02 15:04:05"), p.ID, p.Disease, utils.Truncate(name, historyNameWidth), p.Message)
	}
	return nil
}

// ParseOverrides turns repeated Field=Value flags into an override map.
func ParseOverrides(sets []string) (map[string]string, error) {
	out := make(map[string]string, len(sets))
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q (want Field=Value)", s)
		}
		out[k] = v
	}
	return out, nil
}

// StringList is a repeatable string flag.
type StringList []string

func (l *StringList) String() string {
	return strings.Join(*l, ",")
}

// Set implements flag.Value.
func (l *StringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
