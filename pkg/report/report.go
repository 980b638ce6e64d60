// Package report projects pipeline data into the record shape the external
// report generator consumes. Document encoding (PDF, spreadsheets) is the
// generator's job, not this pipeline's; this package only owns the data
// contract and a JSON export.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/urlsentry/urlsentry/pkg/jsonutil"
	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// Record is the shape the report generator accepts.
type Record struct {
	ID             string         `json:"id"`
	URL            string         `json:"url"`
	Timestamp      time.Time      `json:"timestamp"`
	Classification string         `json:"classification"`
	ThreatScore    int            `json:"threatScore"`
	Indicators     []string       `json:"indicators"`
	Analysis       map[string]any `json:"analysis"`
	Details        map[string]any `json:"details"`
}

// FromEvent projects a canonical feed event into a Record.
func FromEvent(ev verdict.Event) Record {
	indicators := ev.ThreatNames
	if indicators == nil {
		indicators = []string{}
	}
	return Record{
		ID:             fmt.Sprintf("evt-%d", ev.Timestamp.UnixMilli()),
		URL:            ev.URL,
		Timestamp:      ev.Timestamp,
		Classification: string(ev.Classification),
		ThreatScore:    ev.RiskScore,
		Indicators:     indicators,
		Analysis: map[string]any{
			"risk_score": ev.RiskScore,
		},
		Details: map[string]any{
			"source_channel": ev.Channel,
		},
	}
}

// FromThreat projects a completed scan result into a Record.
func FromThreat(td *verdict.ThreatData) Record {
	classification := string(verdict.Safe)
	if td.Threat {
		classification = td.Type
	}
	return Record{
		ID:             td.ScanID,
		URL:            td.URL,
		Timestamp:      td.Timestamp,
		Classification: classification,
		ThreatScore:    td.Severity * 10,
		Indicators:     []string{},
		Analysis: map[string]any{
			"severity":  td.Severity,
			"is_threat": td.Threat,
		},
		Details: map[string]any{
			"scan_id": td.ScanID,
		},
	}
}

// WriteJSON exports records as an indented JSON array.
func WriteJSON(w io.Writer, records []Record) error {
	data, err := jsonutil.MarshalIndent(records, "  ")
	if err != nil {
		return fmt.Errorf("report: encoding records: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("report: writing records: %w", err)
	}
	return nil
}
