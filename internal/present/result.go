package present

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/scan"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Result is the displayable form of a detection.
type Result struct {
	Payload    string    `json:"payload" yaml:"payload"`
	URL        string    `json:"url,omitempty" yaml:"url,omitempty"`
	Scanned    string    `json:"scanned" yaml:"scanned"`
	DetectedAt time.Time `json:"detected_at" yaml:"detected_at"`
	Seq        uint64    `json:"seq,omitempty" yaml:"seq,omitempty"`
	Source     string    `json:"source,omitempty" yaml:"source,omitempty"`
	Snapshot   string    `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	SharedTo   string    `json:"shared_to,omitempty" yaml:"shared_to,omitempty"`
}

// NewResult builds a Result from a detection.
func NewResult(d scan.Detection) Result {
	at := d.DetectedAt
	if at.IsZero() {
		at = time.Now()
	}
	payload := SanitizePayload(d.Payload)
	u, _ := NormalizeURL(payload)
	return Result{
		Payload:    payload,
		URL:        u,
		Scanned:    FormatTimestamp(at),
		DetectedAt: at,
		Seq:        d.Seq,
	}
}

// ValidFormat reports whether format is supported.
func ValidFormat(format string) bool {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
		return true
	}
	return false
}

// Write renders v to w in format. Text rendering understands Result and
// []Result; other values are printed with %v.
func Write(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		_, err := io.WriteString(w, textOf(v))
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func textOf(v any) string {
	switch r := v.(type) {
	case Result:
		return resultText(r)
	case *Result:
		return resultText(*r)
	case []Result:
		var b strings.Builder
		for i, res := range r {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(resultText(res))
		}
		return b.String()
	default:
		return fmt.Sprintf("%v\n", v)
	}
}

func resultText(r Result) string {
	var b strings.Builder
	if r.Source != "" {
		fmt.Fprintf(&b, "Source:   %s\n", r.Source)
	}
	fmt.Fprintf(&b, "Payload:  %s\n", r.Payload)
	if r.URL != "" {
		fmt.Fprintf(&b, "URL:      %s\n", r.URL)
	}
	fmt.Fprintf(&b, "Scanned:  %s\n", r.Scanned)
	if r.Snapshot != "" {
		fmt.Fprintf(&b, "Snapshot: %s\n", r.Snapshot)
	}
	if r.SharedTo != "" {
		fmt.Fprintf(&b, "Shared:   %s\n", r.SharedTo)
	}
	return b.String()
}
