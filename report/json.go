package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/use-agent/uicheck/models"
)

// Output formats.
const (
	FormatPretty = "pretty"
	FormatJSON   = "json"
)

// JSONRenderer emits the structured report.
type JSONRenderer struct {
	out io.Writer
}

// NewJSON creates a JSON renderer writing to out.
func NewJSON(out io.Writer) *JSONRenderer {
	return &JSONRenderer{out: out}
}

// Render encodes the report as JSON.
func (j *JSONRenderer) Render(rep models.Report) error {
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// WriteFile writes the JSON report to path, creating parent directories.
func WriteFile(path string, rep models.Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %q: %w", path, err)
	}
	if err := NewJSON(f).Render(rep); err != nil {
		f.Close()
		return fmt.Errorf("write report %q: %w", path, err)
	}
	return f.Close()
}
