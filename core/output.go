package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Printer handles all display output for the CLI.
type Printer struct {
	JSON   bool
	Writer io.Writer
}

// NewPrinter creates a default Printer writing to stdout.
func NewPrinter(jsonMode bool) *Printer {
	return &Printer{JSON: jsonMode, Writer: os.Stdout}
}

// PrintMetadata renders fields of m to the configured output. Pass
// m.Fields for the full listing or the result of m.Filter.
func (p *Printer) PrintMetadata(m *Metadata, fields []MetaField) {
	if p.JSON {
		p.printJSON(m, fields)
		return
	}
	p.printText(m, fields)
}

func (p *Printer) printText(m *Metadata, fields []MetaField) {
	fmt.Fprintf(p.Writer, "File  : %s\n", m.FilePath)
	fmt.Fprintf(p.Writer, "Format: %s\n", m.Format)
	if len(fields) == 0 {
		fmt.Fprintln(p.Writer, "(no metadata found)")
		return
	}
	fmt.Fprintln(p.Writer)

	// Group by namespace, in first-seen order
	groups := make(map[string][]MetaField)
	var order []string
	for _, f := range fields {
		if _, ok := groups[f.Namespace]; !ok {
			order = append(order, f.Namespace)
		}
		groups[f.Namespace] = append(groups[f.Namespace], f)
	}

	for _, ns := range order {
		fmt.Fprintf(p.Writer, "── %s ──\n", ns)
		for _, f := range groups[ns] {
			edit := ""
			if f.Editable {
				edit = " [editable]"
			}
			fmt.Fprintf(p.Writer, "  %-40s %s%s\n", f.Key+":", truncate(f.Value.String(), 120), edit)
		}
		fmt.Fprintln(p.Writer)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func (p *Printer) printJSON(m *Metadata, fields []MetaField) {
	type jsonField struct {
		Key       string `json:"key"`
		Value     string `json:"value"`
		Type      string `json:"type"`
		Namespace string `json:"namespace"`
		Editable  bool   `json:"editable"`
	}
	type jsonOutput struct {
		FilePath string      `json:"file"`
		Format   FormatID    `json:"format"`
		Fields   []jsonField `json:"fields"`
	}

	out := jsonOutput{FilePath: m.FilePath, Format: m.Format, Fields: []jsonField{}}
	for _, f := range fields {
		out.Fields = append(out.Fields, jsonField{
			Key:       f.Key,
			Value:     f.Value.String(),
			Type:      f.Value.Kind.String(),
			Namespace: f.Namespace,
			Editable:  f.Editable,
		})
	}
	p.encode(out)
}

// PrintChanges lists planned changes, used for dry runs.
func (p *Printer) PrintChanges(changes []Change) {
	if p.JSON {
		type jsonChange struct {
			Key    string `json:"key"`
			Value  string `json:"value,omitempty"`
			Remove bool   `json:"remove,omitempty"`
		}
		out := []jsonChange{}
		for _, c := range changes {
			out = append(out, jsonChange{Key: c.Key, Value: c.Value.String(), Remove: c.Remove})
		}
		p.encode(out)
		return
	}
	if len(changes) == 0 {
		fmt.Fprintln(p.Writer, "(no changes)")
		return
	}
	for _, c := range changes {
		if c.Remove {
			fmt.Fprintf(p.Writer, "  - %s\n", c.Key)
			continue
		}
		fmt.Fprintf(p.Writer, "  ~ %s = %s\n", c.Key, c.Value)
	}
}

// PrintFormats renders the capability table.
func (p *Printer) PrintFormats(infos []FormatInfo) {
	if p.JSON {
		p.encode(infos)
		return
	}
	for _, info := range infos {
		fmt.Fprintf(p.Writer, "%-6s %-9s %-28s edit=%-5v strip=%-5v %s\n",
			info.Name, info.MediaType, strings.Join(info.Extensions, " "),
			info.CanEdit, info.CanStrip, info.Notes)
	}
}

// PrintValue encodes an arbitrary value as JSON.
func (p *Printer) PrintValue(v any) { p.encode(v) }

func (p *Printer) encode(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(p.Writer, string(b))
}

// PrintSuccess prints a success message.
func (p *Printer) PrintSuccess(msg string) {
	if !p.JSON {
		fmt.Fprintln(p.Writer, "✓ "+msg)
	}
}

// PrintInfo prints an info line (suppressed in JSON mode).
func (p *Printer) PrintInfo(msg string) {
	if !p.JSON {
		fmt.Fprintln(p.Writer, msg)
	}
}

// PrintError prints an error to stderr.
func PrintError(msg string) {
	fmt.Fprintln(os.Stderr, "✗ Error: "+msg)
}

// ParseKV parses a "Key=Value" string.
func ParseKV(s string) (key, value string, ok bool) {
	idx := strings.Index(s, "=")
	if idx < 1 {
		return "", "", false
	}
	return strings.TrimSpace(s[:idx]), s[idx+1:], true
}

// CopyFile copies src to dst, replacing dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
