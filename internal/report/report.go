// Package report renders a summary of a conversion run as Markdown or HTML.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log2json/internal/convert"
	"log2json/pkg/markdown"
)

// maxSnippet is the number of line bytes shown per failure
const maxSnippet = 80

// Report describes one run.
type Report struct {
	Input    string
	Output   string // empty means stdout
	Policy   convert.Policy
	Stats    convert.Stats
	Duration time.Duration
	Usage    *Usage // nil if unavailable

	// Aborted is the line that stopped a run with PolicyAbort.
	Aborted *convert.LineError

	// Content is the converted input, used to quote failing lines. May be nil.
	Content []byte
}

// Markdown renders the report.
func (r *Report) Markdown() string {
	var b strings.Builder

	b.WriteString("# log2json report\n\n")

	output := r.Output
	if output == "" {
		output = "stdout"
	}
	fmt.Fprintf(&b, "- Input: `%s`\n", r.Input)
	fmt.Fprintf(&b, "- Output: `%s`\n", output)
	fmt.Fprintf(&b, "- Error policy: %s\n", r.Policy)
	fmt.Fprintf(&b, "- Lines: %d\n", r.Stats.Lines)
	fmt.Fprintf(&b, "- Written: %d\n", r.Stats.Written)
	fmt.Fprintf(&b, "- Failed: %d\n", r.Stats.Skipped)
	fmt.Fprintf(&b, "- Bytes: %d\n", r.Stats.Bytes)
	fmt.Fprintf(&b, "- Duration: %s\n", r.Duration.Round(time.Microsecond))
	if r.Usage != nil {
		fmt.Fprintf(&b, "- Resident memory: %.1f MB\n", r.Usage.RSSMB)
		fmt.Fprintf(&b, "- CPU time: %.3fs user, %.3fs system\n", r.Usage.UserCPU, r.Usage.SystemCPU)
	}

	if r.Aborted != nil {
		b.WriteString("\n## Aborted\n\n")
		fmt.Fprintf(&b, "Stopped at line %d: %s\n", r.Aborted.Number, r.Aborted.Err.Kind)
		r.writeTable(&b, []*convert.LineError{r.Aborted})
	}

	if len(r.Stats.Failures) > 0 {
		b.WriteString("\n## Failures\n")
		r.writeTable(&b, r.Stats.Failures)
	}

	return b.String()
}

func (r *Report) writeTable(b *strings.Builder, failures []*convert.LineError) {
	b.WriteString("\n| Line | Offset | Column | Error | Content |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, f := range failures {
		fmt.Fprintf(b, "| %d | %d | %d | %s | %s |\n", f.Number, f.Offset, f.Err.Offset, f.Err.Kind, r.snippet(f.Offset))
	}
}

// snippet returns the line starting at offset, quoted and escaped for a table cell
func (r *Report) snippet(offset int64) string {
	if r.Content == nil || offset < 0 || offset > int64(len(r.Content)) {
		return ""
	}
	line := r.Content[offset:]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	truncated := len(line) > maxSnippet
	if truncated {
		line = line[:maxSnippet]
	}
	s := strconv.Quote(string(line))
	if truncated {
		s += "..."
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	fence := strings.Repeat("`", longestRun(s, '`')+1)
	return fence + " " + s + " " + fence
}

// longestRun returns the length of the longest run of c in s
func longestRun(s string, c byte) int {
	longest, n := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] != c {
			n = 0
			continue
		}
		n++
		longest = max(longest, n)
	}
	return longest
}

// Write renders the report to path. A path ending in .html or .htm gets a standalone HTML
// page, anything else Markdown.
func Write(path string, r *Report) error {
	if path == "" {
		return errors.New("report path is empty")
	}
	content := r.Markdown()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		content = markdown.RenderPage("log2json report: "+filepath.Base(r.Input), content)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
