package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"log2json/internal/convert"
	"log2json/pkg/markdown"
)

func collectRun(t *testing.T, input string) *Report {
	t.Helper()
	c := convert.New(nil, convert.PolicyCollect, nil)
	var out bytes.Buffer
	stats, err := c.Convert([]byte(input), &out)
	require.ErrorIs(t, err, convert.ErrLinesFailed)

	return &Report{
		Input:    "in.log",
		Policy:   convert.PolicyCollect,
		Stats:    stats,
		Duration: 1500 * time.Microsecond,
		Content:  []byte(input),
	}
}

func TestMarkdown_Summary(t *testing.T) {
	r := collectRun(t, "a=1\nbroken line\nb=<script>\"x\"</script>\n")
	r.Usage = &Usage{RSSMB: 12.5, UserCPU: 0.01, SystemCPU: 0.002}

	md := r.Markdown()

	require.Contains(t, md, "# log2json report")
	require.Contains(t, md, "- Input: `in.log`")
	require.Contains(t, md, "- Output: `stdout`")
	require.Contains(t, md, "- Lines: 3")
	require.Contains(t, md, "- Written: 1")
	require.Contains(t, md, "- Failed: 2")
	require.Contains(t, md, "- Duration: 1.5ms")
	require.Contains(t, md, "- Resident memory: 12.5 MB")
	require.Contains(t, md, "## Failures")
	require.Contains(t, md, "| 2 | 4 | 6 | missing equals | `` \"broken line\" `` |")
	require.Contains(t, md, "| 3 | 16 | 10 | unexpected character |")
}

func TestMarkdown_Aborted(t *testing.T) {
	c := convert.New(nil, convert.PolicyAbort, nil)
	input := "a=1\nx\n"
	stats, err := c.Convert([]byte(input), &bytes.Buffer{})
	require.Error(t, err)

	var lerr *convert.LineError
	require.ErrorAs(t, err, &lerr)

	r := &Report{Input: "in.log", Output: "out.json", Policy: convert.PolicyAbort, Stats: stats, Aborted: lerr, Content: []byte(input)}
	md := r.Markdown()

	require.Contains(t, md, "- Output: `out.json`")
	require.Contains(t, md, "## Aborted")
	require.Contains(t, md, "Stopped at line 2: missing equals")
	require.NotContains(t, md, "## Failures")
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("k", 100)
	r := &Report{Content: []byte("a|b\n" + long + "\n")}

	require.Equal(t, "` \"a\\|b\" `", r.snippet(0))
	require.Equal(t, "` \""+strings.Repeat("k", maxSnippet)+"\"... `", r.snippet(4))
	require.Equal(t, "", r.snippet(1000))
	require.Equal(t, "", (&Report{}).snippet(0))
}

func TestSnippet_BacktickRunsNeedLongerFence(t *testing.T) {
	r := &Report{Content: []byte("a=`x` b=``y``\n")}

	require.Equal(t, "``` \"a=`x` b=``y``\" ```", r.snippet(0))
}

func TestMarkdown_FailureRowWithBackticks(t *testing.T) {
	r := collectRun(t, "a=1\nmsg=``run`` \"x\n")

	html := markdown.RenderToHTML(r.Markdown())

	require.Regexp(t, "<code>[^<]*msg=``run``[^<]*</code>", html)
	require.Contains(t, html, "<td>unterminated quote</td>")
}
