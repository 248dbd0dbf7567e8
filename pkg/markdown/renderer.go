package markdown

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

// RenderToHTML converts markdown text to sanitized HTML.
// Log content ends up in reports verbatim, so the output goes through bluemonday to keep
// markup smuggled in through log lines from reaching the browser.
func RenderToHTML(markdown string) string {
	unsafeHTML := blackfriday.Run(
		[]byte(markdown),
		blackfriday.WithExtensions(
			blackfriday.CommonExtensions|
				blackfriday.AutoHeadingIDs,
		),
	)

	// UGCPolicy keeps tables, code and headings
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span")
	policy.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3", "h4", "h5", "h6")

	return string(policy.SanitizeBytes(unsafeHTML))
}

const pageStyle = `body{font-family:sans-serif;max-width:60em;margin:2em auto;padding:0 1em}
table{border-collapse:collapse}th,td{border:1px solid #ccc;padding:.2em .6em;text-align:left}
code{background:#f4f4f4}`

// RenderPage renders markdown as a standalone HTML document.
func RenderPage(title, markdown string) string {
	return "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>" +
		html.EscapeString(title) +
		"</title>\n<style>" + pageStyle + "</style>\n</head>\n<body>\n" +
		RenderToHTML(markdown) +
		"</body>\n</html>\n"
}
