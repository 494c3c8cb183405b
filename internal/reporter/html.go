package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"mcp-qa/internal/executor"
)

// WriteHTML renders a self-contained single-file report.
func WriteHTML(w io.Writer, title string, res *executor.RunReport) error {
	var sb strings.Builder

	sb.WriteString(`<!doctype html><html lang="en"><head><meta charset="utf-8">`)
	sb.WriteString(`<meta name="viewport" content="width=device-width,initial-scale=1">`)
	sb.WriteString(`<title>mcp-qa Report — ` + html.EscapeString(title) + `</title>`)
	sb.WriteString(`<style>
:root { --ok:#0a0; --bad:#b00; --muted:#666; --chip:#eee; --line:#e5e5e5; }
body{font-family:system-ui,Segoe UI,Roboto,Arial,sans-serif;margin:24px;line-height:1.45}
h1{margin:0 0 12px}
h2{margin:0 0 8px;font-size:1.05rem}
.summary{display:flex;gap:12px;align-items:center;margin:12px 0 18px}
.pass{color:var(--ok)} .fail{color:var(--bad)}
.badge{display:inline-block;padding:2px 8px;border-radius:999px;background:var(--chip);font-size:.85rem}
.card{border:1px solid var(--line);border-radius:12px;padding:16px;margin:12px 0}
.step{margin:6px 0}
details>summary{cursor:pointer;list-style:none}
details>summary::-webkit-details-marker{display:none}
summary {padding:6px 0}
pre{background:#f8f8f8;padding:12px;border-radius:8px;overflow:auto;max-height:320px;margin:8px 0 0;white-space:pre-wrap}
.muted{color:var(--muted)}
hr{border:0;border-top:1px solid var(--line);margin:20px 0}
.small{font-size:.85rem}
</style></head><body>`)

	passed, failed, aborted, _ := res.Totals()
	sb.WriteString(`<h1>` + html.EscapeString(title) + `</h1>`)
	sb.WriteString(`<div class="summary">`)
	sb.WriteString(`<div>Status: <strong class="` + statusClass(res.Passed) + `">` + tern(res.Passed, "PASS", "FAIL") + `</strong></div>`)
	sb.WriteString(chip("Duration: " + msText(res.DurationMs)))
	sb.WriteString(chip(fmt.Sprintf("Scenarios: %d passed / %d failed / %d aborted", passed, failed, aborted)))
	sb.WriteString(`</div><hr>`)

	for _, sc := range res.Scenarios {
		sb.WriteString(`<div class="card">`)
		sb.WriteString(`<h2>` + html.EscapeString(sc.Name) + ` — ` + badge(sc.Status) + ` ` + chip(msText(sc.DurationMs)) + `</h2>`)
		if sc.Source != "" {
			sb.WriteString(`<div class="small muted">` + html.EscapeString(sc.Source) + `</div>`)
		}
		for _, e := range sc.Errors {
			sb.WriteString(`<pre>` + html.EscapeString(e) + `</pre>`)
		}

		for i, st := range sc.AllSteps() {
			sb.WriteString(`<div class="step">`)
			sb.WriteString(`<details ` + tern(st.Status == executor.StatusFailed, "open", "") + `>`)
			sb.WriteString(`<summary>Step ` + strconv.Itoa(i+1) + ` • ` + html.EscapeString(st.Name))
			if st.Tool != "" {
				sb.WriteString(` • tool ` + html.EscapeString(st.Tool))
			}
			sb.WriteString(` ` + badge(st.Status) + ` ` + chip(msText(st.DurationMs)) + `</summary>`)

			if len(st.Errors) > 0 {
				sb.WriteString(`<pre>`)
				for _, e := range st.Errors {
					sb.WriteString(html.EscapeString(e) + "\n")
				}
				sb.WriteString(`</pre>`)
			} else {
				sb.WriteString(`<div class="small muted">No errors.</div>`)
			}

			if st.Response != "" {
				sb.WriteString(`<div class="small muted" style="margin-top:10px;">Response</div>`)
				sb.WriteString(`<pre>` + html.EscapeString(prettyJSON(st.Response)) + `</pre>`)
			}

			sb.WriteString(`</details>`)
			sb.WriteString(`</div>`)
		}
		sb.WriteString(`</div>`)
	}

	sb.WriteString(`</body></html>`)
	_, err := io.WriteString(w, sb.String())
	return err
}

func statusClass(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

func badge(s executor.Status) string {
	switch s {
	case executor.StatusPassed:
		return `<span class="badge pass">PASS</span>`
	case executor.StatusSkipped:
		return `<span class="badge">SKIP</span>`
	default:
		return `<span class="badge fail">` + strings.ToUpper(string(s)) + `</span>`
	}
}

func chip(text string) string {
	return `<span class="badge">` + html.EscapeString(text) + `</span>`
}

func msText(v float64) string { return fmt.Sprintf("%.0f ms", v) }

func tern[T ~string](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

func prettyJSON(s string) string {
	var buf bytes.Buffer
	var raw any
	if json.Unmarshal([]byte(s), &raw) == nil {
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		_ = enc.Encode(raw)
		return strings.TrimRight(buf.String(), "\n")
	}
	return s
}
