// Package reporter serializes a run report. Writers are pure: the only layer
// allowed to turn results into a process exit code is ExitCode.
package reporter

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"mcp-qa/internal/executor"
)

// -------- exit code policy --------

// ExitCode is non-zero when any scenario failed or aborted.
func ExitCode(res *executor.RunReport) int {
	if res.Passed {
		return 0
	}
	return 1
}

// -------- JSON --------

func WriteJSON(w io.Writer, res *executor.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// -------- JUnit XML --------

// Minimal JUnit schema: testsuites -> testsuite (one per scenario)
// -> testcase (one per step, +failure/+skipped)
type junitTestsuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestsuite `xml:"testsuite"`
}

type junitTestsuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     string          `xml:"time,attr"`
	File     string          `xml:"file,attr,omitempty"`
	Testcase []junitTestcase `xml:"testcase"`
}

type junitTestcase struct {
	Classname string        `xml:"classname,attr"`
	Name      string        `xml:"name,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

func WriteJUnit(w io.Writer, res *executor.RunReport) error {
	var suites []junitTestsuite
	var total, failures int

	for _, sc := range res.Scenarios {
		suite := junitTestsuite{
			Name: sc.Name,
			File: sc.Source,
			Time: seconds(sc.DurationMs),
		}
		steps := sc.AllSteps()
		if len(steps) == 0 {
			// an aborted scenario has no steps; represent it as one case so
			// the failure is visible in CI
			steps = []executor.StepResult{{
				Name:   "scenario",
				Status: executor.StatusFailed,
				Errors: sc.Errors,
			}}
		}
		for _, st := range steps {
			suite.Tests++
			tc := junitTestcase{
				Classname: sc.Name,
				Name:      st.Name,
				Time:      seconds(st.DurationMs),
			}
			switch st.Status {
			case executor.StatusFailed:
				suite.Failures++
				tc.Failure = &junitFailure{
					Message: firstError(st.Errors),
					Type:    failureType(st.Category),
					Text:    strings.Join(st.Errors, "\n"),
				}
			case executor.StatusSkipped:
				suite.Skipped++
				tc.Skipped = &junitSkipped{Message: firstError(st.Errors)}
			}
			suite.Testcase = append(suite.Testcase, tc)
		}
		total += suite.Tests
		failures += suite.Failures
		suites = append(suites, suite)
	}

	doc := junitTestsuites{
		Tests:    total,
		Failures: failures,
		Time:     seconds(res.DurationMs),
		Suites:   suites,
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func failureType(cat executor.Category) string {
	switch cat {
	case executor.CategoryAssertion:
		return "AssertionError"
	case executor.CategoryTimeout:
		return "TimeoutError"
	case executor.CategoryTransport:
		return "TransportError"
	case executor.CategoryCapture:
		return "CaptureError"
	case executor.CategorySubstitution:
		return "SubstitutionError"
	default:
		return "Error"
	}
}

// -------- TAP --------

func WriteTAP(w io.Writer, res *executor.RunReport) error {
	type line struct {
		ok   bool
		desc string
		skip string
	}
	var lines []line

	for _, sc := range res.Scenarios {
		steps := sc.AllSteps()
		if len(steps) == 0 {
			lines = append(lines, line{ok: false, desc: sc.Name + " (" + string(sc.Status) + ": " + firstError(sc.Errors) + ")"})
			continue
		}
		for _, st := range steps {
			l := line{desc: sc.Name + " :: " + st.Name}
			switch st.Status {
			case executor.StatusFailed:
				l.desc += " (" + firstError(st.Errors) + ")"
			case executor.StatusSkipped:
				l.ok = true
				l.skip = firstError(st.Errors)
			default:
				l.ok = true
			}
			lines = append(lines, l)
		}
	}

	if _, err := fmt.Fprintf(w, "TAP version 14\n1..%d\n", len(lines)); err != nil {
		return err
	}
	for i, l := range lines {
		status := "ok"
		if !l.ok {
			status = "not ok"
		}
		directive := ""
		if l.skip != "" {
			directive = " # SKIP " + l.skip
		}
		if _, err := fmt.Fprintf(w, "%s %d - %s%s\n", status, i+1, sanitizeTAP(l.desc), directive); err != nil {
			return err
		}
	}
	return nil
}

// sanitizeTAP keeps a description on one line and free of directive markers.
func sanitizeTAP(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "#", "-")
}

// -------- console summary --------

// WriteConsole prints the human-facing summary: failing steps with their
// errors, scenario totals and a final PASS/FAIL line.
func WriteConsole(w io.Writer, res *executor.RunReport) error {
	for _, sc := range res.Scenarios {
		if sc.Passed() {
			continue
		}
		fmt.Fprintf(w, "%s: %s", sc.Name, strings.ToUpper(string(sc.Status)))
		if sc.Source != "" {
			fmt.Fprintf(w, " (%s)", sc.Source)
		}
		fmt.Fprintln(w)
		for _, e := range sc.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		for _, st := range sc.AllSteps() {
			if st.Status != executor.StatusFailed {
				continue
			}
			fmt.Fprintf(w, "  step %q [%s]\n", st.Name, st.Category)
			for _, e := range st.Errors {
				fmt.Fprintf(w, "    %s\n", e)
			}
		}
	}

	passed, failed, aborted, skipped := res.Totals()
	fmt.Fprintf(w, "scenarios: %d passed, %d failed", passed, failed)
	if aborted > 0 {
		fmt.Fprintf(w, ", %d aborted", aborted)
	}
	if skipped > 0 {
		fmt.Fprintf(w, ", %d skipped", skipped)
	}
	fmt.Fprintf(w, " (%.0f ms)\n", res.DurationMs)

	if res.Passed {
		_, err := fmt.Fprintln(w, "PASS")
		return err
	}
	_, err := fmt.Fprintln(w, "FAIL")
	return err
}

func seconds(ms float64) string { return fmt.Sprintf("%.3f", ms/1000.0) }

func firstError(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0]
}
