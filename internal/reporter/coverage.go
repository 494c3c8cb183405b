package reporter

import (
	"encoding/json"
	"io"
	"sort"

	"mcp-qa/internal/executor"
)

// CoverageReport says which of the server's advertised tools the run
// actually exercised.
type CoverageReport struct {
	Total        int      `json:"total"`
	Covered      int      `json:"covered"`
	Percent      float64  `json:"percent"`
	CoveredSet   []string `json:"covered_set"`
	UncoveredSet []string `json:"uncovered_set"`
}

// ComputeCoverage matches the advertised tool names against every tool a
// step of the run called. Tools called but not advertised are ignored; the
// server already rejected those calls.
func ComputeCoverage(advertised []string, res *executor.RunReport) CoverageReport {
	called := map[string]bool{}
	for _, sc := range res.Scenarios {
		for _, st := range sc.AllSteps() {
			if st.Status != executor.StatusSkipped && st.Tool != "" {
				called[st.Tool] = true
			}
		}
	}

	var coveredList, uncoveredList []string
	for _, name := range advertised {
		if called[name] {
			coveredList = append(coveredList, name)
		} else {
			uncoveredList = append(uncoveredList, name)
		}
	}
	sort.Strings(coveredList)
	sort.Strings(uncoveredList)

	return CoverageReport{
		Total:        len(advertised),
		Covered:      len(coveredList),
		Percent:      pct(len(coveredList), len(advertised)),
		CoveredSet:   coveredList,
		UncoveredSet: uncoveredList,
	}
}

func WriteCoverage(w io.Writer, advertised []string, res *executor.RunReport) error {
	rep := ComputeCoverage(advertised, res)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func pct(n, d int) float64 {
	if d == 0 {
		return 100.0
	}
	return float64(n) * 100.0 / float64(d)
}
