// Package validator runs the static checks that gate rendering. Every check
// is independent: one pass over the source collects the full diagnostic set,
// so a repair prompt sees everything that is wrong at once.
package validator

import (
	"fmt"
	"strings"

	"sceneforge/internal/pysrc"
)

// Result is the outcome of one validation pass. Errors forbid rendering;
// warnings and suggestions ride along into the corrective prompt.
type Result struct {
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// IsValid reports whether the source may proceed to render.
func (r *Result) IsValid() bool { return len(r.Errors) == 0 }

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Report renders the result the way the corrective prompt and the logs
// consume it.
func (r *Result) Report() string {
	var lines []string
	if len(r.Errors) > 0 {
		lines = append(lines, "ERRORS (must fix):")
		for _, e := range r.Errors {
			lines = append(lines, "  x "+e)
		}
		lines = append(lines, "")
	}
	if len(r.Warnings) > 0 {
		lines = append(lines, "WARNINGS (should fix):")
		for _, w := range r.Warnings {
			lines = append(lines, "  ! "+w)
		}
		lines = append(lines, "")
	}
	if len(r.Suggestions) > 0 {
		lines = append(lines, "SUGGESTIONS:")
		for _, s := range r.Suggestions {
			lines = append(lines, "  > "+s)
		}
		lines = append(lines, "")
	}
	if r.IsValid() {
		lines = append(lines, "Validation PASSED - code is ready to render")
	} else {
		lines = append(lines, fmt.Sprintf("Validation FAILED - %d error(s) found", len(r.Errors)))
	}
	return strings.Join(lines, "\n")
}

// Validate runs the twelve checks in fixed order. Checks never short-circuit
// each other; a syntactically broken file still gets structure and import
// diagnostics where the structural scan can recover them.
func Validate(src string) *Result {
	res := &Result{}
	f := pysrc.Parse(src)

	checkSyntax(f, res)            // 1
	checkStructure(f, res)         // 2
	checkVariables(f, res)         // 3
	checkAnimationMethods(f, res)  // 4
	checkAPIHygiene(f, res)        // 5
	checkImports(f, res)           // 6
	checkNarrationLength(f, res)   // 7
	checkPersistentHeading(f, res) // 8
	checkDurationMatch(f, res)     // 9
	checkVisualDensity(f, res)     // 10
	checkPositioning(f, res)       // 11
	checkActivityBudget(f, res)    // 12

	if res.IsValid() && len(res.Warnings) > 0 {
		res.Suggestions = append(res.Suggestions, "Address warnings to improve code quality")
	}
	return res
}
