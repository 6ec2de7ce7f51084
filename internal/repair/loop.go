package repair

import (
	"context"
	"log"

	"sceneforge/internal/vision"
)

// DefaultMaxIterations bounds how many rewrites one job may attempt.
const DefaultMaxIterations = 2

// Loop drives analyze-fix cycles. Rendering stays outside: the Rerender
// callback hands control back to the driver between iterations, which is the
// only place segments and frames can be rebuilt.
type Loop struct {
	Fixer         *Fixer
	Analyze       func(ctx context.Context) (vision.Report, error)
	Rerender      func(ctx context.Context, source string) error
	MaxIterations int
	Logger        *log.Logger
}

// Run analyzes the current rendered output and rewrites the source until the
// report is clean, the model hits a fixpoint, or the iteration budget runs
// out. The returned report is the most recent analysis.
func (l *Loop) Run(ctx context.Context, source string) (string, Record, vision.Report, error) {
	iters := l.MaxIterations
	if iters <= 0 {
		iters = DefaultMaxIterations
	}

	report, err := l.Analyze(ctx)
	if err != nil {
		return source, Record{}, report, err
	}
	rec := Record{
		IssuesBefore:  len(report.Issues),
		IssuesAfter:   len(report.Issues),
		QualityBefore: report.OverallQuality,
		QualityAfter:  report.OverallQuality,
	}
	if !report.HasIssues {
		return source, rec, report, nil
	}

	for i := 0; i < iters; i++ {
		fixed, changed, err := l.Fixer.Fix(ctx, source, report.Issues)
		if err != nil {
			// Best effort: a failed fix call leaves the last good source.
			l.logf("fix attempt %d failed: %v", i+1, err)
			break
		}
		if !changed {
			l.logf("fix attempt %d reached a fixpoint", i+1)
			break
		}
		source = fixed
		rec.Applied = true

		// Every accepted fix is rendered and analyzed before the loop can
		// return it, so the delivered video always matches the source.
		if err := l.Rerender(ctx, source); err != nil {
			return source, rec, report, err
		}
		report, err = l.Analyze(ctx)
		if err != nil {
			return source, rec, report, err
		}
		rec.IssuesAfter = len(report.Issues)
		rec.QualityAfter = report.OverallQuality
		if !report.HasIssues {
			break
		}
	}

	rec.Improvement = rec.IssuesBefore - rec.IssuesAfter
	if rec.Improvement < 0 {
		rec.Improvement = 0
	}
	return source, rec, report, nil
}

func (l *Loop) logf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Printf("[repair] "+format, args...)
	}
}
