package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"codevolve/internal/hooks"
	"codevolve/internal/logging"
	"codevolve/internal/operator"
	"codevolve/internal/store"
)

const (
	maxReviewFiles   = 5
	maxReviewSnippet = 2000
)

// Quality checks modified files for syntax problems, aggregated lint
// findings and, when an operator is available, an LLM review.
type Quality struct {
	op    *operator.Operator
	store *store.Store
	log   *zap.SugaredLogger
}

// NewQuality builds a quality validator. Both collaborators are
// optional: without a store the lint gate passes vacuously, without an
// operator no review runs.
func NewQuality(op *operator.Operator, st *store.Store) *Quality {
	return &Quality{op: op, store: st, log: logging.Get(logging.CategoryValidate)}
}

// Validate runs the quality gates over the modified files.
func (q *Quality) Validate(ctx context.Context, objective string, modified map[string]string, language string) Report {
	r := newReport()

	if q.op != nil {
		if err := q.op.StartPhase("quality_validation", "quality gates"); err != nil {
			q.log.Warnw("failed to start quality phase", "error", err)
		}
		defer func() {
			if err := q.op.EndPhase(&r.Passed, nil, strings.Join(r.Issues, "; ")); err != nil {
				q.log.Warnw("failed to end quality phase", "error", err)
			}
		}()
	}

	files := sortedKeys(modified)

	for _, f := range files {
		if ok, feedback := hooks.CheckSyntax(fileLanguage(f, language), modified[f]); !ok {
			r.fail("syntax", fmt.Sprintf("syntax error in %s: %s", f, feedback))
		}
	}
	r.pass("syntax")

	if q.store != nil {
		for _, f := range files {
			lints, err := q.store.LintErrorsForPath(ctx, f)
			if err != nil {
				q.log.Warnw("lint lookup failed", "file", f, "error", err)
				continue
			}
			for _, l := range lints {
				r.fail("lint", fmt.Sprintf("lint: %s: %s", f, l))
			}
		}
	}
	r.pass("lint")

	if q.op != nil && len(files) > 0 {
		issues := q.review(ctx, objective, files, modified, &r)
		for _, issue := range issues {
			r.fail("review", "review: "+issue)
		}
	}
	r.pass("review")

	r.Summary["files_checked"] = len(files)
	r.Summary["issue_count"] = len(r.Issues)
	return r
}

// review asks the model for concrete problems, one per ISSUE: line.
// An unusable review response degrades to no findings.
func (q *Quality) review(ctx context.Context, objective string, files []string, modified map[string]string, r *Report) []string {
	var b strings.Builder
	fmt.Fprintf(&b, "OBJECTIVE: %s\n\nANALYSIS: %d files changed, %d prior issues\n\n", objective, len(files), len(r.Issues))
	for i, f := range files {
		if i >= maxReviewFiles {
			fmt.Fprintf(&b, "(%d more files omitted)\n", len(files)-maxReviewFiles)
			break
		}
		snippet := modified[f]
		if len(snippet) > maxReviewSnippet {
			snippet = snippet[:maxReviewSnippet] + "\n... (truncated)"
		}
		fmt.Fprintf(&b, "=== %s ===\n%s\n\n", f, snippet)
	}
	b.WriteString("List each concrete defect on its own line prefixed with \"ISSUE: \". Answer \"CLEAN\" when there are none.\n")

	result, err := q.op.ExecuteReasoningStep(ctx, "quality_validation", "review-1",
		"You are a strict code reviewer.", b.String(), "")
	if err != nil {
		q.log.Warnw("review step skipped", "error", err)
		return nil
	}

	var issues []string
	for _, line := range strings.Split(result.Response, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "ISSUE:"); ok {
			issues = append(issues, strings.TrimSpace(rest))
		}
	}
	return issues
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
