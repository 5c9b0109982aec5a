// Package review evaluates artifacts against checklists. Each checklist item
// is checked by a predicate: callers can register their own per item, items
// can declare builtin regex predicates, and items with neither are reported
// as skipped so a human can judge them. One finding is produced per item in
// checklist order; a predicate failure or panic is confined to its own item
// and never aborts the rest of the run.
package review

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpipe/pkg/checklist"
	"github.com/jingkaihe/promptpipe/pkg/logger"
)

// Result classifies the outcome of checking one item
type Result string

// Item outcomes. ResultError means the item's predicate itself failed, not
// the artifact; ResultSkip means no predicate applied.
const (
	ResultPass  Result = "pass"
	ResultFail  Result = "fail"
	ResultWarn  Result = "warn"
	ResultError Result = "error"
	ResultSkip  Result = "skip"
)

// Status is the overall outcome of a review run
type Status string

// StatusPass means no CRITICAL or HIGH item failed; StatusBlocked means at
// least one did and the artifact should not be applied.
const (
	StatusPass    Status = "PASS"
	StatusBlocked Status = "BLOCKED"
)

// Artifact is a piece of produced text under review
type Artifact struct {
	// Name is an optional identifier (usually a filename) used by
	// applies_to glob scoping
	Name string
	// Content is the artifact text
	Content string
}

// Outcome is a predicate's verdict on an artifact
type Outcome struct {
	Result  Result
	Message string
}

// Predicate checks an artifact against one checklist item. A returned error
// or a panic is recorded as an error finding for that item only.
type Predicate func(ctx context.Context, artifact Artifact) (Outcome, error)

// Finding is the per-item result of a review run
type Finding struct {
	Item        string             `json:"item"`
	Description string             `json:"description"`
	Severity    checklist.Severity `json:"severity"`
	Result      Result             `json:"result"`
	Message     string             `json:"message,omitempty"`
}

// Counts aggregates items per severity. Every item is counted under its
// severity regardless of outcome, so the counts always sum to the checklist
// length.
type Counts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Total returns the sum of all severity counts
func (c Counts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}

// Report is the aggregated result of one review run
type Report struct {
	ID        string    `json:"id"`
	Checklist string    `json:"checklist"`
	Artifact  string    `json:"artifact,omitempty"`
	Status    Status    `json:"status"`
	Findings  []Finding `json:"findings"`
	Counts    Counts    `json:"counts"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reviewer runs checklists against artifacts
type Reviewer struct {
	predicates map[string]Predicate
}

// Option configures a Reviewer
type Option func(*Reviewer)

// WithPredicate registers a caller-supplied predicate for the checklist item
// with the given ID. Registered predicates take precedence over an item's
// builtin regex patterns.
func WithPredicate(itemID string, p Predicate) Option {
	return func(r *Reviewer) {
		r.predicates[itemID] = p
	}
}

// NewReviewer creates a reviewer with optional per-item predicates
func NewReviewer(opts ...Option) *Reviewer {
	r := &Reviewer{predicates: make(map[string]Predicate)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Review checks the artifact against every checklist item in order and
// aggregates the findings into a report.
func (r *Reviewer) Review(ctx context.Context, cl *checklist.Checklist, artifact Artifact) *Report {
	report := &Report{
		ID:        uuid.NewString(),
		Checklist: cl.ID,
		Artifact:  artifact.Name,
		Status:    StatusPass,
		CreatedAt: time.Now().UTC(),
	}

	log := logger.G(ctx).WithField("checklist", cl.ID)
	log.WithField("run", report.ID).Debug("starting review")

	for _, item := range cl.Items() {
		finding := r.checkItem(ctx, item, artifact)
		report.Findings = append(report.Findings, finding)

		switch item.Severity {
		case checklist.SeverityCritical:
			report.Counts.Critical++
		case checklist.SeverityHigh:
			report.Counts.High++
		case checklist.SeverityMedium:
			report.Counts.Medium++
		case checklist.SeverityLow:
			report.Counts.Low++
		}

		if finding.Result == ResultFail &&
			(item.Severity == checklist.SeverityCritical || item.Severity == checklist.SeverityHigh) {
			report.Status = StatusBlocked
		}
	}

	log.WithFields(map[string]interface{}{
		"run":    report.ID,
		"status": report.Status,
		"items":  report.Counts.Total(),
	}).Debug("review finished")

	return report
}

// checkItem produces the finding for one item. Predicate panics are
// recovered into error findings so a single broken predicate cannot take
// down the run.
func (r *Reviewer) checkItem(ctx context.Context, item checklist.Item, artifact Artifact) (finding Finding) {
	finding = Finding{
		Item:        item.ID,
		Description: item.Description,
		Severity:    item.Severity,
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.G(ctx).WithField("item", item.ID).Warnf("predicate panicked: %v", rec)
			finding.Result = ResultError
			finding.Message = fmt.Sprintf("predicate panicked: %v", rec)
		}
	}()

	if item.AppliesTo != "" {
		matcher, err := glob.Compile(item.AppliesTo)
		if err != nil {
			finding.Result = ResultError
			finding.Message = fmt.Sprintf("invalid applies_to pattern %q: %v", item.AppliesTo, err)
			return finding
		}
		if !matcher.Match(artifact.Name) {
			finding.Result = ResultSkip
			finding.Message = fmt.Sprintf("artifact %q does not match %q", artifact.Name, item.AppliesTo)
			return finding
		}
	}

	predicate := r.predicates[item.ID]
	if predicate == nil {
		predicate = regexPredicate(item)
	}
	if predicate == nil {
		finding.Result = ResultSkip
		finding.Message = "no predicate; requires manual review"
		return finding
	}

	outcome, err := predicate(ctx, artifact)
	if err != nil {
		finding.Result = ResultError
		finding.Message = err.Error()
		return finding
	}

	finding.Result = outcome.Result
	finding.Message = outcome.Message
	return finding
}

// regexPredicate builds the builtin predicate for items declaring
// must_match or must_not_match patterns. Items with neither return nil.
func regexPredicate(item checklist.Item) Predicate {
	if item.MustMatch == "" && item.MustNotMatch == "" {
		return nil
	}

	return func(_ context.Context, artifact Artifact) (Outcome, error) {
		if item.MustMatch != "" {
			re, err := regexp.Compile(item.MustMatch)
			if err != nil {
				return Outcome{}, errors.Wrapf(err, "invalid must_match pattern %q", item.MustMatch)
			}
			if !re.MatchString(artifact.Content) {
				return Outcome{
					Result:  ResultFail,
					Message: fmt.Sprintf("required pattern %q not found", item.MustMatch),
				}, nil
			}
		}

		if item.MustNotMatch != "" {
			re, err := regexp.Compile(item.MustNotMatch)
			if err != nil {
				return Outcome{}, errors.Wrapf(err, "invalid must_not_match pattern %q", item.MustNotMatch)
			}
			if loc := re.FindString(artifact.Content); loc != "" {
				return Outcome{
					Result:  ResultFail,
					Message: fmt.Sprintf("forbidden pattern matched: %q", loc),
				}, nil
			}
		}

		return Outcome{Result: ResultPass}, nil
	}
}
