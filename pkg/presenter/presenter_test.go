package presenter

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/jingkaihe/promptpipe/pkg/checklist"
	"github.com/jingkaihe/promptpipe/pkg/review"
)

func newTestPresenter() (*TerminalPresenter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewWithOptions(&out, &errOut, ColorNever), &out, &errOut
}

func TestError(t *testing.T) {
	p, out, errOut := newTestPresenter()

	p.Error(errors.New("boom"), "loading template")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "[ERROR] loading template: boom")
}

func TestErrorNilIsSilent(t *testing.T) {
	p, _, errOut := newTestPresenter()
	p.Error(nil, "context")
	assert.Empty(t, errOut.String())
}

func TestMessagesRespectQuietMode(t *testing.T) {
	p, out, _ := newTestPresenter()
	p.SetQuiet(true)

	p.Success("done")
	p.Info("details")
	p.Warning("careful")
	p.Section("Header")
	p.Separator()

	assert.Empty(t, out.String())
	assert.True(t, p.IsQuiet())
}

func TestSection(t *testing.T) {
	p, out, _ := newTestPresenter()

	p.Section("Composed Prompt")

	assert.Contains(t, out.String(), "Composed Prompt\n")
	assert.Contains(t, out.String(), "---------------")
}

func TestReport(t *testing.T) {
	p, out, _ := newTestPresenter()

	report := &review.Report{
		Status: review.StatusBlocked,
		Findings: []review.Finding{
			{Item: "no-secrets", Description: "No hardcoded credentials", Severity: checklist.SeverityCritical, Result: review.ResultFail, Message: `forbidden pattern matched: "password"`},
			{Item: "style", Description: "Follows style guide", Severity: checklist.SeverityLow, Result: review.ResultSkip, Message: "no predicate; requires manual review"},
		},
		Counts: review.Counts{Critical: 1, Low: 1},
	}

	p.Report(report)

	output := out.String()
	assert.Contains(t, output, "✗ [CRITICAL] No hardcoded credentials")
	assert.Contains(t, output, "forbidden pattern matched")
	assert.Contains(t, output, "- [LOW] Follows style guide")
	assert.Contains(t, output, "critical: 1 | high: 0 | medium: 0 | low: 1")
	assert.Contains(t, output, "Status: BLOCKED")
}

func TestReportQuietShowsOnlyStatus(t *testing.T) {
	p, out, _ := newTestPresenter()
	p.SetQuiet(true)

	report := &review.Report{
		Status: review.StatusPass,
		Findings: []review.Finding{
			{Description: "anything", Severity: checklist.SeverityLow, Result: review.ResultPass},
		},
		Counts: review.Counts{Low: 1},
	}
	p.Report(report)

	assert.Equal(t, "Status: PASS\n", out.String())
}
