package screener

import (
	"fmt"
	"time"

	"github.com/wonny/gapscan/internal/contracts"
)

// Stage names a per-symbol step, used in warnings and metrics
type Stage string

const (
	StageDiscover Stage = "discover"
	StageQuote    Stage = "quote"
	StageHistory  Stage = "history"
	StageFloat    Stage = "float"
	StageCatalyst Stage = "catalyst"
	StageEvaluate Stage = "evaluate"
)

// Warning is a non-fatal per-symbol failure
type Warning struct {
	Ticker  contracts.Ticker `json:"ticker"`
	Stage   Stage            `json:"stage"`
	Message string           `json:"message"`
	Err     error            `json:"-"`
}

func newWarning(t contracts.Ticker, stage Stage, err error) Warning {
	return Warning{Ticker: t, Stage: stage, Message: err.Error(), Err: err}
}

// Request is one scan invocation. Non-empty Tickers bypass discovery.
type Request struct {
	Tickers []string `json:"tickers,omitempty"`
}

// Report is the outcome of one complete scan
type Report struct {
	Criteria     contracts.FilterCriteria    `json:"criteria"`
	Candidates   []contracts.Ticker          `json:"candidates"`
	Results      []contracts.ScreenResult    `json:"results"`
	Warnings     []Warning                   `json:"warnings,omitempty"`
	Rejected     map[contracts.Ticker]string `json:"rejected,omitempty"`
	Skipped      []contracts.Ticker          `json:"skipped,omitempty"`
	NoCandidates bool                        `json:"no_candidates"`
	StartedAt    time.Time                   `json:"started_at"`
	FinishedAt   time.Time                   `json:"finished_at"`
}

// NoQualifying reports whether candidates existed but none passed
func (r *Report) NoQualifying() bool {
	return !r.NoCandidates && len(r.Results) == 0
}

// Duration is the wall time of the scan
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Message is the operator-facing summary line
func (r *Report) Message() string {
	switch {
	case r.NoCandidates:
		return "no candidates found"
	case r.NoQualifying():
		return "no qualifying stocks found"
	case len(r.Results) == 1:
		return "1 qualifying stock found"
	default:
		return fmt.Sprintf("%d qualifying stocks found", len(r.Results))
	}
}

// outcome is the per-symbol result written by exactly one worker
type outcome struct {
	result   *contracts.ScreenResult
	reason   string
	skipped  bool
	warnings []Warning
}
