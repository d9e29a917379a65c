package model

import "strings"

const (
	ActionNone         = "none"
	ActionPayoutSigned = "payout_signed"

	actionPayoutFailedPrefix = "payout_failed:"
	actionErrorPrefix        = "error:"
)

// ActionPayoutFailed formats the action for a failed payout attempt.
func ActionPayoutFailed(reason string) string {
	return actionPayoutFailedPrefix + reason
}

// ActionError formats the action for a check that failed before evaluation.
func ActionError(reason string) string {
	return actionErrorPrefix + reason
}

// IsPayoutFailed reports whether action records a failed payout.
func IsPayoutFailed(action string) bool {
	return strings.HasPrefix(action, actionPayoutFailedPrefix)
}

// IsError reports whether action records a check error.
func IsError(action string) bool {
	return strings.HasPrefix(action, actionErrorPrefix)
}

// CycleResult is the outcome of processing one trigger in a monitoring cycle.
type CycleResult struct {
	TriggerID      string `json:"trigger_id"`
	SourceKey      string `json:"source_key"`
	ObservedStatus string `json:"observed_status"`
	ConditionMet   bool   `json:"condition_met"`
	Action         string `json:"action"`
	TxHash         string `json:"tx_hash,omitempty"`
}

// CycleReport summarises one monitoring cycle.
type CycleReport struct {
	Checked    int           `json:"checked"`
	Skipped    int           `json:"skipped"`
	Results    []CycleResult `json:"results"`
	StartedAt  string        `json:"started_at"`
	FinishedAt string        `json:"finished_at"`
}

// ActivityEntry is one row of the recent-activity log.
type ActivityEntry struct {
	Timestamp      string `json:"timestamp"`
	TriggerID      string `json:"trigger_id"`
	SourceKey      string `json:"source_key"`
	ObservedStatus string `json:"observed_status"`
	ConditionMet   bool   `json:"condition_met"`
	Action         string `json:"action"`
	TxHash         string `json:"tx_hash,omitempty"`
}
