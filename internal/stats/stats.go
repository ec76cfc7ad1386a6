// Package stats emits structured verification statistics for later analysis.
// Recording is disabled by default and enabled via configuration; events are
// never part of the decision path, a failed emit never fails a check.
package stats

import (
	"time"
)

// Kind classifies a verification stat event.
type Kind string

const (
	KindVerifyFailed        Kind = "verify_failed"         // API returned success=false
	KindScoreBelowThreshold Kind = "score_below_threshold" // response score < requested threshold
	KindActionMismatch      Kind = "action_mismatch"       // requested action != response action
	KindTimeoutOrDuplicate  Kind = "timeout_or_duplicate"  // token reused or aged out
	KindBadRequest          Kind = "bad_request"           // local misconfiguration signalled remotely
	KindPolicyBlocked       Kind = "policy_blocked"        // rule or default policy blocked the request
	KindPolicyAllowed       Kind = "policy_allowed"        // rule allowed a failed verification
	KindPolicyCaution       Kind = "policy_caution"        // rule allowed with caution
	KindValid               Kind = "valid"                 // verification passed
)

// Event is one verification stat. Keep it transport-agnostic so sinks can
// fan out (slog, Kafka, memory in tests).
type Event struct {
	ID             string   `json:"id"`
	Kind           Kind     `json:"kind"`
	Provider       string   `json:"provider,omitempty"`
	Tag            string   `json:"tag,omitempty"`
	Action         string   `json:"action,omitempty"`
	ResponseAction string   `json:"response_action,omitempty"`
	Score          *float64 `json:"score,omitempty"`
	Threshold      float64  `json:"threshold,omitempty"`
	RuleID         string   `json:"rule_id,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
