// Package check runs the verification decision flow: verify a token, consult
// the tag's rule when verification fails, and produce the final verdict with
// its user-facing message.
package check

// Outcome is the terminal state of one validation attempt.
type Outcome string

const (
	// OutcomeValid means verification passed; the submission proceeds.
	OutcomeValid Outcome = "valid"
	// OutcomeTimedOut means the token was reused or aged out of its validity
	// window. The token is at fault, not the user; they are prompted to
	// resubmit rather than treated as a bot.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeBlockedByPolicy means verification failed and the rule (or the
	// default-deny policy when no rule exists) blocked the submission.
	OutcomeBlockedByPolicy Outcome = "blocked_by_policy"
	// OutcomeAllowedByPolicy means verification failed but a rule let the
	// submission proceed, stat-logged for audit.
	OutcomeAllowedByPolicy Outcome = "allowed_by_policy"
	// OutcomeAllowedWithCaution means a Caution rule let the submission
	// proceed after the caution hook declined to block it.
	OutcomeAllowedWithCaution Outcome = "allowed_with_caution"
	// OutcomeGeneralFailure means the check could not run at all: no token
	// was submitted or the verification infrastructure failed.
	OutcomeGeneralFailure Outcome = "general_failure"
)

func (o Outcome) String() string { return string(o) }

// User-facing messages per outcome. Internal detail never leaks here; it goes
// to logs and the diagnostic header instead.
const (
	MessageBlocked        = "We have detected that the form may be a spam submission. Please try to submit the form again."
	MessageGeneralFailure = "Sorry, the form submission failed. You may like to try again."
	MessageTimeout        = "Please check the information provided and submit the form again."
)

// Decision is the result of one validation attempt.
type Decision struct {
	Outcome Outcome
	// Allowed reports whether the submission may proceed.
	Allowed bool
	// Message is the user-facing text for disallowed outcomes, empty when
	// Allowed is true.
	Message string
	// Threshold is the score threshold the check ran against.
	Threshold float64
	// Score is the provider's response score, nil when the provider has no
	// score concept or the response carried none.
	Score *float64
	// ErrorCodes are the provider's error codes, verbatim and never nil.
	ErrorCodes []string
	// RuleID identifies the rule that decided the outcome, empty when the
	// default policy applied.
	RuleID string
}

func (o Outcome) allowed() bool {
	switch o {
	case OutcomeValid, OutcomeAllowedByPolicy, OutcomeAllowedWithCaution:
		return true
	}
	return false
}

func (o Outcome) message() string {
	switch o {
	case OutcomeTimedOut:
		return MessageTimeout
	case OutcomeBlockedByPolicy:
		return MessageBlocked
	case OutcomeGeneralFailure:
		return MessageGeneralFailure
	}
	return ""
}
