package model

import "time"

// Privilege labels (spec §3). Stage 1 and Stage 2 both produce subsets of
// this vocabulary.
const (
	LabelPrivilegedACP = "PRIVILEGED:ACP" // attorney-client privilege
	LabelPrivilegedWP  = "PRIVILEGED:WP"  // work product
	LabelPrivilegedCI  = "PRIVILEGED:CI"  // common interest
	LabelResponsive    = "RESPONSIVE"
	LabelNonPrivileged = "NONPRIVILEGED"
)

// PrivilegeDecision is the outcome of the Privilege Service pipeline for one
// document (spec §3, §4.8). Never mutated after creation.
type PrivilegeDecision struct {
	DocID            string    `json:"doc_id"`
	Stage            int       `json:"stage"`
	Labels           []string  `json:"labels"`
	Confidence       float64   `json:"confidence"`
	NeedsReview      bool      `json:"needs_review"`
	ReasoningHash    string    `json:"reasoning_hash"`
	ReasoningSummary string    `json:"reasoning_summary"`
	PolicyVersion    string    `json:"policy_version"`
	ModelVersion     string    `json:"model_version"`
	DecisionTS       time.Time `json:"decision_ts"`
}
