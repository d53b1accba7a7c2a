package model

import "time"

// Report represents the complete privacy analysis of one transaction
type Report struct {
	TxID      string    `json:"txid"`       // Canonical (lower-case) transaction id
	Provider  string    `json:"provider"`   // Explorer API the record was fetched from
	FetchedAt time.Time `json:"fetched_at"` // When the analysis ran
	Confirmed bool      `json:"confirmed"`  // Whether the transaction was mined at fetch time
	Fee       int64     `json:"fee,omitempty"`

	Flow   Flow              `json:"flow"`             // Extracted addresses and values
	Labels map[string]string `json:"labels,omitempty"` // Display label per address

	Score  Score   `json:"score"`            // Score, judgment and breakdown
	Graphs []Graph `json:"graphs,omitempty"` // One rendered graph per triggered rule

	Explanation *Explanation `json:"explanation,omitempty"` // Optional, never affects score
	Warnings    []string     `json:"warnings,omitempty"`    // Non-fatal issues from optional collaborators
}

// Score is the transparent scoring result
type Score struct {
	Value    int      `json:"value"`    // 100 + sum of deltas, never clamped
	Judgment Judgment `json:"judgment"` // Human-readable band
	Entries  []Entry  `json:"breakdown"`
}

// Entry is one triggered heuristic. Entries are appended in rule order and
// never modified afterwards.
type Entry struct {
	Rule      RuleID `json:"rule"`
	Label     string `json:"label"`
	Delta     int    `json:"delta"`
	Rationale string `json:"rationale"`
}

// RuleID identifies a scoring heuristic
type RuleID string

const (
	RuleMultipleInputs    RuleID = "multiple_inputs"
	RuleAddressReuse      RuleID = "address_reuse"
	RuleRoundOutputs      RuleID = "round_outputs"
	RuleChangeSameAddress RuleID = "change_same_address"
	RuleFreshChange       RuleID = "fresh_change"
	RuleEqualOutputs      RuleID = "equal_outputs"
)

// Judgment is the verbal band a score falls into
type Judgment string

const (
	JudgmentExcellent Judgment = "Excellent privacy"
	JudgmentModerate  Judgment = "Moderate privacy"
	JudgmentWeak      Judgment = "Weak privacy"
	JudgmentVeryPoor  Judgment = "Very poor privacy"
)

// Graph is a rendered fund-flow image for one triggered rule
type Graph struct {
	Rule      RuleID   `json:"rule"`
	Label     string   `json:"label"`
	File      string   `json:"file"`                // File name inside the artifact directory
	Path      string   `json:"path"`                // Full filesystem path
	Highlight []string `json:"highlight,omitempty"` // Node labels drawn in the highlight color
	Reused    bool     `json:"reused"`              // Served from the artifact store
}

// Explanation contains an optional LLM-generated plain-language summary
type Explanation struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Text     string `json:"text"`
}
