package score

import (
	"github.com/ppiankov/txlens/internal/model"
)

// BaseScore is the starting score before any rule fires
const BaseScore = 100

// Round denominations in satoshis: 0.01, 0.05 and 0.1 BTC
var roundValues = map[int64]bool{
	1_000_000:  true,
	5_000_000:  true,
	10_000_000: true,
}

// rule is one independent heuristic. Rules never see each other's results.
type rule struct {
	id        model.RuleID
	label     string
	delta     int
	rationale string
	check     func(model.Flow) bool
}

// rules are evaluated in this order and the breakdown preserves it.
// address_reuse and change_same_address test the same intersection and always
// fire together; both entries are kept so the breakdown matches the
// established scoring.
var rules = []rule{
	{
		id:        model.RuleMultipleInputs,
		label:     "Multiple inputs",
		delta:     -20,
		rationale: "Spending several inputs together suggests they are controlled by the same wallet.",
		check:     func(f model.Flow) bool { return len(f.Inputs) > 1 },
	},
	{
		id:        model.RuleAddressReuse,
		label:     "Address reuse",
		delta:     -30,
		rationale: "An address appears on both sides of the transaction, linking the sender to the funds it receives back.",
		check:     sharesAddress,
	},
	{
		id:        model.RuleRoundOutputs,
		label:     "Round-number outputs",
		delta:     -10,
		rationale: "A round amount (0.01, 0.05 or 0.1 BTC) usually marks the payment, which exposes the other output as change.",
		check:     hasRoundOutput,
	},
	{
		id:        model.RuleChangeSameAddress,
		label:     "Change to same address",
		delta:     -20,
		rationale: "Change is sent back to an address that funded the transaction.",
		check:     sharesAddress,
	},
	{
		id:        model.RuleFreshChange,
		label:     "Fresh change address",
		delta:     10,
		rationale: "At least one output goes to an address that was not used as an input.",
		check:     hasFreshOutput,
	},
	{
		id:        model.RuleEqualOutputs,
		label:     "Equal outputs",
		delta:     15,
		rationale: "All outputs carry the same value, a CoinJoin-like shape that hides which output pays whom.",
		check:     allOutputsEqual,
	},
}

// Scorer calculates the privacy score and its breakdown
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate applies every rule to the flow. It is a pure function of its input.
func (s *Scorer) Calculate(flow model.Flow) model.Score {
	total := BaseScore
	entries := make([]model.Entry, 0, len(rules))

	for _, r := range rules {
		if !r.check(flow) {
			continue
		}
		entries = append(entries, model.Entry{
			Rule:      r.id,
			Label:     r.label,
			Delta:     r.delta,
			Rationale: r.rationale,
		})
		total += r.delta
	}

	return model.Score{
		Value:    total,
		Judgment: Judge(total),
		Entries:  entries,
	}
}

// Judge maps a score to its verbal band
func Judge(score int) model.Judgment {
	switch {
	case score >= 90:
		return model.JudgmentExcellent
	case score >= 70:
		return model.JudgmentModerate
	case score >= 50:
		return model.JudgmentWeak
	default:
		return model.JudgmentVeryPoor
	}
}

// Rules returns the rule IDs in evaluation order
func Rules() []model.RuleID {
	ids := make([]model.RuleID, len(rules))
	for i, r := range rules {
		ids[i] = r.id
	}
	return ids
}

func sharesAddress(f model.Flow) bool {
	for _, out := range f.Outputs {
		if f.HasInput(out) {
			return true
		}
	}
	return false
}

func hasRoundOutput(f model.Flow) bool {
	for _, v := range f.OutputValues {
		if roundValues[v] {
			return true
		}
	}
	return false
}

func hasFreshOutput(f model.Flow) bool {
	for _, out := range f.Outputs {
		if !f.HasInput(out) {
			return true
		}
	}
	return false
}

func allOutputsEqual(f model.Flow) bool {
	if len(f.OutputValues) < 2 {
		return false
	}
	for _, v := range f.OutputValues[1:] {
		if v != f.OutputValues[0] {
			return false
		}
	}
	return true
}

// IsRound reports whether value is one of the round denominations
func IsRound(value int64) bool {
	return roundValues[value]
}
