package graph

import (
	"github.com/ppiankov/txlens/internal/model"
	"github.com/ppiankov/txlens/internal/score"
)

// Highlight returns the node labels a rule's graph draws in the highlight
// color, in first-appearance order without duplicates.
func Highlight(rule model.RuleID, flow model.Flow, labels Labels) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(label string) {
		if label != "" && !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}

	switch rule {
	case model.RuleMultipleInputs:
		for _, addr := range flow.Inputs {
			add(labels.Inputs[addr])
		}
	case model.RuleAddressReuse:
		add(WalletLabel)
		add(ChangeLabel)
	case model.RuleRoundOutputs:
		for i, addr := range flow.Outputs {
			if i < len(flow.OutputValues) && score.IsRound(flow.OutputValues[i]) {
				add(labels.Outputs[addr])
			}
		}
	case model.RuleChangeSameAddress:
		add(ChangeLabel)
	case model.RuleFreshChange:
		for _, addr := range flow.Outputs {
			if !flow.HasInput(addr) {
				add(labels.Outputs[addr])
			}
		}
	case model.RuleEqualOutputs:
		for _, addr := range flow.Outputs {
			add(labels.Outputs[addr])
		}
	}

	return out
}
