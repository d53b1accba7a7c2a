// Package graph builds and renders the fund-flow diagram of a transaction.
package graph

import (
	"fmt"

	"github.com/ppiankov/txlens/internal/model"
)

// Fixed node labels
const (
	TxLabel     = "TX"
	WalletLabel = "Your Wallet"
	ChangeLabel = "Your Change"
)

// Labels holds the display name of every address in one analysis. Input and
// output sides are kept apart because an address that is both is drawn twice:
// once as its input label and once as "Your Change".
type Labels struct {
	Inputs  map[string]string
	Outputs map[string]string
}

// AssignLabels walks inputs then outputs in provider order. The first input is
// "Your Wallet"; outputs paying an input address are "Your Change"; every
// other newly seen address gets "Wallet n" or "Recipient n", where n counts
// newly seen addresses across both sides.
func AssignLabels(flow model.Flow) Labels {
	labels := Labels{
		Inputs:  make(map[string]string, len(flow.Inputs)),
		Outputs: make(map[string]string, len(flow.Outputs)),
	}

	n := 1
	for i, addr := range flow.Inputs {
		if _, seen := labels.Inputs[addr]; seen {
			continue
		}
		if i == 0 {
			labels.Inputs[addr] = WalletLabel
		} else {
			labels.Inputs[addr] = fmt.Sprintf("Wallet %d", n)
		}
		n++
	}

	for _, addr := range flow.Outputs {
		if _, seen := labels.Outputs[addr]; seen {
			continue
		}
		if _, isInput := labels.Inputs[addr]; isInput {
			labels.Outputs[addr] = ChangeLabel
			continue
		}
		labels.Outputs[addr] = fmt.Sprintf("Recipient %d", n)
		n++
	}

	return labels
}

// ByAddress flattens the labels into one address map. Addresses on both
// sides keep their input label.
func (l Labels) ByAddress() map[string]string {
	out := make(map[string]string, len(l.Inputs)+len(l.Outputs))
	for addr, label := range l.Outputs {
		out[addr] = label
	}
	for addr, label := range l.Inputs {
		out[addr] = label
	}
	return out
}
