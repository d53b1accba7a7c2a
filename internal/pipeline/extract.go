package pipeline

import "github.com/ppiankov/txlens/internal/model"

// Extract derives the ordered address and value lists from a transaction.
// Unresolved addresses become model.UnknownAddress; nothing is sorted or
// deduplicated.
func Extract(tx *model.Transaction) model.Flow {
	flow := model.Flow{
		Inputs:       make([]string, 0, len(tx.Inputs)),
		Outputs:      make([]string, 0, len(tx.Outputs)),
		OutputValues: make([]int64, 0, len(tx.Outputs)),
		InputValues:  make([]int64, 0, len(tx.Inputs)),
	}

	for _, in := range tx.Inputs {
		flow.Inputs = append(flow.Inputs, addressOrUnknown(in.Address))
		flow.InputValues = append(flow.InputValues, in.Value)
	}

	for _, out := range tx.Outputs {
		flow.Outputs = append(flow.Outputs, addressOrUnknown(out.Address))
		flow.OutputValues = append(flow.OutputValues, out.Value)
	}

	return flow
}

func addressOrUnknown(addr string) string {
	if addr == "" {
		return model.UnknownAddress
	}
	return addr
}
