package model

// UnknownAddress is substituted wherever the provider could not resolve an address
const UnknownAddress = "unknown"

// Transaction is the record fetched from the block explorer
type Transaction struct {
	TxID      string   `json:"txid"`
	Inputs    []Input  `json:"inputs"`
	Outputs   []Output `json:"outputs"`
	Fee       int64    `json:"fee,omitempty"` // Satoshis
	Confirmed bool     `json:"confirmed"`     // Whether the transaction is mined
	Height    int64    `json:"block_height,omitempty"`
}

// Input references a previous output
type Input struct {
	PrevTxID string `json:"prev_txid,omitempty"`
	PrevVout int    `json:"prev_vout"`
	Coinbase bool   `json:"coinbase,omitempty"`
	Address  string `json:"address,omitempty"` // Empty when the prevout carries no address
	Value    int64  `json:"value,omitempty"`   // Prevout value in satoshis, 0 when unknown
}

// Output is a newly created output
type Output struct {
	Address string `json:"address,omitempty"` // Empty for OP_RETURN and non-standard scripts
	Value   int64  `json:"value"`             // Satoshis
	Type    string `json:"type,omitempty"`    // Provider script type (p2wpkh, p2tr, op_return...)
}

// Flow is the ordered address/value view of a transaction that the scorer
// and the visualizer work on. Order is exactly the provider's order.
type Flow struct {
	Inputs       []string `json:"inputs"`
	Outputs      []string `json:"outputs"`
	OutputValues []int64  `json:"output_values"`
	InputValues  []int64  `json:"input_values,omitempty"`
}

// HasInput reports whether addr appears among the input addresses
func (f Flow) HasInput(addr string) bool {
	for _, in := range f.Inputs {
		if in == addr {
			return true
		}
	}
	return false
}

// SatoshisToBTC converts an integer amount in satoshis to BTC
func SatoshisToBTC(value int64) float64 {
	return float64(value) / 100_000_000
}
