package domain

// Receipt is the subset of a transaction receipt the engine inspects.
type Receipt struct {
	ChainID           uint64
	TxHash            string
	BlockNumber       uint64
	BlockHash         string
	TxIndex           uint64
	Status            uint64
	CumulativeGasUsed uint64
	GasUsed           uint64
	ContractAddress   string
	EffectiveGasPrice string
}

func (r Receipt) Succeeded() bool {
	return r.Status == 1
}
