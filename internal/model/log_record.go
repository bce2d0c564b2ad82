package model

// LogRecord is an EVM log as produced by a pool contract: topic0 is the event
// signature hash, topic1 the indexed caller, data the ABI-encoded payload.
type LogRecord struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash,omitempty"`
	TxHash      string   `json:"tx_hash,omitempty"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed,omitempty"`
	Timestamp   uint64   `json:"timestamp"`
}
