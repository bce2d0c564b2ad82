package model

import "encoding/json"

// PoolEvent is one event emitted by a pool, either by the local engine or
// decoded from a chain log.
type PoolEvent struct {
	ChainID     uint64      `json:"chain_id,omitempty"`
	Pool        string      `json:"pool"`
	Sequence    uint64      `json:"sequence"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	TxHash      string      `json:"tx_hash,omitempty"`
	LogIndex    uint64      `json:"log_index,omitempty"`
	EventName   string      `json:"event_name"`
	Caller      string      `json:"caller"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     interface{} `json:"decoded"`
	PoolMeta    PoolMeta    `json:"pool_meta"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// PoolEventRecord is the JSON form of PoolEvent read back for aggregation.
type PoolEventRecord struct {
	ChainID     uint64          `json:"chain_id,omitempty"`
	Pool        string          `json:"pool"`
	Sequence    uint64          `json:"sequence"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	TxHash      string          `json:"tx_hash,omitempty"`
	LogIndex    uint64          `json:"log_index,omitempty"`
	EventName   string          `json:"event_name"`
	Caller      string          `json:"caller"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	PoolMeta    PoolMeta        `json:"pool_meta"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// PoolMeta carries the pool parameters in force when the event was emitted.
type PoolMeta struct {
	Tokens        []string `json:"tokens"`
	A             uint64   `json:"a"`
	SwapFee       uint64   `json:"swap_fee"`
	AdminFee      uint64   `json:"admin_fee"`
	VirtualPrice  string   `json:"virtual_price,omitempty"`
	LPTotalSupply string   `json:"lp_total_supply,omitempty"`
}

// RawLogRef keeps a minimal raw reference for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}
