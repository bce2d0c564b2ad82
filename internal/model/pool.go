package model

// Pool is a pool row as registered by the aggregator.
type Pool struct {
	ChainID        uint64
	Address        string
	Tokens         []string
	A              uint64
	SwapFee        uint64
	AdminFee       uint64
	FirstSeenBlock uint64
}
