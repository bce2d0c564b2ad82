package aggregate

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stablePool/internal/dex"
)

// DecimalsResolver looks token decimals up in a fixed table first and falls
// back to ERC20 calls through a bounded cache.
type DecimalsResolver struct {
	static map[common.Address]uint8
	caller dex.ContractCaller
	cache  *dex.TokenMetaCache
}

// NewDecimalsResolver builds a resolver. caller and cache may be nil, in
// which case only the static table answers.
func NewDecimalsResolver(static map[common.Address]uint8, caller dex.ContractCaller, cache *dex.TokenMetaCache) *DecimalsResolver {
	if static == nil {
		static = make(map[common.Address]uint8)
	}
	return &DecimalsResolver{static: static, caller: caller, cache: cache}
}

func (r *DecimalsResolver) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	if decimals, ok := r.static[token]; ok {
		return decimals, nil
	}
	if r.cache != nil {
		if meta, ok := r.cache.Get(token); ok {
			return meta.Decimals, nil
		}
	}
	if r.caller == nil {
		return 0, fmt.Errorf("no decimals known for %s", token.Hex())
	}
	meta, err := dex.FetchTokenMeta(ctx, r.caller, token, nil)
	if err != nil {
		return 0, err
	}
	if r.cache != nil {
		r.cache.Set(token, meta)
	}
	return meta.Decimals, nil
}
