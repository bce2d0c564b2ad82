package main

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"stablePool/internal/config"
	"stablePool/internal/mathutil"
	"stablePool/internal/model"
	"stablePool/internal/pool"
	"stablePool/internal/sim"
)

const opVirtualPrice = "virtual_price"

type quoteResult struct {
	Op      string   `json:"op"`
	Amounts []string `json:"amounts"`
	Display []string `json:"display"`
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price an operation against a pool without changing it",
		RunE:  runQuote,
	}
	addPoolFlags(cmd)
	cmd.Flags().String("op", model.OpSwap, "swap, add_liquidity, remove_liquidity, remove_liquidity_imbalance, remove_liquidity_one_token or virtual_price")
	cmd.Flags().Int("from", 0, "swap input token index")
	cmd.Flags().Int("to", 1, "swap output token index")
	cmd.Flags().Int("index", 0, "token index for one-token withdrawals")
	cmd.Flags().String("amount", "", "input amount (token units for swaps, shares for withdrawals)")
	cmd.Flags().StringSlice("amounts", nil, "per-token amounts (comma-separated)")
	addLogFlag(cmd)
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadQuote(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	snapshot, err := cfg.Pool.Snapshot()
	if err != nil {
		return err
	}
	simulator, err := sim.New(snapshot, nil, nil, logger)
	if err != nil {
		return err
	}

	result, err := quote(simulator.Pool(), cfg)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func quote(p *pool.Pool, cfg config.QuoteConfig) (quoteResult, error) {
	state := p.State()
	tokenDecimals := func(i int) uint8 { return state.Decimals[i] }
	shareDecimals := func(int) uint8 { return pool.PoolPrecisionDecimals }

	switch cfg.Op {
	case model.OpSwap:
		dx, err := mathutil.Parse(cfg.Amount)
		if err != nil {
			return quoteResult{}, err
		}
		dy, err := p.CalculateSwap(cfg.From, cfg.To, dx)
		if err != nil {
			return quoteResult{}, err
		}
		return render(cfg.Op, []*uint256.Int{dy}, func(int) uint8 { return state.Decimals[cfg.To] }), nil
	case model.OpAddLiquidity, model.OpRemoveLiquidityImbalance:
		amounts, err := mathutil.ParseAll(cfg.Amounts)
		if err != nil {
			return quoteResult{}, err
		}
		shares, err := p.CalculateTokenAmount(amounts, cfg.Op == model.OpAddLiquidity)
		if err != nil {
			return quoteResult{}, err
		}
		return render(cfg.Op, []*uint256.Int{shares}, shareDecimals), nil
	case model.OpRemoveLiquidity:
		shares, err := mathutil.Parse(cfg.Amount)
		if err != nil {
			return quoteResult{}, err
		}
		out, err := p.CalculateRemoveLiquidity(shares)
		if err != nil {
			return quoteResult{}, err
		}
		return render(cfg.Op, out, tokenDecimals), nil
	case model.OpRemoveLiquidityOneToken:
		shares, err := mathutil.Parse(cfg.Amount)
		if err != nil {
			return quoteResult{}, err
		}
		out, err := p.CalculateRemoveLiquidityOneToken(shares, cfg.Index)
		if err != nil {
			return quoteResult{}, err
		}
		return render(cfg.Op, []*uint256.Int{out}, func(int) uint8 { return state.Decimals[cfg.Index] }), nil
	case opVirtualPrice:
		vp, err := p.GetVirtualPrice()
		if err != nil {
			return quoteResult{}, err
		}
		return render(cfg.Op, []*uint256.Int{vp}, shareDecimals), nil
	default:
		return quoteResult{}, fmt.Errorf("unknown quote op %q", cfg.Op)
	}
}

func render(op string, values []*uint256.Int, decimals func(int) uint8) quoteResult {
	result := quoteResult{Op: op, Amounts: mathutil.FormatAll(values), Display: make([]string, len(values))}
	for i, value := range values {
		places := int32(decimals(i))
		result.Display[i] = decimal.NewFromBigInt(value.ToBig(), -places).StringFixed(places)
	}
	return result
}
