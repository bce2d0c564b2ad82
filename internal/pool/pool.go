package pool

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"stablePool/internal/mathutil"
	"stablePool/internal/model"
)

// Config identifies the pool in emitted events.
type Config struct {
	Address common.Address
	ChainID uint64
	// Now stamps emitted events; defaults to time.Now.
	Now func() time.Time
}

// Pool runs the stableswap operations against one State. Callers serialise
// access; the engine holds no locks.
type Pool struct {
	cfg    Config
	state  *State
	tokens []TokenLedger
	shares ShareLedger
	sink   EventSink
	logger *zap.Logger
	seq    uint64
}

// New binds state to its ledgers. tokens must follow the state's token order
// and the share ledger supply must agree with the state.
func New(cfg Config, state *State, tokens []TokenLedger, shares ShareLedger, sink EventSink, logger *zap.Logger) (*Pool, error) {
	if state == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if len(tokens) != state.N() {
		return nil, fmt.Errorf("got %d token ledgers for %d tokens", len(tokens), state.N())
	}
	for i, token := range tokens {
		if token == nil {
			return nil, fmt.Errorf("token ledger %d is nil", i)
		}
	}
	if shares == nil {
		return nil, fmt.Errorf("share ledger is nil")
	}
	if supply := shares.TotalSupply(); !supply.Eq(state.LPTotalSupply) {
		return nil, fmt.Errorf("share supply %s does not match pool supply %s", mathutil.Format(supply), mathutil.Format(state.LPTotalSupply))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:    cfg,
		state:  state,
		tokens: tokens,
		shares: shares,
		sink:   sink,
		logger: logger,
	}, nil
}

// SetSequence sets the sequence number of the last emitted event, so a
// restored pool continues numbering where it stopped.
func (p *Pool) SetSequence(seq uint64) {
	p.seq = seq
}

// Sequence returns the sequence number of the last emitted event.
func (p *Pool) Sequence() uint64 {
	return p.seq
}

// SetPaused flips the pause gate. It is the owner's hook; the engine itself
// only reads the flag.
func (p *Pool) SetPaused(paused bool) {
	p.state.Paused = paused
	p.logger.Info("pause flag set", zap.Bool("paused", paused))
}

// Swap sells dx of token i for at least minDy of token j.
func (p *Pool) Swap(caller common.Address, i, j int, dx, minDy *uint256.Int) (*uint256.Int, error) {
	if err := p.whenNotPaused(); err != nil {
		return nil, err
	}
	quote, err := p.state.calculateSwap(i, j, dx)
	if err != nil {
		return nil, err
	}
	if minDy != nil && quote.dy.Lt(minDy) {
		return nil, fmt.Errorf("%w: swap output %s below minimum %s", ErrSlippage, mathutil.Format(quote.dy), mathutil.Format(minDy))
	}
	if err := p.checkTokenBalance(caller, i, dx); err != nil {
		return nil, err
	}

	next := p.state.Clone()
	next.Balances[i].Add(next.Balances[i], dx)
	next.Balances[j].Sub(next.Balances[j], new(uint256.Int).Add(quote.dy, quote.adminFee))
	next.AdminBalances[j].Add(next.AdminBalances[j], quote.adminFee)

	pulls := make([]*uint256.Int, p.state.N())
	pushes := make([]*uint256.Int, p.state.N())
	pulls[i] = dx
	pushes[j] = quote.dy
	if err := p.settle(caller, pulls, pushes, nil, nil); err != nil {
		return nil, err
	}
	p.commit(next)

	p.logger.Debug("swap",
		zap.String("caller", caller.Hex()),
		zap.Int("from", i),
		zap.Int("to", j),
		zap.String("dx", mathutil.Format(dx)),
		zap.String("dy", mathutil.Format(quote.dy)),
	)
	p.emit(caller, model.EventTokenSwap, model.TokenSwapData{
		Buyer:        caller.Hex(),
		TokensSold:   mathutil.Format(dx),
		TokensBought: mathutil.Format(quote.dy),
		SoldID:       uint64(i),
		BoughtID:     uint64(j),
	})
	return quote.dy.Clone(), nil
}

// AddLiquidity deposits amounts and mints at least minMint shares.
func (p *Pool) AddLiquidity(caller common.Address, amounts []*uint256.Int, minMint *uint256.Int) (*uint256.Int, error) {
	if err := p.whenNotPaused(); err != nil {
		return nil, err
	}
	quote, err := p.state.calculateAddLiquidity(amounts)
	if err != nil {
		return nil, err
	}
	if minMint != nil && quote.shares.Lt(minMint) {
		return nil, fmt.Errorf("%w: minted %s below minimum %s", ErrSlippage, mathutil.Format(quote.shares), mathutil.Format(minMint))
	}
	for i, amount := range amounts {
		if err := p.checkTokenBalance(caller, i, amount); err != nil {
			return nil, err
		}
	}

	next := p.state.Clone()
	for i := range next.Balances {
		next.Balances[i] = quote.balances[i]
		next.AdminBalances[i].Add(next.AdminBalances[i], quote.adminFees[i])
	}
	next.LPTotalSupply.Add(next.LPTotalSupply, quote.shares)

	if err := p.settle(caller, amounts, nil, nil, quote.shares); err != nil {
		return nil, err
	}
	p.commit(next)

	p.logger.Debug("add liquidity",
		zap.String("caller", caller.Hex()),
		zap.Strings("amounts", mathutil.FormatAll(amounts)),
		zap.String("minted", mathutil.Format(quote.shares)),
	)
	p.emit(caller, model.EventAddLiquidity, model.AddLiquidityData{
		Provider:      caller.Hex(),
		TokenAmounts:  mathutil.FormatAll(amounts),
		Fees:          mathutil.FormatAll(quote.fees),
		Invariant:     mathutil.Format(quote.invariant),
		LPTokenSupply: mathutil.Format(next.LPTotalSupply),
	})
	return quote.shares.Clone(), nil
}

// RemoveLiquidity burns lpAmount shares for a proportional share of every
// reserve. It stays available while the pool is paused.
func (p *Pool) RemoveLiquidity(caller common.Address, lpAmount *uint256.Int, minAmounts []*uint256.Int) ([]*uint256.Int, error) {
	if minAmounts != nil {
		if err := p.state.checkAmounts(minAmounts); err != nil {
			return nil, err
		}
	}
	out, err := p.state.calculateRemoveLiquidity(lpAmount)
	if err != nil {
		return nil, err
	}
	for i, amount := range out {
		if minAmounts != nil && amount.Lt(minAmounts[i]) {
			return nil, fmt.Errorf("%w: token %d output %s below minimum %s", ErrSlippage, i, mathutil.Format(amount), mathutil.Format(minAmounts[i]))
		}
	}
	if err := p.checkShareBalance(caller, lpAmount); err != nil {
		return nil, err
	}

	next := p.state.Clone()
	for i, amount := range out {
		next.Balances[i].Sub(next.Balances[i], amount)
	}
	next.LPTotalSupply.Sub(next.LPTotalSupply, lpAmount)

	if err := p.settle(caller, nil, out, lpAmount, nil); err != nil {
		return nil, err
	}
	p.commit(next)

	p.logger.Debug("remove liquidity",
		zap.String("caller", caller.Hex()),
		zap.String("burned", mathutil.Format(lpAmount)),
		zap.Strings("amounts", mathutil.FormatAll(out)),
	)
	p.emit(caller, model.EventRemoveLiquidity, model.RemoveLiquidityData{
		Provider:      caller.Hex(),
		TokenAmounts:  mathutil.FormatAll(out),
		LPTokenSupply: mathutil.Format(next.LPTotalSupply),
	})
	return mathutil.CloneAll(out), nil
}

// RemoveLiquidityImbalance withdraws exactly amounts, burning at most maxBurn
// shares.
func (p *Pool) RemoveLiquidityImbalance(caller common.Address, amounts []*uint256.Int, maxBurn *uint256.Int) (*uint256.Int, error) {
	if err := p.whenNotPaused(); err != nil {
		return nil, err
	}
	quote, err := p.state.calculateRemoveImbalance(amounts)
	if err != nil {
		return nil, err
	}
	if maxBurn != nil && quote.shares.Gt(maxBurn) {
		return nil, fmt.Errorf("%w: burn %s above maximum %s", ErrSlippage, mathutil.Format(quote.shares), mathutil.Format(maxBurn))
	}
	if err := p.checkShareBalance(caller, quote.shares); err != nil {
		return nil, err
	}

	next := p.state.Clone()
	for i := range next.Balances {
		next.Balances[i] = quote.balances[i]
		next.AdminBalances[i].Add(next.AdminBalances[i], quote.adminFees[i])
	}
	next.LPTotalSupply.Sub(next.LPTotalSupply, quote.shares)

	if err := p.settle(caller, nil, amounts, quote.shares, nil); err != nil {
		return nil, err
	}
	p.commit(next)

	p.logger.Debug("remove liquidity imbalance",
		zap.String("caller", caller.Hex()),
		zap.Strings("amounts", mathutil.FormatAll(amounts)),
		zap.String("burned", mathutil.Format(quote.shares)),
	)
	p.emit(caller, model.EventRemoveLiquidityImbalance, model.RemoveLiquidityImbalanceData{
		Provider:      caller.Hex(),
		TokenAmounts:  mathutil.FormatAll(amounts),
		Fees:          mathutil.FormatAll(quote.fees),
		Invariant:     mathutil.Format(quote.invariant),
		LPTokenSupply: mathutil.Format(next.LPTotalSupply),
	})
	return quote.shares.Clone(), nil
}

// RemoveLiquidityOneToken burns lpAmount shares for token idx only.
func (p *Pool) RemoveLiquidityOneToken(caller common.Address, lpAmount *uint256.Int, idx int, minAmount *uint256.Int) (*uint256.Int, error) {
	if err := p.whenNotPaused(); err != nil {
		return nil, err
	}
	quote, err := p.state.calculateRemoveOneToken(lpAmount, idx)
	if err != nil {
		return nil, err
	}
	if minAmount != nil && quote.dy.Lt(minAmount) {
		return nil, fmt.Errorf("%w: output %s below minimum %s", ErrSlippage, mathutil.Format(quote.dy), mathutil.Format(minAmount))
	}
	if err := p.checkShareBalance(caller, lpAmount); err != nil {
		return nil, err
	}

	supplyBefore := p.state.LPTotalSupply.Clone()
	next := p.state.Clone()
	next.Balances[idx].Sub(next.Balances[idx], new(uint256.Int).Add(quote.dy, quote.adminFee))
	next.AdminBalances[idx].Add(next.AdminBalances[idx], quote.adminFee)
	next.LPTotalSupply.Sub(next.LPTotalSupply, lpAmount)

	pushes := make([]*uint256.Int, p.state.N())
	pushes[idx] = quote.dy
	if err := p.settle(caller, nil, pushes, lpAmount, nil); err != nil {
		return nil, err
	}
	p.commit(next)

	p.logger.Debug("remove liquidity one token",
		zap.String("caller", caller.Hex()),
		zap.Int("index", idx),
		zap.String("burned", mathutil.Format(lpAmount)),
		zap.String("dy", mathutil.Format(quote.dy)),
	)
	p.emit(caller, model.EventRemoveLiquidityOne, model.RemoveLiquidityOneData{
		Provider:      caller.Hex(),
		LPTokenAmount: mathutil.Format(lpAmount),
		LPTokenSupply: mathutil.Format(supplyBefore),
		BoughtID:      uint64(idx),
		TokensBought:  mathutil.Format(quote.dy),
	})
	return quote.dy.Clone(), nil
}

func (p *Pool) whenNotPaused() error {
	if p.state.Paused {
		return ErrPoolPaused
	}
	return nil
}

func (p *Pool) checkTokenBalance(caller common.Address, i int, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if balance := p.tokens[i].BalanceOf(caller); balance.Lt(amount) {
		return fmt.Errorf("%w: token %d balance %s below %s", ErrValidation, i, mathutil.Format(balance), mathutil.Format(amount))
	}
	return nil
}

func (p *Pool) checkShareBalance(caller common.Address, amount *uint256.Int) error {
	if balance := p.shares.BalanceOf(caller); balance.Lt(amount) {
		return fmt.Errorf("%w: share balance %s below %s", ErrValidation, mathutil.Format(balance), mathutil.Format(amount))
	}
	return nil
}

// settle moves value in a fixed order: burn shares, pull inputs, push
// outputs, mint shares. A failing step undoes the completed ones in reverse.
func (p *Pool) settle(caller common.Address, pulls, pushes []*uint256.Int, burn, mint *uint256.Int) error {
	var undo []func() error
	fail := func(step string, cause error) error {
		err := fmt.Errorf("%s: %w", step, cause)
		for k := len(undo) - 1; k >= 0; k-- {
			err = multierr.Append(err, undo[k]())
		}
		return fmt.Errorf("%w: %w", ErrSettlement, err)
	}
	poolAddr := p.cfg.Address

	if burn != nil && !burn.IsZero() {
		if err := p.shares.BurnFrom(caller, burn); err != nil {
			return fail("burn shares", err)
		}
		undo = append(undo, func() error { return p.shares.Mint(caller, burn) })
	}
	for i, amount := range pulls {
		amount := amount
		if amount == nil || amount.IsZero() {
			continue
		}
		ledger := p.tokens[i]
		if err := ledger.TransferFrom(caller, poolAddr, amount); err != nil {
			return fail(fmt.Sprintf("pull token %d", i), err)
		}
		undo = append(undo, func() error { return ledger.Transfer(poolAddr, caller, amount) })
	}
	for i, amount := range pushes {
		amount := amount
		if amount == nil || amount.IsZero() {
			continue
		}
		ledger := p.tokens[i]
		if err := ledger.Transfer(poolAddr, caller, amount); err != nil {
			return fail(fmt.Sprintf("push token %d", i), err)
		}
		undo = append(undo, func() error { return ledger.TransferFrom(caller, poolAddr, amount) })
	}
	if mint != nil && !mint.IsZero() {
		if err := p.shares.Mint(caller, mint); err != nil {
			return fail("mint shares", err)
		}
	}
	return nil
}

func (p *Pool) commit(next *State) {
	p.state = next
}

func (p *Pool) emit(caller common.Address, name string, decoded interface{}) {
	p.seq++
	if p.sink == nil {
		return
	}
	event := model.PoolEvent{
		ChainID:   p.cfg.ChainID,
		Pool:      p.cfg.Address.Hex(),
		Sequence:  p.seq,
		EventName: name,
		Caller:    caller.Hex(),
		Timestamp: uint64(p.cfg.Now().Unix()),
		Decoded:   decoded,
		PoolMeta:  p.meta(),
	}
	if err := p.sink.Record(event); err != nil {
		p.logger.Warn("record event", zap.String("event", name), zap.Uint64("sequence", p.seq), zap.Error(err))
	}
}

func (p *Pool) meta() model.PoolMeta {
	meta := model.PoolMeta{
		Tokens:        make([]string, p.state.N()),
		A:             p.state.A.Uint64(),
		SwapFee:       p.state.SwapFee.Uint64(),
		AdminFee:      p.state.AdminFee.Uint64(),
		LPTotalSupply: mathutil.Format(p.state.LPTotalSupply),
	}
	for i, token := range p.state.Tokens {
		meta.Tokens[i] = token.Hex()
	}
	if vp, err := p.state.virtualPrice(); err == nil {
		meta.VirtualPrice = mathutil.Format(vp)
	}
	return meta
}
