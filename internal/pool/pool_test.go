package pool

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stablePool/internal/ledger"
	"stablePool/internal/mathutil"
	"stablePool/internal/model"
)

const (
	e18      = "1000000000000000000"
	e17      = "100000000000000000"
	funding  = "1000000000000000000000000"
	testA    = 50
	testFee  = 10_000_000
	noAdmin  = 0
	halfFees = 5_000_000_000
)

var (
	poolAddr = common.HexToAddress("0x5000000000000000000000000000000000000005")
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	user1    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	user2    = common.HexToAddress("0x0000000000000000000000000000000000000003")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000004")
)

type recordingSink struct {
	events []model.PoolEvent
}

func (s *recordingSink) Record(event model.PoolEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) last(t *testing.T) model.PoolEvent {
	t.Helper()
	if len(s.events) == 0 {
		t.Fatalf("no events recorded")
	}
	return s.events[len(s.events)-1]
}

type failingToken struct {
	*ledger.Token
	failTransfer bool
}

func (f *failingToken) Transfer(from, to common.Address, amount *uint256.Int) error {
	if f.failTransfer {
		return errors.New("transfer disabled")
	}
	return f.Token.Transfer(from, to, amount)
}

type fixture struct {
	pool   *Pool
	tokens []*ledger.Token
	shares *ledger.Shares
	sink   *recordingSink
}

func amt(t *testing.T, value string) *uint256.Int {
	t.Helper()
	x, err := mathutil.Parse(value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return x
}

func amts(t *testing.T, values ...string) []*uint256.Int {
	t.Helper()
	out := make([]*uint256.Int, len(values))
	for i, value := range values {
		out[i] = amt(t, value)
	}
	return out
}

func newFixture(t *testing.T, decimals []uint8, a, swapFee, adminFee uint64) *fixture {
	t.Helper()
	params := Params{A: a, SwapFee: swapFee, AdminFee: adminFee, Decimals: decimals}
	tokens := make([]*ledger.Token, len(decimals))
	ledgers := make([]TokenLedger, len(decimals))
	for i := range decimals {
		addr := common.BigToAddress(uint256.NewInt(uint64(0x1000 + i)).ToBig())
		params.Tokens = append(params.Tokens, addr)
		tokens[i] = ledger.NewToken(addr, "T"+string(rune('A'+i)))
		for _, holder := range []common.Address{owner, user1, user2} {
			if err := tokens[i].Mint(holder, amt(t, funding)); err != nil {
				t.Fatalf("fund: %v", err)
			}
		}
		ledgers[i] = tokens[i]
	}
	state, err := NewState(params)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	shares := ledger.NewShares()
	sink := &recordingSink{}
	cfg := Config{Address: poolAddr, Now: func() time.Time { return time.Unix(1_700_000_000, 0) }}
	p, err := New(cfg, state, ledgers, shares, sink, zap.NewNop())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return &fixture{pool: p, tokens: tokens, shares: shares, sink: sink}
}

// seededPool is the two-token reference pool seeded with 1e18 of each token.
func seededPool(t *testing.T, adminFee uint64) *fixture {
	t.Helper()
	f := newFixture(t, []uint8{18, 18}, testA, testFee, adminFee)
	minted, err := f.pool.AddLiquidity(owner, amts(t, e18, e18), nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	require.Equal(t, "2000000000000000000", mathutil.Format(minted))
	return f
}

func requireBalances(t *testing.T, p *Pool, want ...string) {
	t.Helper()
	for i, w := range want {
		got, err := p.GetTokenBalance(i)
		require.NoError(t, err)
		require.Equal(t, w, mathutil.Format(got), "balance %d", i)
	}
}

func TestSeedSetsSupplyAndVirtualPrice(t *testing.T) {
	f := seededPool(t, noAdmin)

	vp, err := f.pool.GetVirtualPrice()
	require.NoError(t, err)
	require.Equal(t, e18, mathutil.Format(vp))
	require.Equal(t, "2000000000000000000", mathutil.Format(f.shares.BalanceOf(owner)))
	requireBalances(t, f.pool, e18, e18)
	require.Equal(t, uint64(testA), f.pool.GetA().Uint64())

	event := f.sink.last(t)
	require.Equal(t, model.EventAddLiquidity, event.EventName)
	require.Equal(t, uint64(1), event.Sequence)
	require.Equal(t, poolAddr.Hex(), event.Pool)
	require.Equal(t, uint64(1_700_000_000), event.Timestamp)
}

func TestEmptyPoolVirtualPriceIsZero(t *testing.T) {
	f := newFixture(t, []uint8{18, 18}, testA, testFee, noAdmin)
	vp, err := f.pool.GetVirtualPrice()
	require.NoError(t, err)
	require.True(t, vp.IsZero())
}

func TestFirstDepositRequiresEveryToken(t *testing.T) {
	f := newFixture(t, []uint8{18, 18}, testA, testFee, noAdmin)
	_, err := f.pool.AddLiquidity(owner, amts(t, e18, "0"), nil)
	require.ErrorIs(t, err, ErrZeroDeposit)
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, f.sink.events)
}

func TestAddLiquidityImbalancedDeposit(t *testing.T) {
	f := seededPool(t, noAdmin)

	estimate, err := f.pool.CalculateTokenAmount(amts(t, e18, "3000000000000000000"), true)
	require.NoError(t, err)
	require.Equal(t, "3992673697878079065", mathutil.Format(estimate))

	minted, err := f.pool.AddLiquidity(user1, amts(t, e18, "3000000000000000000"), nil)
	require.NoError(t, err)
	require.Equal(t, "3991672211258372957", mathutil.Format(minted))
	require.Equal(t, "3991672211258372957", mathutil.Format(f.shares.BalanceOf(user1)))
	requireBalances(t, f.pool, "2000000000000000000", "4000000000000000000")

	event := f.sink.last(t)
	data, ok := event.Decoded.(model.AddLiquidityData)
	require.True(t, ok)
	require.Equal(t, []string{"498168424469519", "501831575530480"}, data.Fees)
	require.Equal(t, "5992673697878079065", data.Invariant)
	require.Equal(t, "5991672211258372957", data.LPTokenSupply)
	require.Equal(t, user1.Hex(), data.Provider)
}

func TestBalancedDepositChargesNoFee(t *testing.T) {
	f := seededPool(t, noAdmin)

	minted, err := f.pool.AddLiquidity(user1, amts(t, "500000000000000000", "500000000000000000"), nil)
	require.NoError(t, err)
	require.Equal(t, e18, mathutil.Format(minted))

	data := f.sink.last(t).Decoded.(model.AddLiquidityData)
	require.Equal(t, []string{"0", "0"}, data.Fees)
}

func TestAddLiquiditySlippageLeavesStateUntouched(t *testing.T) {
	f := seededPool(t, noAdmin)
	before := f.pool.Snapshot()
	events := len(f.sink.events)

	_, err := f.pool.AddLiquidity(user1, amts(t, e18, "3000000000000000000"), amt(t, "3991672211258372958"))
	require.ErrorIs(t, err, ErrSlippage)
	require.Equal(t, before, f.pool.Snapshot())
	require.Len(t, f.sink.events, events)
	require.Equal(t, funding, mathutil.Format(f.tokens[0].BalanceOf(user1)))
	require.True(t, f.shares.BalanceOf(user1).IsZero())
}

func TestSwapReferenceValues(t *testing.T) {
	f := seededPool(t, noAdmin)

	quote, err := f.pool.CalculateSwap(0, 1, amt(t, e17))
	require.NoError(t, err)
	require.Equal(t, "99702611562565289", mathutil.Format(quote))

	before := f.tokens[1].BalanceOf(user1)
	dy, err := f.pool.Swap(user1, 0, 1, amt(t, e17), quote)
	require.NoError(t, err)
	require.Equal(t, quote, dy)
	requireBalances(t, f.pool, "1100000000000000000", "900297388437434711")
	require.Equal(t, new(uint256.Int).Add(before, dy), f.tokens[1].BalanceOf(user1))

	vp, err := f.pool.GetVirtualPrice()
	require.NoError(t, err)
	require.Equal(t, "1000050005862349911", mathutil.Format(vp))

	data := f.sink.last(t).Decoded.(model.TokenSwapData)
	require.Equal(t, model.TokenSwapData{
		Buyer:        user1.Hex(),
		TokensSold:   e17,
		TokensBought: "99702611562565289",
		SoldID:       0,
		BoughtID:     1,
	}, data)
}

func TestSwapValidation(t *testing.T) {
	f := seededPool(t, noAdmin)
	cases := []struct {
		name string
		i, j int
		dx   *uint256.Int
	}{
		{"same token", 0, 0, amt(t, e17)},
		{"index out of range", 0, 2, amt(t, e17)},
		{"negative index", -1, 1, amt(t, e17)},
		{"zero amount", 0, 1, new(uint256.Int)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.pool.Swap(user1, tc.i, tc.j, tc.dx, nil)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSwapRejectsInsufficientTokenBalance(t *testing.T) {
	f := seededPool(t, noAdmin)
	_, err := f.pool.Swap(stranger, 0, 1, amt(t, e17), nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestFrontRunTriggersSlippage(t *testing.T) {
	f := seededPool(t, noAdmin)

	quote, err := f.pool.CalculateSwap(0, 1, amt(t, e17))
	require.NoError(t, err)

	// a competing trade in the same direction lands first
	_, err = f.pool.Swap(user2, 0, 1, amt(t, "500000000000000000"), nil)
	require.NoError(t, err)

	before := f.pool.Snapshot()
	tokenBefore := f.tokens[0].BalanceOf(user1)
	_, err = f.pool.Swap(user1, 0, 1, amt(t, e17), quote)
	require.ErrorIs(t, err, ErrSlippage)
	require.Equal(t, before, f.pool.Snapshot())
	require.Equal(t, tokenBefore, f.tokens[0].BalanceOf(user1))
}

// depositScenario seeds the reference pool and adds [2e18, 1e16] from user1.
func depositScenario(t *testing.T) (*fixture, *uint256.Int) {
	t.Helper()
	f := seededPool(t, noAdmin)
	minted, err := f.pool.AddLiquidity(user1, amts(t, "2000000000000000000", "10000000000000000"), nil)
	require.NoError(t, err)
	require.Equal(t, "1996275270169644725", mathutil.Format(minted))
	return f, minted
}

func TestRemoveLiquidityReferenceScenario(t *testing.T) {
	f, minted := depositScenario(t)

	quote, err := f.pool.CalculateRemoveLiquidity(minted)
	require.NoError(t, err)
	require.Equal(t, []string{"1498601924450190405", "504529314564897436"}, mathutil.FormatAll(quote))

	out, err := f.pool.RemoveLiquidity(user1, minted, quote)
	require.NoError(t, err)
	require.Equal(t, quote, out)
	require.True(t, f.shares.BalanceOf(user1).IsZero())
	requireBalances(t, f.pool, "1501398075549809595", "505470685435102564")

	data := f.sink.last(t).Decoded.(model.RemoveLiquidityData)
	require.Equal(t, "2000000000000000000", data.LPTokenSupply)
}

func TestRemoveLiquiditySlippage(t *testing.T) {
	f, minted := depositScenario(t)
	before := f.pool.Snapshot()
	_, err := f.pool.RemoveLiquidity(user1, minted, amts(t, "1498601924450190406", "0"))
	require.ErrorIs(t, err, ErrSlippage)
	require.Equal(t, before, f.pool.Snapshot())
}

func TestRemoveLiquidityRejectsForeignShares(t *testing.T) {
	f, minted := depositScenario(t)
	_, err := f.pool.RemoveLiquidity(user2, minted, nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestRemoveLiquidityImbalanceReferenceScenario(t *testing.T) {
	f, _ := depositScenario(t)
	withdraw := amts(t, e18, "10000000000000000")

	estimate, err := f.pool.CalculateTokenAmount(withdraw, false)
	require.NoError(t, err)
	require.Equal(t, "1000688044155287276", mathutil.Format(estimate))

	_, err = f.pool.RemoveLiquidityImbalance(user1, withdraw, amt(t, "1000934178112841887"))
	require.ErrorIs(t, err, ErrSlippage)

	burned, err := f.pool.RemoveLiquidityImbalance(user1, withdraw, amt(t, "1000934178112841888"))
	require.NoError(t, err)
	require.Equal(t, "1000934178112841888", mathutil.Format(burned))
	requireBalances(t, f.pool, "2000000000000000000", e18)

	data := f.sink.last(t).Decoded.(model.RemoveLiquidityImbalanceData)
	require.Equal(t, []string{"124392224069887", "121454617896471"}, data.Fees)
	require.Equal(t, "2996336848939039532", data.Invariant)
	require.Equal(t, "2995341092056802837", data.LPTokenSupply)
}

func TestRemoveLiquidityImbalanceExceedingReserves(t *testing.T) {
	f := seededPool(t, noAdmin)
	_, err := f.pool.RemoveLiquidityImbalance(owner, amts(t, "2000000000000000000", "0"), nil)
	require.ErrorIs(t, err, ErrWithdrawExceedsReserves)
}

func TestRemoveLiquidityOneTokenReferenceScenario(t *testing.T) {
	f, minted := depositScenario(t)

	quote0, err := f.pool.CalculateRemoveLiquidityOneToken(minted, 0)
	require.NoError(t, err)
	require.Equal(t, "2008990034631583696", mathutil.Format(quote0))
	quote1, err := f.pool.CalculateRemoveLiquidityOneToken(minted, 1)
	require.NoError(t, err)
	require.Equal(t, "1003241617951121044", mathutil.Format(quote1))

	_, err = f.pool.RemoveLiquidityOneToken(user1, minted, 0, new(uint256.Int).AddUint64(quote0, 1))
	require.ErrorIs(t, err, ErrSlippage)

	dy, err := f.pool.RemoveLiquidityOneToken(user1, minted, 0, quote0)
	require.NoError(t, err)
	require.Equal(t, quote0, dy)
	requireBalances(t, f.pool, "991009965368416304", "1010000000000000000")

	data := f.sink.last(t).Decoded.(model.RemoveLiquidityOneData)
	require.Equal(t, "3996275270169644725", data.LPTokenSupply)
	require.Equal(t, uint64(0), data.BoughtID)
	require.Equal(t, "2008990034631583696", data.TokensBought)
}

func TestPausedPoolOnlyAllowsProportionalWithdrawal(t *testing.T) {
	f := seededPool(t, noAdmin)
	f.pool.SetPaused(true)
	require.True(t, f.pool.Paused())

	_, err := f.pool.Swap(user1, 0, 1, amt(t, e17), nil)
	require.ErrorIs(t, err, ErrPoolPaused)
	_, err = f.pool.AddLiquidity(user1, amts(t, e18, e18), nil)
	require.ErrorIs(t, err, ErrPoolPaused)
	_, err = f.pool.RemoveLiquidityImbalance(owner, amts(t, e17, e17), nil)
	require.ErrorIs(t, err, ErrPoolPaused)
	_, err = f.pool.RemoveLiquidityOneToken(owner, amt(t, e17), 0, nil)
	require.ErrorIs(t, err, ErrPoolPaused)

	out, err := f.pool.RemoveLiquidity(owner, amt(t, e18), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"500000000000000000", "500000000000000000"}, mathutil.FormatAll(out))
}

func TestAdminFeesAreWithheldFromBalances(t *testing.T) {
	f := seededPool(t, halfFees)
	dy, err := f.pool.Swap(user1, 0, 1, amt(t, e17), nil)
	require.NoError(t, err)
	require.Equal(t, "99702611562565289", mathutil.Format(dy))
	requireBalances(t, f.pool, "1100000000000000000", "900247487230446441")

	admin, err := f.pool.GetAdminBalance(1)
	require.NoError(t, err)
	require.Equal(t, "49901206988270", mathutil.Format(admin))

	// the pool's custody covers LP balances plus withheld fees
	for i, held := range f.pool.State().Holdings() {
		require.Equal(t, held, f.tokens[i].BalanceOf(poolAddr), "token %d", i)
	}
}

func TestAdminFeesOnImbalancedDeposit(t *testing.T) {
	f := seededPool(t, halfFees)
	minted, err := f.pool.AddLiquidity(user1, amts(t, e18, "3000000000000000000"), nil)
	require.NoError(t, err)
	require.Equal(t, "3991672211258372957", mathutil.Format(minted))
	requireBalances(t, f.pool, "1999750915787765241", "3999749084212234760")

	state := f.pool.State()
	require.Equal(t, []string{"249084212234759", "250915787765240"}, mathutil.FormatAll(state.AdminBalances))
}

func TestMixedDecimalsNormalise(t *testing.T) {
	f := newFixture(t, []uint8{18, 6}, testA, testFee, noAdmin)
	minted, err := f.pool.AddLiquidity(owner, amts(t, e18, "1000000"), nil)
	require.NoError(t, err)
	require.Equal(t, "2000000000000000000", mathutil.Format(minted))

	out, err := f.pool.CalculateSwap(0, 1, amt(t, e17))
	require.NoError(t, err)
	require.Equal(t, "99702", mathutil.Format(out))

	out, err = f.pool.CalculateSwap(1, 0, amt(t, "100000"))
	require.NoError(t, err)
	require.Equal(t, "99702611562565289", mathutil.Format(out))
}

func TestThreeTokenPool(t *testing.T) {
	f := newFixture(t, []uint8{18, 18, 18}, 100, 4_000_000, noAdmin)
	minted, err := f.pool.AddLiquidity(owner, amts(t, e18, e18, e18), nil)
	require.NoError(t, err)
	require.Equal(t, "3000000000000000000", mathutil.Format(minted))

	minted, err = f.pool.AddLiquidity(user1, amts(t, e18, "0", "500000000000000000"), nil)
	require.NoError(t, err)
	require.Equal(t, "1497996367491558197", mathutil.Format(minted))
	data := f.sink.last(t).Decoded.(model.AddLiquidityData)
	require.Equal(t, []string{"75092669711893", "74907330288106", "92669711893"}, data.Fees)

	out, err := f.pool.CalculateSwap(2, 0, amt(t, "500000000000000000"))
	require.NoError(t, err)
	require.Equal(t, "499800000000000000", mathutil.Format(out))

	out, err = f.pool.CalculateRemoveLiquidityOneToken(amt(t, "500000000000000000"), 1)
	require.NoError(t, err)
	require.Equal(t, "494285356744528789", mathutil.Format(out))
}

func TestLedgerFailureLeavesStateUntouched(t *testing.T) {
	f := seededPool(t, noAdmin)
	broken := &failingToken{Token: f.tokens[1], failTransfer: true}
	p, err := New(Config{Address: poolAddr}, f.pool.State(), []TokenLedger{f.tokens[0], broken}, f.shares, f.sink, nil)
	require.NoError(t, err)

	before := p.Snapshot()
	token0 := f.tokens[0].BalanceOf(user1)
	_, err = p.Swap(user1, 0, 1, amt(t, e17), nil)
	require.ErrorIs(t, err, ErrSettlement)
	require.Equal(t, "settlement", ErrorKind(err))
	require.Equal(t, before, p.Snapshot())
	require.Equal(t, token0, f.tokens[0].BalanceOf(user1))
}

func TestDrainAndReseed(t *testing.T) {
	f := seededPool(t, noAdmin)
	_, err := f.pool.RemoveLiquidity(owner, amt(t, "2000000000000000000"), nil)
	require.NoError(t, err)
	requireBalances(t, f.pool, "0", "0")
	require.True(t, f.pool.State().LPTotalSupply.IsZero())

	minted, err := f.pool.AddLiquidity(user2, amts(t, e18, e18), nil)
	require.NoError(t, err)
	require.Equal(t, "2000000000000000000", mathutil.Format(minted))
}

func TestOneTokenExitOfWholeSupplyKeepsLeftovers(t *testing.T) {
	f := seededPool(t, noAdmin)
	out, err := f.pool.RemoveLiquidityOneToken(owner, amt(t, "2000000000000000000"), 0, nil)
	require.NoError(t, err)
	require.Equal(t, "999999999999999999", mathutil.Format(out))
	require.True(t, f.pool.State().LPTotalSupply.IsZero())
	requireBalances(t, f.pool, "1", e18)

	// the next first deposit mints against the leftover reserves
	minted, err := f.pool.AddLiquidity(user2, amts(t, e18, e18), nil)
	require.NoError(t, err)
	require.True(t, minted.Gt(amt(t, "2000000000000000000")), "minted %s", mathutil.Format(minted))
	require.Equal(t, minted, f.shares.BalanceOf(user2))
	requireBalances(t, f.pool, "1000000000000000001", "2000000000000000000")
}

func TestViewsRejectBadIndices(t *testing.T) {
	f := seededPool(t, noAdmin)
	_, err := f.pool.GetToken(2)
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.pool.GetTokenBalance(-1)
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.pool.CalculateRemoveLiquidityOneToken(amt(t, e17), 5)
	require.ErrorIs(t, err, ErrValidation)

	token, err := f.pool.GetToken(1)
	require.NoError(t, err)
	idx, err := f.pool.GetTokenIndex(token)
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	_, err = f.pool.GetTokenIndex(stranger)
	require.ErrorIs(t, err, ErrValidation)
}

func TestNewRejectsSupplyMismatch(t *testing.T) {
	f := seededPool(t, noAdmin)
	_, err := New(Config{Address: poolAddr}, f.pool.State(), []TokenLedger{f.tokens[0], f.tokens[1]}, ledger.NewShares(), nil, nil)
	require.Error(t, err)
}
