package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"stablePool/internal/ledger"
	"stablePool/internal/mathutil"
	"stablePool/internal/model"
	"stablePool/internal/pool"
	"stablePool/internal/storage"
)

// Observer is told about every applied operation. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveOperation(op string, err error)
}

// ErrorWriter receives rejected operations.
type ErrorWriter interface {
	Write(value interface{}) error
}

// Stats summarises one replay.
type Stats struct {
	Total    int
	Applied  int
	Rejected int
	Failed   int
}

// Simulator replays operations against an in-memory pool and its ledgers.
type Simulator struct {
	pool     *pool.Pool
	address  common.Address
	tokens   []*ledger.Token
	shares   *ledger.Shares
	observer Observer
	logger   *zap.Logger
	now      time.Time
}

// New rebuilds a pool from snapshot. The pool address holds custody of every
// token it accounts for; LP shares come from snapshot.LPBalances, and any
// supply they do not cover is assigned to the pool address.
func New(snapshot model.PoolSnapshot, sink storage.EventRecorder, observer Observer, logger *zap.Logger) (*Simulator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !common.IsHexAddress(snapshot.Address) {
		return nil, fmt.Errorf("invalid pool address %q", snapshot.Address)
	}
	address := common.HexToAddress(snapshot.Address)

	state, err := pool.StateFromSnapshot(snapshot)
	if err != nil {
		return nil, err
	}

	tokens := make([]*ledger.Token, state.N())
	ledgers := make([]pool.TokenLedger, state.N())
	for i, held := range state.Holdings() {
		tokens[i] = ledger.NewToken(state.Tokens[i], state.Symbols[i])
		if !held.IsZero() {
			if err := tokens[i].Mint(address, held); err != nil {
				return nil, fmt.Errorf("token %d custody: %w", i, err)
			}
		}
		ledgers[i] = tokens[i]
	}

	shares, err := ledger.LoadShares(snapshot.LPBalances)
	if err != nil {
		return nil, err
	}
	attributed := shares.TotalSupply()
	if attributed.Gt(state.LPTotalSupply) {
		return nil, fmt.Errorf("lp balances %s exceed supply %s", mathutil.Format(attributed), mathutil.Format(state.LPTotalSupply))
	}
	if rest := new(uint256.Int).Sub(state.LPTotalSupply, attributed); !rest.IsZero() {
		logger.Info("assigning unattributed lp supply to pool", zap.String("amount", mathutil.Format(rest)))
		if err := shares.Mint(address, rest); err != nil {
			return nil, err
		}
	}

	s := &Simulator{
		address:  address,
		tokens:   tokens,
		shares:   shares,
		observer: observer,
		logger:   logger,
	}
	p, err := pool.New(pool.Config{Address: address, ChainID: snapshot.ChainID, Now: s.clock}, state, ledgers, shares, sink, logger)
	if err != nil {
		return nil, err
	}
	p.SetSequence(snapshot.Sequence)
	s.pool = p
	return s, nil
}

func (s *Simulator) clock() time.Time {
	if s.now.IsZero() {
		return time.Now()
	}
	return s.now
}

// Pool exposes the engine for read-only queries.
func (s *Simulator) Pool() *pool.Pool {
	return s.pool
}

// Snapshot renders the pool together with its LP holders.
func (s *Simulator) Snapshot() model.PoolSnapshot {
	snapshot := s.pool.Snapshot()
	snapshot.LPBalances = s.shares.Holders()
	snapshot.TakenAt = s.clock().UTC().Format(time.RFC3339)
	return snapshot
}

// Apply runs one operation. Failed operations leave the pool unchanged.
func (s *Simulator) Apply(op model.Operation) error {
	err := s.apply(op)
	if s.observer != nil {
		s.observer.ObserveOperation(op.Op, err)
	}
	return err
}

func (s *Simulator) apply(op model.Operation) error {
	if !common.IsHexAddress(op.Caller) {
		return fmt.Errorf("%w: invalid caller %q", pool.ErrValidation, op.Caller)
	}
	caller := common.HexToAddress(op.Caller)
	if op.Timestamp != 0 {
		s.now = time.Unix(int64(op.Timestamp), 0)
	}

	switch op.Op {
	case model.OpFund:
		if op.Index < 0 || op.Index >= len(s.tokens) {
			return fmt.Errorf("%w: token index %d out of range", pool.ErrValidation, op.Index)
		}
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return err
		}
		return s.tokens[op.Index].Mint(caller, amount)
	case model.OpPause:
		s.pool.SetPaused(true)
		return nil
	case model.OpUnpause:
		s.pool.SetPaused(false)
		return nil
	case model.OpSwap:
		dx, err := parseAmount(op.Amount)
		if err != nil {
			return err
		}
		minDy, err := parseOptional(op.Min)
		if err != nil {
			return err
		}
		_, err = s.pool.Swap(caller, op.From, op.To, dx, minDy)
		return err
	case model.OpAddLiquidity:
		amounts, err := parseAmounts(op.Amounts)
		if err != nil {
			return err
		}
		minMint, err := parseOptional(op.Min)
		if err != nil {
			return err
		}
		_, err = s.pool.AddLiquidity(caller, amounts, minMint)
		return err
	case model.OpRemoveLiquidity:
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return err
		}
		var minAmounts []*uint256.Int
		if len(op.MinAmounts) > 0 {
			if minAmounts, err = parseAmounts(op.MinAmounts); err != nil {
				return err
			}
		}
		_, err = s.pool.RemoveLiquidity(caller, amount, minAmounts)
		return err
	case model.OpRemoveLiquidityImbalance:
		amounts, err := parseAmounts(op.Amounts)
		if err != nil {
			return err
		}
		maxBurn, err := parseOptional(op.Max)
		if err != nil {
			return err
		}
		_, err = s.pool.RemoveLiquidityImbalance(caller, amounts, maxBurn)
		return err
	case model.OpRemoveLiquidityOneToken:
		amount, err := parseAmount(op.Amount)
		if err != nil {
			return err
		}
		minAmount, err := parseOptional(op.Min)
		if err != nil {
			return err
		}
		_, err = s.pool.RemoveLiquidityOneToken(caller, amount, op.Index, minAmount)
		return err
	default:
		return fmt.Errorf("%w: unknown op %q", pool.ErrValidation, op.Op)
	}
}

// Run replays the JSONL operations at path. Rejected operations go to errs
// (which may be nil) and do not stop the replay.
func (s *Simulator) Run(ctx context.Context, path string, errs ErrorWriter) (Stats, error) {
	var stats Stats
	err := storage.ReadJSONL(path, func(line int, raw []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Total++

		var op model.Operation
		if err := json.Unmarshal(raw, &op); err != nil {
			stats.Failed++
			writeOperationError(errs, model.OperationError{Line: line, Kind: "parse", Error: err.Error()})
			return nil
		}
		if err := s.Apply(op); err != nil {
			stats.Rejected++
			s.logger.Debug("operation rejected", zap.Int("line", line), zap.String("op", op.Op), zap.Error(err))
			writeOperationError(errs, model.OperationError{
				Line:   line,
				Op:     op.Op,
				Caller: op.Caller,
				Kind:   pool.ErrorKind(err),
				Error:  err.Error(),
			})
			return nil
		}
		stats.Applied++
		return nil
	})
	return stats, err
}

func writeOperationError(writer ErrorWriter, record model.OperationError) {
	if writer == nil {
		return
	}
	_ = writer.Write(record)
}

func parseAmount(value string) (*uint256.Int, error) {
	amount, err := mathutil.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %w", pool.ErrValidation, err)
	}
	return amount, nil
}

func parseOptional(value string) (*uint256.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return parseAmount(value)
}

func parseAmounts(values []string) ([]*uint256.Int, error) {
	amounts, err := mathutil.ParseAll(values)
	if err != nil {
		return nil, fmt.Errorf("%w: amounts: %w", pool.ErrValidation, err)
	}
	return amounts, nil
}
