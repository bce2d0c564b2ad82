package pool

import (
	"errors"
	"fmt"

	"stablePool/internal/curve"
	"stablePool/internal/mathutil"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrZeroDeposit             = fmt.Errorf("%w: initial deposit requires every token", ErrValidation)
	ErrConvergence             = errors.New("solver did not converge")
	ErrSlippage                = errors.New("slippage bound exceeded")
	ErrPoolPaused              = errors.New("pool is paused")
	ErrWithdrawExceedsReserves = errors.New("withdrawal exceeds reserves")
	ErrSettlement              = errors.New("settle")
)

// ErrorKind classifies err into a short label for logs and error records.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrZeroDeposit):
		return "zero_deposit"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConvergence):
		return "convergence"
	case errors.Is(err, ErrSlippage):
		return "slippage"
	case errors.Is(err, ErrPoolPaused):
		return "paused"
	case errors.Is(err, ErrWithdrawExceedsReserves):
		return "withdraw_exceeds_reserves"
	case errors.Is(err, ErrSettlement):
		return "settlement"
	default:
		return "unknown"
	}
}

// solverError maps curve and arithmetic failures onto pool error kinds.
func solverError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, curve.ErrNotConverged), errors.Is(err, curve.ErrZeroBalance):
		return fmt.Errorf("%w: %w", ErrConvergence, err)
	case errors.Is(err, curve.ErrIndex), errors.Is(err, curve.ErrAmplification):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	case errors.Is(err, mathutil.ErrOverflow), errors.Is(err, mathutil.ErrUnderflow), errors.Is(err, mathutil.ErrDivisionByZero):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return err
	}
}
