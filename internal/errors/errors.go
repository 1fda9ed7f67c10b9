// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrUnknownSymbol    = errors.New("unknown symbol")
	ErrCycleCancelled   = errors.New("evaluation cycle cancelled")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrSnapshotNotFound = errors.New("equity snapshot not found")
)

// RiskError represents a risk-limit rejection. Orders rejected for risk
// reasons are surfaced to the caller with the specific rule that fired and
// are never retried automatically.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk limit exceeded [%s]: %s (current: %.2f, limit: %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{
		Rule:    rule,
		Current: current,
		Limit:   limit,
		Message: message,
	}
}

// PersistenceError represents a failure to write the ledger. Retryable
// persistence errors mean the fill was rolled back and may be resubmitted.
type PersistenceError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("persistence failure [%s] (retryable): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence failure [%s]: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(op string, retryable bool, err error) *PersistenceError {
	return &PersistenceError{
		Op:        op,
		Retryable: retryable,
		Err:       err,
	}
}

// IsRetryable reports whether err is a retryable persistence failure.
func IsRetryable(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Retryable
}

// ConfigError represents an out-of-range strategy parameter. The offending
// strategy is excluded from that cycle's vote; the ensemble continues.
type ConfigError struct {
	Strategy string
	Param    string
	Value    float64
	Message  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration [%s] %s=%v: %s", e.Strategy, e.Param, e.Value, e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(strategy, param string, value float64, message string) *ConfigError {
	return &ConfigError{
		Strategy: strategy,
		Param:    param,
		Value:    value,
		Message:  message,
	}
}

// PredictionError represents a learned-model failure (error, timeout, or
// out-of-range confidence). Recovered by falling back to the ensemble.
type PredictionError struct {
	Model     string
	Timeframe string
	Err       error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction error [%s] %s: %v", e.Model, e.Timeframe, e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// NewPredictionError creates a new PredictionError.
func NewPredictionError(model, timeframe string, err error) *PredictionError {
	return &PredictionError{
		Model:     model,
		Timeframe: timeframe,
		Err:       err,
	}
}

// StrategyError represents a strategy that failed during evaluation. The
// strategy is excluded from the vote for that cycle only.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy error [%s]: %v", e.Strategy, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// NewStrategyError creates a new StrategyError.
func NewStrategyError(strategy string, err error) *StrategyError {
	return &StrategyError{
		Strategy: strategy,
		Err:      err,
	}
}

// OrderError represents a rejected order with its typed reason.
type OrderError struct {
	Symbol string
	Side   string
	Reason string
	Err    error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order rejected %s %s: %s: %v", e.Side, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order rejected %s %s: %s", e.Side, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(symbol, side, reason string, err error) *OrderError {
	return &OrderError{
		Symbol: symbol,
		Side:   side,
		Reason: reason,
		Err:    err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
