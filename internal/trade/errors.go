// internal/trade/errors.go
package trade

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a trade failure class. Validation codes are returned
// synchronously before any chain write; execution codes classify failures
// observed after broadcast and do not guarantee the transaction never
// landed.
type Code string

const (
	CodeTokenNotTradeable     Code = "TOKEN_NOT_TRADEABLE"
	CodeAmountTooLow          Code = "AMOUNT_TOO_LOW"
	CodeAmountTooHigh         Code = "AMOUNT_TOO_HIGH"
	CodePriceImpactTooHigh    Code = "PRICE_IMPACT_TOO_HIGH"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeInsufficientBalance   Code = "INSUFFICIENT_BALANCE"
	CodeRouteNotFound         Code = "ROUTE_NOT_FOUND"
	CodeDeadlineExceeded      Code = "DEADLINE_EXCEEDED"
	CodeGasPriceTooHigh       Code = "GAS_PRICE_TOO_HIGH"
	CodeUnknown               Code = "UNKNOWN_ERROR"
)

// Error is a taxonomy-coded trade failure. The original lower-level
// message is always preserved for UNKNOWN_ERROR classification.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a coded error wrapping an optional cause.
func NewError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// CodeOf extracts the taxonomy code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeUnknown
}

// revertSignatures maps known contract revert reasons and provider error
// fragments to taxonomy codes. Matching is case-insensitive substring,
// first hit wins.
var revertSignatures = []struct {
	fragment string
	code     Code
}{
	{"salenotopen", CodeTokenNotTradeable},
	{"token launched", CodeTokenNotTradeable},
	{"tokenlaunched", CodeTokenNotTradeable},
	{"trading closed", CodeTokenNotTradeable},
	{"amount too low", CodeAmountTooLow},
	{"below minimum", CodeAmountTooLow},
	{"exceeds sale ceiling", CodeAmountTooHigh},
	{"exceedssupply", CodeAmountTooHigh},
	{"amount too high", CodeAmountTooHigh},
	{"slippage", CodePriceImpactTooHigh},
	{"insufficient output amount", CodePriceImpactTooHigh},
	{"insufficient liquidity", CodeInsufficientLiquidity},
	{"insufficient funds", CodeInsufficientBalance},
	{"insufficient balance", CodeInsufficientBalance},
	{"transfer amount exceeds balance", CodeInsufficientBalance},
	{"deadline", CodeDeadlineExceeded},
	{"expired", CodeDeadlineExceeded},
	{"max fee per gas", CodeGasPriceTooHigh},
	{"gas price too high", CodeGasPriceTooHigh},
	{"replacement transaction underpriced", CodeGasPriceTooHigh},
}

// Classify maps a low-level execution failure (revert reason, provider
// error) onto the taxonomy. Unmatched failures become UNKNOWN_ERROR with
// the original message preserved.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, sig := range revertSignatures {
		if strings.Contains(lower, sig.fragment) {
			return &Error{Code: sig.code, Message: msg, Cause: err}
		}
	}
	return &Error{Code: CodeUnknown, Message: msg, Cause: err}
}
