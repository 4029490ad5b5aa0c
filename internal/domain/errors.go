package domain

import "errors"

var (
	ErrPrecisionMismatch   = errors.New("amount decimals mismatch")
	ErrUnsupportedOperand  = errors.New("unsupported amount operand")
	ErrDivisionByZero      = errors.New("amount division by zero")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrContractNotFound    = errors.New("contract not found")
	ErrTokenNotFound       = errors.New("token not found")
	ErrChainNotFound       = errors.New("chain not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrContractCall        = errors.New("contract call failed")
	ErrWithdrawalTimeout   = errors.New("withdrawal not confirmed")
	ErrTransactionReverted = errors.New("transaction reverted")
)
