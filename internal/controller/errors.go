package controller

import "errors"

var (
	ErrNoWalletFound       = errors.New("no wallet found")
	ErrUserRejected        = errors.New("user rejected")
	ErrWrongNetwork        = errors.New("wrong network")
	ErrReadFailed          = errors.New("contract read failed")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrNetwork             = errors.New("network error")
	ErrNotConnected        = errors.New("wallet not connected")
	ErrMintInProgress      = errors.New("mint already in progress")
)
