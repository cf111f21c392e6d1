// Package wallet models the injected wallet capability: the signer the
// controller talks to instead of an ambient browser provider.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUserRejected   = errors.New("user rejected the request")
	ErrNoAccounts     = errors.New("wallet has no accounts")
	ErrUnknownAccount = errors.New("account not managed by wallet")
)

// Provider mirrors the request surface of a browser wallet.
type Provider interface {
	// ChainID reports the chain the wallet signs for.
	ChainID(ctx context.Context) (*big.Int, error)
	// Accounts lists already authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts asks the wallet to authorize its accounts.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Transactor returns signing options for an authorized account.
	Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error)
}

// ChainIDReader is satisfied by *ethclient.Client and the nft clients.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// IsRejection reports whether err means the wallet owner declined to sign or unlock.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUserRejected) ||
		errors.Is(err, keystore.ErrLocked) ||
		errors.Is(err, keystore.ErrDecrypt)
}
