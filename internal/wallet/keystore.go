package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// KeystoreProvider signs with accounts from an encrypted keystore directory.
// Accounts start locked; RequestAccounts unlocks the first one with the
// configured passphrase, which stands in for the user approving the prompt.
type KeystoreProvider struct {
	ks         *keystore.KeyStore
	passphrase string
	chain      ChainIDReader

	mu         sync.Mutex
	authorized map[common.Address]bool
}

// OpenKeystore opens dir with the standard scrypt parameters.
func OpenKeystore(dir, passphrase string, chain ChainIDReader) (*KeystoreProvider, error) {
	if dir == "" {
		return nil, fmt.Errorf("keystore dir is required")
	}
	return NewKeystoreProvider(keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP), passphrase, chain)
}

func NewKeystoreProvider(ks *keystore.KeyStore, passphrase string, chain ChainIDReader) (*KeystoreProvider, error) {
	if ks == nil {
		return nil, fmt.Errorf("keystore is required")
	}
	if chain == nil {
		return nil, fmt.Errorf("chain id reader is required")
	}
	return &KeystoreProvider{
		ks:         ks,
		passphrase: passphrase,
		chain:      chain,
		authorized: make(map[common.Address]bool),
	}, nil
}

func (p *KeystoreProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return p.chain.ChainID(ctx)
}

func (p *KeystoreProvider) Accounts(context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []common.Address
	for _, acc := range p.ks.Accounts() {
		if p.authorized[acc.Address] {
			out = append(out, acc.Address)
		}
	}
	return out, nil
}

func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	accs := p.ks.Accounts()
	if len(accs) == 0 {
		return nil, ErrNoAccounts
	}
	first := accs[0]
	if err := p.ks.Unlock(first, p.passphrase); err != nil {
		return nil, fmt.Errorf("%w: unlock %s: %w", ErrUserRejected, first.Address.Hex(), err)
	}

	p.mu.Lock()
	p.authorized[first.Address] = true
	p.mu.Unlock()

	return p.Accounts(ctx)
}

func (p *KeystoreProvider) Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	p.mu.Lock()
	ok := p.authorized[account]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s not authorized", ErrUserRejected, account.Hex())
	}

	acc, err := p.ks.Find(accounts.Account{Address: account})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(p.ks, acc, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}
