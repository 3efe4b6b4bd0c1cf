package token

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

var errNotConfigured = errors.New("token: callback not configured")

// FuncLedger adapts callback functions to the vault's token interface.
type FuncLedger struct {
	TransferFromFunc func(ctx context.Context, from, to crypto.Address, amount *uint256.Int) (*uint256.Int, error)
	TransferFunc     func(ctx context.Context, from, to crypto.Address, amount *uint256.Int) error
	BalanceOfFunc    func(ctx context.Context, addr crypto.Address) (*uint256.Int, error)
}

// TransferFrom delegates to the configured callback.
func (f FuncLedger) TransferFrom(ctx context.Context, from, to crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	if f.TransferFromFunc == nil {
		return nil, errNotConfigured
	}
	return f.TransferFromFunc(ctx, from, to, amount)
}

// Transfer delegates to the configured callback.
func (f FuncLedger) Transfer(ctx context.Context, from, to crypto.Address, amount *uint256.Int) error {
	if f.TransferFunc == nil {
		return errNotConfigured
	}
	return f.TransferFunc(ctx, from, to, amount)
}

// BalanceOf delegates to the configured callback.
func (f FuncLedger) BalanceOf(ctx context.Context, addr crypto.Address) (*uint256.Int, error) {
	if f.BalanceOfFunc == nil {
		return nil, errNotConfigured
	}
	return f.BalanceOfFunc(ctx, addr)
}
