package recur

import (
	"context"

	"github.com/xraph/recur/types"
)

// Transferor is the value-transfer primitive the ledger composes with:
// an atomic push payment to an address. Either the exact amount moves
// and Transfer returns nil, or nothing moves and it returns an error.
//
// The engine sequences every outgoing transfer (overpayment refunds,
// owner withdrawals) before committing ledger state, so a transfer
// failure unwinds the whole operation.
type Transferor interface {
	Transfer(ctx context.Context, to types.Address, amount types.Money) error
}

// TransferorFunc is an adapter to use a plain function as a Transferor.
type TransferorFunc func(ctx context.Context, to types.Address, amount types.Money) error

// Transfer implements Transferor.
func (f TransferorFunc) Transfer(ctx context.Context, to types.Address, amount types.Money) error {
	return f(ctx, to, amount)
}
