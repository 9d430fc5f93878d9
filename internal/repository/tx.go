package repository

import "context"

// Transactor runs a function inside a single database transaction.
//
// The transaction travels in the context passed to fn; repositories called
// with that context join it. A nested WithinTx call joins the outer
// transaction instead of opening a new one. The transaction commits when fn
// returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
