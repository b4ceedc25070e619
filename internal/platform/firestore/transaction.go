package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	txAttempts = 5
	txTimeout  = 15 * time.Second
)

// TxFunc runs inside a Firestore transaction. All reads must come before
// the first buffered write; the client rejects the transaction otherwise.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// RunTransaction runs fn in a transaction with the standard retry budget.
// A timeout applies unless the caller's context already carries a tighter
// deadline.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline || time.Until(deadline) > txTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, txTimeout)
		defer cancel()
	}

	err := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, firestore.MaxAttempts(txAttempts))
	return WrapError("transaction", err)
}
