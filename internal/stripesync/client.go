package stripesync

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// Lister reads balance history from Stripe.
type Lister interface {
	// Payouts returns the IDs of payouts created at or after since.
	Payouts(ctx context.Context, since time.Time) ([]string, error)
	// BalanceTransactions returns transactions created at or after since. A non-empty
	// payoutID restricts the listing to that payout's transactions.
	BalanceTransactions(ctx context.Context, since time.Time, payoutID string) ([]*stripe.BalanceTransaction, error)
}

// APILister implements Lister with the Stripe API client.
type APILister struct {
	api *client.API
}

// NewAPILister builds a lister authenticated with the secret key.
func NewAPILister(secretKey string) *APILister {
	return &APILister{api: client.New(secretKey, nil)}
}

// Payouts implements Lister.
func (l *APILister) Payouts(ctx context.Context, since time.Time) ([]string, error) {
	params := &stripe.PayoutListParams{}
	params.Context = ctx
	params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()}

	var ids []string
	iter := l.api.Payouts.List(params)
	for iter.Next() {
		ids = append(ids, iter.Payout().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list payouts: %w", err)
	}
	return ids, nil
}

// BalanceTransactions implements Lister.
func (l *APILister) BalanceTransactions(ctx context.Context, since time.Time, payoutID string) ([]*stripe.BalanceTransaction, error) {
	params := &stripe.BalanceTransactionListParams{}
	params.Context = ctx
	if payoutID != "" {
		params.Payout = stripe.String(payoutID)
	} else {
		params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()}
	}
	params.AddExpand("data.source")

	var out []*stripe.BalanceTransaction
	iter := l.api.BalanceTransactions.List(params)
	for iter.Next() {
		out = append(out, iter.BalanceTransaction())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list balance transactions: %w", err)
	}
	return out, nil
}
