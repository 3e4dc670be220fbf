package repository

import (
	"context"

	"marketplace-billing/internal/domain/model"
)

// IntentCache is the session preservation cache: it holds the token snapshot
// taken before the gateway redirect, keyed by an opaque checkout state id.
//
// Save overwrites any prior snapshot under the same state. Restore returns
// (nil, nil) when the entry is absent, unparsable, or older than
// model.IntentTTL; a stale entry is also cleared. Restore does not consume
// the entry; callers that act on it should Clear afterwards, and restoring
// twice must stay side-effect free downstream.
type IntentCache interface {
	Save(ctx context.Context, state string, intent *model.CheckoutIntent) error
	Restore(ctx context.Context, state string) (*model.CheckoutIntent, error)
	Clear(ctx context.Context, state string) error
}
