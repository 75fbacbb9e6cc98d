package impl

import (
	"context"

	"github.com/Shopify/touchbuttons/internal/datastore"
	"github.com/Shopify/touchbuttons/internal/metrics"

	"golang.org/x/time/rate"
)

// BudgetedStore spends from a request budget before delegating to the inner store.
// A call that cannot get budget before ctx ends fails as a storage error.
type BudgetedStore struct {
	Inner       datastore.DataStore
	ReadBudget  *rate.Limiter
	WriteBudget *rate.Limiter
}

func (b *BudgetedStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if err := b.ReadBudget.Wait(ctx); err != nil {
		metrics.Incr("datastore.budget_exhausted", []string{"operation:read"})
		return nil, false, datastore.Fail("read", key, err)
	}
	return b.Inner.Read(ctx, key)
}

func (b *BudgetedStore) Write(ctx context.Context, key string, blob []byte, ownerTags []int64) error {
	if err := b.WriteBudget.Wait(ctx); err != nil {
		metrics.Incr("datastore.budget_exhausted", []string{"operation:write"})
		return datastore.Fail("write", key, err)
	}
	return b.Inner.Write(ctx, key, blob, ownerTags)
}
