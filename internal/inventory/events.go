package inventory

import (
	"context"
	"time"
)

// MovementsPostedEvent is emitted after ledger entries commit.
type MovementsPostedEvent struct {
	Movements []StockMovement
	Actor     string
	PostedAt  time.Time
}

// ProductIDs lists the distinct products touched by the event.
func (e MovementsPostedEvent) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(e.Movements))
	ids := make([]int64, 0, len(e.Movements))
	for _, m := range e.Movements {
		if _, ok := seen[m.ProductID]; ok {
			continue
		}
		seen[m.ProductID] = struct{}{}
		ids = append(ids, m.ProductID)
	}
	return ids
}

// IntegrationHandler receives committed stock movements for downstream fan-out.
type IntegrationHandler interface {
	HandleMovementsPosted(ctx context.Context, evt MovementsPostedEvent) error
}
