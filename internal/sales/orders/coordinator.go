package orders

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

// ChangeStatus moves an order to target. The status update, the stock movements the
// transition implies and the history row commit together or not at all:
//
//   - pending → confirmed deducts every line as a sale
//   - cancelling a confirmed, packed or shipped order returns every line
//   - every other legal move touches status only
//
// The order row is locked first, then the products in ascending id order, so two
// transitions contending for the same stock serialise instead of deadlocking.
func (s *Service) ChangeStatus(ctx context.Context, orderID int64, target Status, actor string) (*Transition, error) {
	if actor == "" {
		return nil, shared.ErrActorRequired
	}

	var result *Transition
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		order, err := repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from := order.Status
		if !CanTransition(from, target) {
			return &IllegalTransitionError{From: from, To: target}
		}

		var movements []inventory.StockMovement
		if reqs := stockRequests(order, stockEffectOf(from, target)); len(reqs) > 0 {
			movements, err = s.ledger.Post(ctx, repo.Stock(), actor, reqs)
			if err != nil {
				return err
			}
		}

		now := s.now()
		if err := repo.UpdateStatus(ctx, orderID, target, now); err != nil {
			return err
		}
		if err := repo.InsertStatusChange(ctx, StatusChange{OrderID: orderID, From: from, To: target, Actor: actor, CreatedAt: now}); err != nil {
			return err
		}

		order.Status = target
		order.UpdatedAt = now
		switch target {
		case StatusConfirmed:
			order.ConfirmedAt = &now
		case StatusCancelled:
			order.CancelledAt = &now
		}
		result = &Transition{Order: order, From: from, To: target, Movements: movements}
		return nil
	})
	s.observe(target, err)
	if err != nil {
		return nil, err
	}

	s.record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "sales:order:status",
		Entity:   "order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta: map[string]any{
			"from":      string(result.From),
			"to":        string(result.To),
			"movements": len(result.Movements),
		},
	})
	if s.integration != nil {
		evt := StatusChangedEvent{
			OrderID:     orderID,
			OrderNumber: result.Order.OrderNumber,
			From:        result.From,
			To:          result.To,
			Actor:       actor,
			Movements:   result.Movements,
			ChangedAt:   result.Order.UpdatedAt,
		}
		if err := s.integration.HandleStatusChanged(ctx, evt); err != nil {
			s.logger.Warn("order status integration", slog.Int64("order_id", orderID), slog.Any("error", err))
		}
	}
	return result, nil
}

// stockRequests turns an order's lines into ledger requests for effect.
func stockRequests(order *Order, effect stockEffect) []inventory.MovementRequest {
	if effect == effectNone {
		return nil
	}
	ref := inventory.OrderRef{OrderID: order.ID}
	reqs := make([]inventory.MovementRequest, 0, len(order.Items))
	for _, item := range order.Items {
		req := inventory.MovementRequest{ProductID: item.ProductID, Reference: ref, Note: order.OrderNumber}
		switch effect {
		case effectDeduct:
			req.Type, req.Reason, req.Quantity = inventory.MovementOut, inventory.ReasonSale, -item.Quantity
		case effectRestore:
			req.Type, req.Reason, req.Quantity = inventory.MovementIn, inventory.ReasonReturn, item.Quantity
		}
		reqs = append(reqs, req)
	}
	return reqs
}

func (s *Service) observe(target Status, err error) {
	if s.recorder == nil {
		return
	}
	label := string(target)
	if !target.Valid() {
		label = "unknown"
	}
	s.recorder.ObserveOrderTransition(label, outcomeOf(err))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrIllegalTransition):
		return OutcomeIllegal
	case errors.Is(err, ErrInsufficientStock):
		return OutcomeInsufficientStock
	case errors.Is(err, ErrConcurrencyConflict):
		return OutcomeConflict
	case errors.Is(err, ErrStorageTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	}
	return OutcomeError
}
