package payment

import (
	"context"
	"fmt"

	"github.com/driftcart/dropship-backend/internal/events"
	"github.com/driftcart/dropship-backend/internal/modules/order"
	"go.uber.org/zap"
)

// Reconciler folds provider outcomes into payment and order state. Both the
// verify path and the webhook path land here, so an outcome observed twice
// (or through both paths) applies exactly once.
type Reconciler struct {
	repo    Repository
	orders  Orders
	pub     events.Publisher
	log     *zap.Logger
	svcName string
}

// NewReconciler creates a new outcome reconciler.
func NewReconciler(repo Repository, orders Orders, pub events.Publisher, log *zap.Logger, svcName string) *Reconciler {
	return &Reconciler{repo: repo, orders: orders, pub: pub, log: log, svcName: svcName}
}

// Apply reconciles one provider outcome against the stored payment.
// A repeat of an already-applied outcome is a no-op. An outcome that
// contradicts a settled payment is rejected and logged as an anomaly; the
// stored state stands.
func (rc *Reconciler) Apply(ctx context.Context, p *Payment, outcome *Outcome) error {
	switch outcome.Status {
	case StatusPending:
		return nil

	case StatusCompleted:
		return rc.applyCompleted(ctx, p, outcome)

	case StatusFailed:
		return rc.applyFailed(ctx, p, outcome)

	case StatusRefunded:
		return rc.applyRefunded(ctx, p)

	default:
		return fmt.Errorf("unknown outcome status %q", outcome.Status)
	}
}

func (rc *Reconciler) applyCompleted(ctx context.Context, p *Payment, outcome *Outcome) error {
	switch p.Status {
	case StatusRefunded:
		// Refunded implies a prior completion; duplicate observation.
		return nil
	case StatusCompleted:
		// Duplicate observation. A prior attempt may have settled the
		// payment and then died before the order-side write landed, so
		// drive the idempotent order settlement again before dropping it.
		if _, err := rc.orders.MarkPaid(ctx, p.OrderID.String(), p.ID.String()); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		return nil
	case StatusFailed:
		return rc.conflict(p, StatusCompleted)
	}

	settled, err := rc.repo.Settle(ctx, p.ID.String(), StatusCompleted, outcome.TransactionID, "")
	if err != nil {
		return err
	}
	if !settled {
		// Lost the race to another observer; re-check for contradiction.
		current, err := rc.repo.GetByID(ctx, p.ID.String())
		if err != nil {
			return err
		}
		if current.Status == StatusFailed {
			return rc.conflict(current, StatusCompleted)
		}
		// The winner may not have finished the order-side write.
		if _, err := rc.orders.MarkPaid(ctx, current.OrderID.String(), current.ID.String()); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		return nil
	}
	p.Status = StatusCompleted
	p.TransactionID = outcome.TransactionID

	if _, err := rc.orders.MarkPaid(ctx, p.OrderID.String(), p.ID.String()); err != nil {
		// The payment is settled; surface the order-side failure so a
		// retry of this observation can finish the job.
		return fmt.Errorf("mark order paid: %w", err)
	}

	rc.publishOutcome(p)
	return nil
}

func (rc *Reconciler) applyFailed(ctx context.Context, p *Payment, outcome *Outcome) error {
	switch p.Status {
	case StatusFailed:
		return nil
	case StatusCompleted, StatusRefunded:
		return rc.conflict(p, StatusFailed)
	}

	settled, err := rc.repo.Settle(ctx, p.ID.String(), StatusFailed, outcome.TransactionID, outcome.FailureReason)
	if err != nil {
		return err
	}
	if !settled {
		current, err := rc.repo.GetByID(ctx, p.ID.String())
		if err != nil {
			return err
		}
		if current.Status == StatusCompleted || current.Status == StatusRefunded {
			return rc.conflict(current, StatusFailed)
		}
		return nil
	}
	p.Status = StatusFailed
	p.FailureReason = outcome.FailureReason

	// The order keeps its reservations: the customer can retry payment.
	if err := rc.orders.SetPaymentStatus(ctx, p.OrderID.String(), order.PaymentFailed); err != nil {
		return fmt.Errorf("mark order payment failed: %w", err)
	}

	rc.publishOutcome(p)
	return nil
}

// applyRefunded handles provider-initiated refunds (disputes, provider
// dashboard refunds) arriving via webhook.
func (rc *Reconciler) applyRefunded(ctx context.Context, p *Payment) error {
	switch p.Status {
	case StatusRefunded:
		return nil
	case StatusPending, StatusFailed:
		return rc.conflict(p, StatusRefunded)
	}

	remaining := p.Amount - p.RefundedAmount
	updated, err := rc.repo.RecordRefund(ctx, p.ID.String(), remaining)
	if err != nil {
		return err
	}

	// Fulfilment status is untouched: a refunded order may still be
	// mid-shipment and is resolved by operators.
	if err := rc.orders.SetPaymentStatus(ctx, p.OrderID.String(), order.PaymentRefunded); err != nil {
		return fmt.Errorf("mark order refunded: %w", err)
	}

	rc.publishOutcome(updated)
	return nil
}

func (rc *Reconciler) conflict(p *Payment, claimed Status) error {
	rc.log.Error("conflicting payment outcome rejected",
		zap.String("payment_id", p.ID.String()),
		zap.String("order_id", p.OrderID.String()),
		zap.String("stored_status", string(p.Status)),
		zap.String("claimed_status", string(claimed)))
	return fmt.Errorf("%w: stored %s, provider reports %s", ErrOutcomeConflict, p.Status, claimed)
}

func (rc *Reconciler) publishOutcome(p *Payment) {
	var eventType string
	switch p.Status {
	case StatusCompleted:
		eventType = events.EventPaymentCompleted
	case StatusFailed:
		eventType = events.EventPaymentFailed
	case StatusRefunded:
		eventType = events.EventPaymentRefunded
	default:
		return
	}
	ev := events.NewEnvelope(rc.svcName, eventType, events.PaymentEventPayload{
		PaymentID: p.ID.String(),
		OrderID:   p.OrderID.String(),
		Provider:  string(p.Provider),
		Status:    string(p.Status),
		Amount:    p.Amount,
		Currency:  p.Currency,
	})
	rc.pub.Publish(events.TopicPayments, p.OrderID.String(), ev)
}
