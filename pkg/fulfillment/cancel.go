package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/storage"
)

// CancelOrder releases the reservation and refunds the payment of an order
// that completed. Both actions are idempotent, so cancelling twice returns
// the original refund without releasing or refunding again.
//
// The references must match the order's receipt. An unknown order, a
// mismatched reference or an earlier refund of a different amount is a
// *order.ValidationError and nothing is attempted. When either action fails
// the other is still attempted; the result then has Success=false and a
// *order.CancellationIncompleteError is returned.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID, reservationRef, paymentRef string) (*order.CancelResult, error) {
	result := &order.CancelResult{
		OrderID: orderID,
		Steps:   []string{},
	}
	log := o.log.With("order_id", orderID)

	receipt, err := o.loadReceipt(ctx, orderID)
	if err == nil {
		err = checkRefs(receipt, reservationRef, paymentRef)
	}
	if err == nil {
		err = o.checkPriorRefund(ctx, receipt)
	}
	if err != nil {
		result.Message = fmt.Sprintf("cancellation rejected: %v", err)
		o.metrics.RecordOrderCancellation("rejected")
		log.WarnContext(ctx, "order cancellation rejected", "error", err)
		return result, err
	}

	var failures []error

	if err := o.inventory.Release(ctx, receipt.ReservationRef); err != nil {
		failures = append(failures, fmt.Errorf("%s: %w", order.ActionReleaseReservation, err))
		result.Steps = append(result.Steps, fmt.Sprintf("Release of %s failed: %v", receipt.ReservationRef, err))
	} else {
		result.Steps = append(result.Steps, fmt.Sprintf("Reservation %s released", receipt.ReservationRef))
	}

	refundRef, replayed, err := o.refund(ctx, receipt)
	if err != nil {
		failures = append(failures, fmt.Errorf("%s: %w", order.ActionRefundPayment, err))
		result.Steps = append(result.Steps, fmt.Sprintf("Refund of %s failed: %v", receipt.PaymentRef, err))
	} else {
		result.RefundRef = refundRef
		line := fmt.Sprintf("Payment %s refunded: %s (%s %s)",
			receipt.PaymentRef, refundRef, receipt.Amount.StringFixed(2), receipt.Currency)
		if replayed {
			line += " (already refunded)"
		}
		result.Steps = append(result.Steps, line)
	}

	if len(failures) > 0 {
		err := &order.CancellationIncompleteError{OrderID: orderID, Failures: failures}
		result.Message = err.Error()
		o.metrics.RecordOrderCancellation("failed")
		log.ErrorContext(ctx, "order cancellation incomplete", "error", err)
		return result, err
	}

	if receipt.CancelledAt == nil {
		now := time.Now().UTC()
		receipt.CancelledAt = &now
	}
	receipt.RefundRef = refundRef
	if err := o.receipts.SaveReceipt(ctx, receipt); err != nil {
		log.ErrorContext(ctx, "failed to record cancellation on receipt", "error", err)
	}

	result.Success = true
	result.Message = fmt.Sprintf("order %s cancelled", orderID)
	o.metrics.RecordOrderCancellation("cancelled")
	log.InfoContext(ctx, "order cancelled", "refund_ref", refundRef)
	return result, nil
}

func (o *Orchestrator) loadReceipt(ctx context.Context, orderID string) (*order.Receipt, error) {
	if orderID == "" {
		return nil, order.NewValidationError("order id is required")
	}
	receipt, err := o.receipts.GetReceipt(ctx, orderID)
	if err != nil {
		var nf *storage.NotFoundError
		if errors.As(err, &nf) {
			return nil, order.NewValidationError("unknown order %q", orderID)
		}
		return nil, fmt.Errorf("load receipt for %s: %w", orderID, err)
	}
	return receipt, nil
}

func checkRefs(receipt *order.Receipt, reservationRef, paymentRef string) error {
	if reservationRef != receipt.ReservationRef {
		return order.NewValidationError("reservation %q does not belong to order %s", reservationRef, receipt.OrderID)
	}
	if paymentRef != receipt.PaymentRef {
		return order.NewValidationError("payment %q does not belong to order %s", paymentRef, receipt.OrderID)
	}
	return nil
}

// checkPriorRefund rejects a cancellation whose payment was already refunded
// for a different amount, before anything is released.
func (o *Orchestrator) checkPriorRefund(ctx context.Context, receipt *order.Receipt) error {
	entry, err := o.receipts.GetLedgerEntry(ctx, storage.EntryRefund, receipt.Provider, receipt.PaymentRef)
	if err != nil {
		var nf *storage.NotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("check refund ledger for %s: %w", receipt.OrderID, err)
	}
	if !entry.Amount.Equal(receipt.Amount) {
		return order.NewValidationError("payment %s was already refunded for %s, not %s",
			receipt.PaymentRef, entry.Amount.StringFixed(2), receipt.Amount.StringFixed(2))
	}
	return nil
}

// refund goes through the receipt provider's own refund handler so the
// refund stays within the family that captured the payment.
func (o *Orchestrator) refund(ctx context.Context, receipt *order.Receipt) (string, bool, error) {
	family, err := o.registry.CreateFamily(receipt.Provider)
	if err != nil {
		return "", false, err
	}
	refund, err := family.RefundHandler().Refund(ctx, receipt.PaymentRef, receipt.Amount)
	o.recordProviderOp(family.Provider(), "refund", err)
	if err != nil {
		return "", false, err
	}
	if !refund.Succeeded {
		return "", false, fmt.Errorf("refund of %s was not accepted by %s", receipt.PaymentRef, family.Provider())
	}
	return refund.Ref, refund.Replayed, nil
}
