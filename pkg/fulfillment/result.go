package fulfillment

import (
	"fmt"

	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/payment"
	"github.com/goclaw/fulfillment/pkg/saga"
)

// fillResult folds a terminal execution into the order result.
func fillResult(result *order.Result, execution *saga.Execution, execErr error) {
	result.Status = execution.State.String()
	result.Success = execution.State == saga.SagaStateCompleted
	result.Records = append([]order.StepRecord(nil), execution.Records...)
	result.Compensations = append([]order.CompensationRecord(nil), execution.Compensations...)

	result.Steps = append(result.Steps, execution.Log...)
	for _, c := range execution.Compensations {
		result.Steps = append(result.Steps, describeCompensation(c))
	}

	results := execution.StepResults
	if q, ok := results[order.StepQuoteShipping].(Quote); ok {
		result.TotalAmount = q.Total
		result.ShippingCost = q.ShippingCost
		result.Currency = q.Currency
	}
	if r, ok := results[order.StepReserveInventory].(Reservation); ok {
		result.ReservationRef = r.Ref
	}
	if a, ok := results[order.StepAuthorizePayment].(*payment.Authorization); ok {
		result.AuthorizationRef = a.Ref
	}
	if c, ok := results[order.StepCapturePayment].(*payment.Capture); ok {
		result.PaymentRef = c.Ref
	}
	if s, ok := results[order.StepCreateShipment].(Shipment); ok {
		result.ShipmentRef = s.Ref
	}
	if p, ok := results[order.StepSchedulePickup].(Pickup); ok {
		date := p.Date
		result.PickupDate = &date
	}

	result.Message = resultMessage(result, execution, execErr)
}

func resultMessage(result *order.Result, execution *saga.Execution, execErr error) string {
	where := "before completion"
	if execution.FailedStep != "" {
		where = "at " + execution.FailedStep
	}

	switch execution.State {
	case saga.SagaStateCompleted:
		return fmt.Sprintf("order %s placed: %s %s charged via %s",
			result.OrderID, result.TotalAmount.StringFixed(2), result.Currency, result.Provider)
	case saga.SagaStateCompensated:
		return fmt.Sprintf("order %s failed %s: %v; completed steps were rolled back",
			result.OrderID, where, execErr)
	case saga.SagaStateCompensationFailed:
		return fmt.Sprintf("order %s failed %s and rollback did not complete: %v; manual intervention required",
			result.OrderID, where, execErr)
	default:
		return fmt.Sprintf("order %s ended in state %s", result.OrderID, execution.State)
	}
}

func describeCompensation(c order.CompensationRecord) string {
	if c.Status == order.CompensationSucceeded {
		return fmt.Sprintf("Compensation %s for %s succeeded", c.Action, c.Step)
	}
	return fmt.Sprintf("Compensation %s for %s failed after %d attempts: %s", c.Action, c.Step, c.Attempts, c.Error)
}
