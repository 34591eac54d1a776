package order

// Workflow step names in their fixed execution order.
const (
	StepReserveInventory   = "reserve-inventory"
	StepQuoteShipping      = "quote-shipping"
	StepAuthorizePayment   = "authorize-payment"
	StepCapturePayment     = "capture-payment"
	StepCreateShipment     = "create-shipment"
	StepSchedulePickup     = "schedule-pickup"
	StepNotifyConfirmation = "notify-confirmation"
	StepNotifyPayment      = "notify-payment"
	StepNotifyShipment     = "notify-shipment"
)

// Compensating action names.
const (
	ActionReleaseReservation = "release-reservation"
	ActionRefundPayment      = "refund-payment"
)

// WorkflowSteps returns the fixed nine-step fulfillment workflow.
func WorkflowSteps() []string {
	return []string{
		StepReserveInventory,
		StepQuoteShipping,
		StepAuthorizePayment,
		StepCapturePayment,
		StepCreateShipment,
		StepSchedulePickup,
		StepNotifyConfirmation,
		StepNotifyPayment,
		StepNotifyShipment,
	}
}
