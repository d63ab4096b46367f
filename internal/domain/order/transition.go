package order

// transitionKey addresses the forward transition table by payment method and
// current status.
type transitionKey struct {
	Method PaymentMethod
	From   Status
}

// forwardTransitions is the single source of truth for legal forward motion.
// Cash-on-delivery orders skip PAID; prepaid orders must pass through it.
// RETURNED and REFUND are administrative side-channels and deliberately have
// no entries here.
var forwardTransitions = map[transitionKey][]Status{
	{PaymentCashOnDelivery, StatusPending}:     {StatusReadyToShip, StatusCancelled},
	{PaymentCashOnDelivery, StatusReadyToShip}: {StatusShipping},
	{PaymentCashOnDelivery, StatusShipping}:    {StatusCompleted},

	{PaymentPrepaidWallet, StatusPending}:     {StatusPaid, StatusCancelled},
	{PaymentPrepaidWallet, StatusPaid}:        {StatusReadyToShip},
	{PaymentPrepaidWallet, StatusReadyToShip}: {StatusShipping},
	{PaymentPrepaidWallet, StatusShipping}:    {StatusCompleted},
}

// LegalNextStatuses returns the statuses reachable in one step from the given
// payment method and current status. Unlisted pairs return an empty set.
func LegalNextStatuses(method PaymentMethod, from Status) []Status {
	legal := forwardTransitions[transitionKey{Method: method, From: from}]
	out := make([]Status, len(legal))
	copy(out, legal)
	return out
}

// CanTransition reports whether target is reachable in one step.
func CanTransition(method PaymentMethod, from, target Status) bool {
	for _, s := range forwardTransitions[transitionKey{Method: method, From: from}] {
		if s == target {
			return true
		}
	}
	return false
}
