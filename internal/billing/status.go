package billing

import "meikon/internal/models"

// Both mappings are total over the statuses each provider documents. An
// unlisted status yields ok=false so callers can keep the stored status
// instead of guessing.

var stripeStatuses = map[string]models.SubscriptionStatus{
	"active":             models.SubscriptionStatusActive,
	"trialing":           models.SubscriptionStatusTrialing,
	"past_due":           models.SubscriptionStatusPastDue,
	"unpaid":             models.SubscriptionStatusPastDue,
	"incomplete":         models.SubscriptionStatusPastDue,
	"paused":             models.SubscriptionStatusPastDue,
	"canceled":           models.SubscriptionStatusCanceled,
	"incomplete_expired": models.SubscriptionStatusCanceled,
}

var mercadoPagoStatuses = map[string]models.SubscriptionStatus{
	"pending":    models.SubscriptionStatusTrialing,
	"authorized": models.SubscriptionStatusActive,
	"paused":     models.SubscriptionStatusPastDue,
	"cancelled":  models.SubscriptionStatusCanceled,
	"rejected":   models.SubscriptionStatusCanceled,
}

// MapStripeStatus converts a Stripe subscription status to the canonical enum.
func MapStripeStatus(status string) (models.SubscriptionStatus, bool) {
	s, ok := stripeStatuses[status]
	return s, ok
}

// MapMercadoPagoStatus converts a MercadoPago preapproval status to the canonical enum.
func MapMercadoPagoStatus(status string) (models.SubscriptionStatus, bool) {
	s, ok := mercadoPagoStatuses[status]
	return s, ok
}
