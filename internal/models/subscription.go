package models

import "time"

// Plan is the billing tier of a user.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// SubscriptionStatus is the canonical, provider-independent status.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Provider identifies a payment provider.
type Provider string

const (
	ProviderStripe      Provider = "stripe"
	ProviderMercadoPago Provider = "mercadopago"
)

// Subscription is the single billing record of a user. It is written only
// by the reconciler in response to provider notifications.
type Subscription struct {
	Base
	UserID string             `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	Plan   Plan               `gorm:"type:varchar(10);not null;default:'free'" json:"plan"`
	Status SubscriptionStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`

	StripeCustomerID       *string    `gorm:"uniqueIndex" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID   *string    `gorm:"uniqueIndex" json:"stripe_subscription_id,omitempty"`
	StripePriceID          *string    `json:"stripe_price_id,omitempty"`
	StripeCurrentPeriodEnd *time.Time `json:"stripe_current_period_end,omitempty"`

	MercadoPagoSubscriptionID   *string    `gorm:"uniqueIndex" json:"mercado_pago_subscription_id,omitempty"`
	MercadoPagoCustomerID       *string    `json:"mercado_pago_customer_id,omitempty"`
	MercadoPagoPlanID           *string    `json:"mercado_pago_plan_id,omitempty"`
	MercadoPagoCurrentPeriodEnd *time.Time `json:"mercado_pago_current_period_end,omitempty"`
}

// LinkedProvider returns the provider holding a live subscription id for
// this record, or "" when none does.
func (s *Subscription) LinkedProvider() Provider {
	switch {
	case s == nil:
		return ""
	case s.StripeSubscriptionID != nil && *s.StripeSubscriptionID != "":
		return ProviderStripe
	case s.MercadoPagoSubscriptionID != nil && *s.MercadoPagoSubscriptionID != "":
		return ProviderMercadoPago
	}
	return ""
}

// EffectivePlan treats a missing record as the free plan.
func (s *Subscription) EffectivePlan() Plan {
	if s == nil || s.Plan == "" {
		return PlanFree
	}
	return s.Plan
}
