package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"meikon/internal/billing"
	apperrors "meikon/internal/errors"
	"meikon/internal/logger"
	"meikon/internal/models"
	"meikon/internal/money"
)

// ProPlanReason is the subscription description shown by MercadoPago.
const ProPlanReason = "Assinatura MEIKon Pro"

// CheckoutOptions holds the pricing and return-link settings for checkout.
type CheckoutOptions struct {
	AppURL        string
	StripePriceID string
	TrialDays     int
	ProPlanPrice  decimal.Decimal
	// Now is overridable for tests.
	Now func() time.Time
}

// checkoutService starts subscriptions. It never writes the subscription
// row; provider webhooks do.
type checkoutService struct {
	db     *gorm.DB
	stripe billing.StripeGateway
	mp     billing.MercadoPagoClient
	opts   CheckoutOptions
}

// NewCheckoutService creates a new CheckoutServicer. Either provider may be
// nil when it is not configured.
func NewCheckoutService(db *gorm.DB, stripe billing.StripeGateway, mp billing.MercadoPagoClient, opts CheckoutOptions) CheckoutServicer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.AppURL = strings.TrimRight(opts.AppURL, "/")
	return &checkoutService{db: db, stripe: stripe, mp: mp, opts: opts}
}

// StartStripeCheckout returns a Checkout URL, or a billing portal URL when
// the user already subscribes through Stripe.
func (s *checkoutService) StartStripeCheckout(ctx context.Context, userID, email string) (string, error) {
	sub, err := s.guard(userID, email, models.ProviderStripe)
	if err != nil {
		return "", err
	}
	if s.stripe == nil {
		return "", apperrors.ErrProviderNotConfigured
	}
	log := logger.Provider("stripe").With("user_id", userID)

	if sub.LinkedProvider() == models.ProviderStripe && sub.StripeCustomerID != nil {
		url, err := s.stripe.CreateBillingPortalSession(ctx, *sub.StripeCustomerID, s.opts.AppURL+"/dashboard")
		if err != nil {
			log.Errorw("failed to create billing portal session", "error", err)
			return "", providerFailure(err)
		}
		return url, nil
	}

	req := billing.StripeCheckoutRequest{
		UserID:     userID,
		Email:      email,
		PriceID:    s.opts.StripePriceID,
		TrialDays:  s.opts.TrialDays,
		SuccessURL: s.opts.AppURL + "/dashboard?success=true",
		CancelURL:  s.opts.AppURL + "/dashboard?canceled=true",
	}
	if sub != nil && sub.StripeCustomerID != nil {
		req.CustomerID = *sub.StripeCustomerID
	}

	url, err := s.stripe.CreateCheckoutSession(ctx, req)
	if err != nil {
		log.Errorw("failed to create checkout session", "error", err)
		return "", providerFailure(err)
	}
	log.Infow("created checkout session")
	return url, nil
}

// StartMercadoPagoCheckout creates a pending preapproval and returns its
// init_point.
func (s *checkoutService) StartMercadoPagoCheckout(ctx context.Context, userID, email string) (string, error) {
	if _, err := s.guard(userID, email, models.ProviderMercadoPago); err != nil {
		return "", err
	}
	if s.mp == nil {
		return "", apperrors.ErrProviderNotConfigured
	}
	log := logger.Provider("mercadopago").With("user_id", userID)

	req := billing.PreapprovalRequest{
		Reason:            ProPlanReason,
		ExternalReference: userID,
		PayerEmail:        email,
		BackURL:           s.opts.AppURL + "/dashboard?success=true",
		Status:            "pending",
		AutoRecurring: billing.AutoRecurring{
			Frequency:         1,
			FrequencyType:     "months",
			TransactionAmount: s.opts.ProPlanPrice.InexactFloat64(),
			CurrencyID:        money.Currency,
			StartDate:         s.opts.Now().UTC().AddDate(0, 0, s.opts.TrialDays),
		},
	}

	p, err := s.mp.CreatePreapproval(ctx, req)
	if err != nil {
		log.Errorw("failed to create preapproval", "error", err)
		return "", providerFailure(err)
	}
	log.Infow("created preapproval", "preapproval_id", p.ID)
	return p.InitPoint, nil
}

// guard validates the caller and enforces provider exclusivity before any
// provider is contacted. A nil subscription means the user never subscribed.
func (s *checkoutService) guard(userID, email string, want models.Provider) (*models.Subscription, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "an email address is required to subscribe")
	}

	sub, err := findSubscription(s.db, "user_id = ?", userID)
	if err != nil {
		return nil, err
	}

	switch linked := sub.LinkedProvider(); {
	case linked == "":
		return sub, nil
	case linked == models.ProviderMercadoPago && want == models.ProviderStripe:
		return nil, apperrors.WithMessage(apperrors.ErrProviderConflict,
			"Your subscription is managed by MercadoPago. Manage or cancel it there before switching to Stripe.")
	case linked == models.ProviderStripe && want == models.ProviderMercadoPago:
		return nil, apperrors.WithMessage(apperrors.ErrProviderConflict,
			"Your subscription is managed by Stripe. Use the billing portal to manage it before switching to MercadoPago.")
	case linked == models.ProviderMercadoPago && want == models.ProviderMercadoPago:
		return nil, apperrors.WithMessage(apperrors.ErrProviderConflict,
			"You already have a MercadoPago subscription. Manage it from your MercadoPago account.")
	}
	return sub, nil
}

// providerFailure converts a billing error into a 502 carrying the
// provider's own message.
func providerFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.WrapWithMessage(apperrors.ErrProviderFailure, "Payment provider did not respond in time", err)
	}
	var pe *billing.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return apperrors.WrapWithMessage(apperrors.ErrProviderFailure, pe.Message, err)
	}
	return apperrors.Wrap(apperrors.ErrProviderFailure, err)
}
