package services

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"meikon/internal/billing"
	apperrors "meikon/internal/errors"
	"meikon/internal/logger"
	"meikon/internal/models"
	"meikon/internal/pagination"
)

// MercadoPago notification topics that carry a preapproval id.
const (
	mercadoPagoTopicPreapproval  = "preapproval"
	mercadoPagoTopicSubscription = "subscription_preapproval"
)

var errNoExternalReference = errors.New("preapproval has no external_reference")

// subscriptionService reconciles provider state into the single
// subscription row of each user.
type subscriptionService struct {
	db     *gorm.DB
	stripe billing.StripeGateway
	mp     billing.MercadoPagoClient
	audit  AuditServicer
}

// NewSubscriptionService creates a new SubscriptionServicer. Either provider
// may be nil when it is not configured.
func NewSubscriptionService(db *gorm.DB, stripe billing.StripeGateway, mp billing.MercadoPagoClient, audit AuditServicer) SubscriptionServicer {
	return &subscriptionService{db: db, stripe: stripe, mp: mp, audit: audit}
}

// GetSubscription returns the user's subscription, creating the free
// baseline row on first read.
func (s *subscriptionService) GetSubscription(userID string) (*models.Subscription, error) {
	sub, err := findSubscription(s.db, "user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		return sub, nil
	}

	baseline := &models.Subscription{UserID: userID, Plan: models.PlanFree, Status: models.SubscriptionStatusActive}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true, Columns: []clause.Column{{Name: "user_id"}}}).
		Create(baseline).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	sub, err = findSubscription(s.db, "user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperrors.ErrSubscriptionNotFound
	}
	return sub, nil
}

// ListSubscriptions pages through every subscription, most recently updated first.
func (s *subscriptionService) ListSubscriptions(page pagination.PageRequest) (*pagination.PageResponse[models.Subscription], error) {
	page.Normalize()

	var totalItems int64
	if err := s.db.Model(&models.Subscription{}).Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var subs []models.Subscription
	if err := s.db.Scopes(pagination.Paginate(page)).Order("updated_at DESC").Find(&subs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(subs, page, totalItems)
	return &result, nil
}

// HandleStripeWebhook verifies a Stripe event and applies it. Unhandled
// event kinds are acknowledged without changes. Signature verification is
// local and the store calls take no context, so the context goes unused.
func (s *subscriptionService) HandleStripeWebhook(_ context.Context, payload []byte, signature string) error {
	if s.stripe == nil {
		return apperrors.ErrProviderNotConfigured
	}

	event, err := s.stripe.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return apperrors.Wrap(apperrors.ErrInvalidSignature, err)
		}
		return apperrors.WrapWithMessage(apperrors.ErrInvalidInput, "malformed Stripe event", err)
	}

	log := logger.Provider("stripe").With("event_id", event.ID, "event_type", string(event.Kind))

	var sub *models.Subscription
	switch event.Kind {
	case billing.StripeCheckoutCompleted:
		sub, err = s.applyStripeCheckout(event)
	case billing.StripeSubscriptionUpdated:
		sub, err = s.applyStripeSubscriptionUpdated(event)
	case billing.StripeSubscriptionDeleted:
		sub, err = s.applyStripeSubscriptionDeleted(event)
	case billing.StripeInvoicePaymentFailed:
		sub, err = s.applyStripePaymentFailed(event)
	default:
		log.Debugw("ignoring Stripe event")
		return nil
	}
	if err != nil {
		log.Errorw("failed to apply Stripe event", "error", err)
		return err
	}
	if sub == nil {
		log.Warnw("Stripe event changed no subscription", "subscription_id", event.SubscriptionID, "customer_id", event.CustomerID)
		return nil
	}

	log.Infow("applied Stripe event", "user_id", sub.UserID, "plan", sub.Plan, "status", sub.Status)
	s.audit.Log(sub.UserID, "SYNC_SUBSCRIPTION", "subscription", sub.ID, "",
		map[string]interface{}{"provider": models.ProviderStripe, "event": string(event.Kind), "plan": sub.Plan, "status": sub.Status})
	return nil
}

func (s *subscriptionService) applyStripeCheckout(event *billing.StripeEvent) (*models.Subscription, error) {
	if event.UserID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrSubscriptionUnresolved, "checkout session carries no userId metadata")
	}
	return s.upsert(event.UserID, func(sub *models.Subscription) bool {
		if staleStripeEvent(sub, event) {
			return false
		}
		sub.StripeCustomerID = optional(event.CustomerID)
		sub.StripeSubscriptionID = optional(event.SubscriptionID)
		sub.Status = models.SubscriptionStatusTrialing
		sub.Plan = models.PlanPro
		return true
	})
}

func (s *subscriptionService) applyStripeSubscriptionUpdated(event *billing.StripeEvent) (*models.Subscription, error) {
	userID := event.UserID
	if userID == "" && event.CustomerID != "" {
		existing, err := findSubscription(s.db, "stripe_customer_id = ?", event.CustomerID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			userID = existing.UserID
		}
	}
	if userID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrSubscriptionUnresolved, "no subscription for Stripe customer "+event.CustomerID)
	}

	status, known := billing.MapStripeStatus(event.Status)
	if !known {
		logger.Provider("stripe").Warnw("unrecognized Stripe subscription status, keeping stored status",
			"status", event.Status, "user_id", userID)
	}

	return s.upsert(userID, func(sub *models.Subscription) bool {
		if staleStripeEvent(sub, event) {
			return false
		}
		sub.StripeCustomerID = optional(event.CustomerID)
		sub.StripeSubscriptionID = optional(event.SubscriptionID)
		sub.StripePriceID = optional(event.PriceID)
		sub.StripeCurrentPeriodEnd = event.CurrentPeriodEnd
		if known {
			sub.Status = status
			sub.Plan = planFor(status)
		}
		return true
	})
}

// applyStripeSubscriptionDeleted matches on the subscription id only; the
// customer id outlives a deletion.
func (s *subscriptionService) applyStripeSubscriptionDeleted(event *billing.StripeEvent) (*models.Subscription, error) {
	if event.SubscriptionID == "" {
		return nil, nil
	}
	existing, err := findSubscription(s.db, "stripe_subscription_id = ?", event.SubscriptionID)
	if err != nil || existing == nil {
		return nil, err
	}
	return s.upsert(existing.UserID, func(sub *models.Subscription) bool {
		if staleStripeEvent(sub, event) {
			return false
		}
		sub.Status = models.SubscriptionStatusCanceled
		sub.Plan = models.PlanFree
		sub.StripeSubscriptionID = nil
		sub.StripePriceID = nil
		sub.StripeCurrentPeriodEnd = nil
		return true
	})
}

func (s *subscriptionService) applyStripePaymentFailed(event *billing.StripeEvent) (*models.Subscription, error) {
	if event.SubscriptionID == "" {
		return nil, nil
	}
	existing, err := findSubscription(s.db, "stripe_subscription_id = ?", event.SubscriptionID)
	if err != nil || existing == nil {
		return nil, err
	}
	return s.upsert(existing.UserID, func(sub *models.Subscription) bool {
		if staleStripeEvent(sub, event) {
			return false
		}
		sub.Status = models.SubscriptionStatusPastDue
		return true
	})
}

// staleStripeEvent reports whether event belongs to a Stripe subscription
// other than the one sub is linked to.
func staleStripeEvent(sub *models.Subscription, event *billing.StripeEvent) bool {
	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID == "" || event.SubscriptionID == "" {
		return false
	}
	if *sub.StripeSubscriptionID == event.SubscriptionID {
		return false
	}
	logger.Provider("stripe").Warnw("ignoring event for a replaced Stripe subscription",
		"event_id", event.ID, "event_subscription_id", event.SubscriptionID,
		"linked_subscription_id", *sub.StripeSubscriptionID, "user_id", sub.UserID)
	return true
}

// HandleMercadoPagoNotification reconciles the preapproval named by a
// notification. Topics other than preapprovals are acknowledged and ignored.
func (s *subscriptionService) HandleMercadoPagoNotification(ctx context.Context, n MercadoPagoNotification) error {
	log := logger.Provider("mercadopago")
	if n.ResourceID == "" || (n.Topic != mercadoPagoTopicPreapproval && n.Topic != mercadoPagoTopicSubscription) {
		log.Debugw("ignoring MercadoPago notification", "topic", n.Topic, "id", n.ResourceID)
		return nil
	}

	_, err := s.reconcilePreapproval(ctx, n.ResourceID)
	if errors.Is(err, errNoExternalReference) {
		log.Warnw("preapproval has no external_reference, skipping", "preapproval_id", n.ResourceID)
		return nil
	}
	return err
}

// SyncMercadoPagoPreapproval re-fetches one preapproval and reconciles it.
func (s *subscriptionService) SyncMercadoPagoPreapproval(ctx context.Context, preapprovalID string) (*models.Subscription, error) {
	if preapprovalID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "preapproval id is required")
	}
	sub, err := s.reconcilePreapproval(ctx, preapprovalID)
	if errors.Is(err, errNoExternalReference) {
		return nil, apperrors.WrapWithMessage(apperrors.ErrSubscriptionUnresolved, "preapproval "+preapprovalID+" has no external_reference", err)
	}
	return sub, err
}

// reconcilePreapproval never trusts notification fields: the preapproval is
// always fetched from MercadoPago first.
func (s *subscriptionService) reconcilePreapproval(ctx context.Context, preapprovalID string) (*models.Subscription, error) {
	if s.mp == nil {
		return nil, apperrors.ErrProviderNotConfigured
	}
	log := logger.Provider("mercadopago").With("preapproval_id", preapprovalID)

	p, err := s.mp.GetPreapproval(ctx, preapprovalID)
	if err != nil {
		log.Errorw("failed to fetch preapproval", "error", err)
		return nil, providerFailure(err)
	}
	if p.ExternalReference == "" {
		return nil, errNoExternalReference
	}
	userID := p.ExternalReference

	status, known := billing.MapMercadoPagoStatus(p.Status)
	if !known {
		log.Warnw("unrecognized MercadoPago status, keeping stored status", "status", p.Status, "user_id", userID)
	}

	sub, err := s.upsert(userID, func(sub *models.Subscription) bool {
		if sub.LinkedProvider() == models.ProviderStripe {
			log.Warnw("MercadoPago notification for a Stripe-linked user, leaving plan untouched", "user_id", userID)
			return false
		}
		linked := sub.MercadoPagoSubscriptionID
		if known && status == models.SubscriptionStatusCanceled && linked != nil && *linked != "" && *linked != p.ID {
			log.Warnw("ignoring cancellation of a replaced preapproval", "user_id", userID, "linked_preapproval_id", *linked)
			return false
		}
		if known && status == models.SubscriptionStatusCanceled {
			sub.MercadoPagoSubscriptionID = nil
			sub.MercadoPagoCurrentPeriodEnd = nil
		} else {
			sub.MercadoPagoSubscriptionID = optional(p.ID)
			sub.MercadoPagoCurrentPeriodEnd = p.NextPaymentDate
		}
		if p.PayerID != 0 {
			sub.MercadoPagoCustomerID = optional(strconv.FormatInt(p.PayerID, 10))
		}
		sub.MercadoPagoPlanID = optional(p.PreapprovalPlanID)
		if known {
			sub.Status = status
			sub.Plan = planFor(status)
		}
		return true
	})
	if err != nil {
		log.Errorw("failed to store subscription", "error", err)
		return nil, err
	}
	if sub == nil {
		current, err := findSubscription(s.db, "user_id = ?", userID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, apperrors.ErrSubscriptionNotFound
		}
		return current, nil
	}

	log.Infow("reconciled preapproval", "user_id", userID, "provider_status", p.Status, "plan", sub.Plan, "status", sub.Status)
	s.audit.Log(userID, "SYNC_SUBSCRIPTION", "subscription", sub.ID, "",
		map[string]interface{}{"provider": models.ProviderMercadoPago, "preapproval_id": preapprovalID, "plan": sub.Plan, "status": sub.Status})
	return sub, nil
}

// upsert loads the user's row inside a transaction, applies mutate and
// writes the result. mutate assigns absolute values only, so replaying the
// same notification leaves the row unchanged. When mutate returns false
// nothing is written and upsert returns a nil subscription.
func (s *subscriptionService) upsert(userID string, mutate func(*models.Subscription) bool) (*models.Subscription, error) {
	var result *models.Subscription
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := findSubscription(tx.Clauses(clause.Locking{Strength: "UPDATE"}), "user_id = ?", userID)
		if err != nil {
			return err
		}

		if existing != nil {
			if !mutate(existing) {
				return nil
			}
			if err := tx.Save(existing).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			result = existing
			return nil
		}

		sub := &models.Subscription{UserID: userID, Plan: models.PlanFree, Status: models.SubscriptionStatusActive}
		if !mutate(sub) {
			return nil
		}
		if err := tx.Create(sub).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// findSubscription returns nil without error when no row matches.
func findSubscription(db *gorm.DB, query string, args ...interface{}) (*models.Subscription, error) {
	var sub models.Subscription
	if err := db.Where(query, args...).Limit(1).Find(&sub).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if sub.ID == "" {
		return nil, nil
	}
	return &sub, nil
}

// planFor derives the plan from a canonical status: anything short of
// canceled keeps the paid plan.
func planFor(status models.SubscriptionStatus) models.Plan {
	if status == models.SubscriptionStatusCanceled {
		return models.PlanFree
	}
	return models.PlanPro
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
