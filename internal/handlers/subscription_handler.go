package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "meikon/internal/errors"
	"meikon/internal/models"
	"meikon/internal/pagination"
	"meikon/internal/services"
)

// SubscriptionHandler serves the caller's subscription and starts checkouts.
type SubscriptionHandler struct {
	subscriptionService services.SubscriptionServicer
	checkoutService     services.CheckoutServicer
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subscriptionService services.SubscriptionServicer, checkoutService services.CheckoutServicer) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService, checkoutService: checkoutService}
}

// CheckoutResponse carries the provider-hosted URL to redirect the user to.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// SubscriptionResponse is the caller's subscription with its effective plan.
type SubscriptionResponse struct {
	Subscription *models.Subscription `json:"subscription"`
	Provider     models.Provider      `json:"provider,omitempty"`
}

// GetSubscription returns the caller's subscription
// @Summary     Get subscription
// @Description Returns the caller's subscription. Users who never subscribed get a free plan record.
// @Tags        subscription
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} SubscriptionResponse "Subscription"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /subscription [get]
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	sub, err := h.subscriptionService.GetSubscription(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, SubscriptionResponse{Subscription: sub, Provider: sub.LinkedProvider()})
}

// StartStripeCheckout starts a Stripe subscription
// @Summary     Stripe checkout
// @Description Returns a Stripe Checkout URL, or the billing portal URL when the user already subscribes through Stripe.
// @Tags        subscription
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} CheckoutResponse "Redirect URL"
// @Failure     400 {object} ErrorResponse "Missing email"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Subscription managed by MercadoPago"
// @Failure     502 {object} ErrorResponse "Stripe error"
// @Router      /checkout/stripe [post]
func (h *SubscriptionHandler) StartStripeCheckout(c *gin.Context) {
	h.startCheckout(c, h.checkoutService.StartStripeCheckout)
}

// StartMercadoPagoCheckout starts a MercadoPago subscription
// @Summary     MercadoPago checkout
// @Description Creates a pending MercadoPago preapproval and returns its init_point.
// @Tags        subscription
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} CheckoutResponse "Redirect URL"
// @Failure     400 {object} ErrorResponse "Missing email"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Subscription already exists"
// @Failure     502 {object} ErrorResponse "MercadoPago error"
// @Router      /checkout/mercadopago [post]
func (h *SubscriptionHandler) StartMercadoPagoCheckout(c *gin.Context) {
	h.startCheckout(c, h.checkoutService.StartMercadoPagoCheckout)
}

func (h *SubscriptionHandler) startCheckout(c *gin.Context, start func(ctx context.Context, userID, email string) (string, error)) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	url, err := start(c.Request.Context(), userID, getUserEmail(c))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, CheckoutResponse{URL: url})
}

// ListSubscriptions pages through all subscriptions for operators
// @Summary     List subscriptions
// @Tags        internal
// @Produce     json
// @Security    OperatorKey
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Subscription] "Subscriptions"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /internal/subscriptions [get]
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.subscriptionService.ListSubscriptions(page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SyncMercadoPagoPreapproval re-runs reconciliation for one preapproval
// @Summary     Re-sync MercadoPago preapproval
// @Tags        internal
// @Produce     json
// @Security    OperatorKey
// @Param       id path string true "Preapproval ID"
// @Success     200 {object} models.Subscription "Reconciled subscription"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     502 {object} ErrorResponse "MercadoPago error"
// @Router      /internal/mercadopago/preapprovals/{id}/sync [post]
func (h *SubscriptionHandler) SyncMercadoPagoPreapproval(c *gin.Context) {
	sub, err := h.subscriptionService.SyncMercadoPagoPreapproval(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}
