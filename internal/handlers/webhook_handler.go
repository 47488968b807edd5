package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "meikon/internal/errors"
	"meikon/internal/logger"
	"meikon/internal/services"
)

// maxWebhookBody caps the payload read from a provider.
const maxWebhookBody = 64 << 10

// WebhookHandler receives payment provider notifications. Its routes are
// unauthenticated; Stripe payloads are signed and MercadoPago resources are
// re-fetched before use.
type WebhookHandler struct {
	subscriptionService services.SubscriptionServicer
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(subscriptionService services.SubscriptionServicer) *WebhookHandler {
	return &WebhookHandler{subscriptionService: subscriptionService}
}

// Stripe handles Stripe webhook events
// @Summary     Stripe webhook
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       Stripe-Signature header string true "Stripe signature"
// @Success     200 {object} map[string]bool "Event received"
// @Failure     401 {object} ErrorResponse "Invalid signature"
// @Failure     500 {object} ErrorResponse "Event could not be applied"
// @Router      /webhooks/stripe [post]
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondWithError(c, apperrors.WrapWithMessage(apperrors.ErrInvalidInput, "unreadable body", err))
		return
	}

	if err := h.subscriptionService.HandleStripeWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// mercadoPagoBody is the JSON notification shape MercadoPago posts.
type mercadoPagoBody struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// MercadoPago handles MercadoPago notifications
// @Summary     MercadoPago webhook
// @Description Accepts topic/type and id/data.id as query parameters or a JSON body. Irrelevant notifications are acknowledged.
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       topic   query string false "Notification topic"
// @Param       type    query string false "Notification type"
// @Param       id      query string false "Resource ID"
// @Param       data.id query string false "Resource ID"
// @Success     200 {object} map[string]bool "Notification received"
// @Failure     500 {object} ErrorResponse "Notification could not be applied"
// @Router      /webhooks/mercadopago [post]
func (h *WebhookHandler) MercadoPago(c *gin.Context) {
	n := parseMercadoPagoNotification(c)

	if err := h.subscriptionService.HandleMercadoPagoNotification(c.Request.Context(), n); err != nil {
		logger.Provider("mercadopago").Errorw("notification failed", "topic", n.Topic, "id", n.ResourceID, "error", err)
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) || appErr.StatusCode != http.StatusInternalServerError {
			err = apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// parseMercadoPagoNotification prefers query parameters and falls back to
// the JSON body.
func parseMercadoPagoNotification(c *gin.Context) services.MercadoPagoNotification {
	n := services.MercadoPagoNotification{
		Topic:      firstNonEmpty(c.Query("topic"), c.Query("type")),
		ResourceID: firstNonEmpty(c.Query("id"), c.Query("data.id")),
	}
	if n.Topic != "" && n.ResourceID != "" {
		return n
	}

	var body mercadoPagoBody
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil || len(raw) == 0 || json.Unmarshal(raw, &body) != nil {
		return n
	}
	return services.MercadoPagoNotification{
		Topic:      firstNonEmpty(n.Topic, body.Type),
		ResourceID: firstNonEmpty(n.ResourceID, body.Data.ID),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
