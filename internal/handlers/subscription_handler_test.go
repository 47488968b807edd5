package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "meikon/internal/errors"
	"meikon/internal/models"
	"meikon/internal/pagination"
	"meikon/internal/services"
	"meikon/internal/testutil"
)

// --- mock subscription and checkout services ---

type mockSubscriptionService struct {
	getSubscriptionFn     func(userID string) (*models.Subscription, error)
	listSubscriptionsFn   func(page pagination.PageRequest) (*pagination.PageResponse[models.Subscription], error)
	handleStripeWebhookFn func(ctx context.Context, payload []byte, signature string) error
	handleMercadoPagoFn   func(ctx context.Context, n services.MercadoPagoNotification) error
	syncMercadoPagoFn     func(ctx context.Context, preapprovalID string) (*models.Subscription, error)
}

func (m *mockSubscriptionService) GetSubscription(userID string) (*models.Subscription, error) {
	if m.getSubscriptionFn != nil {
		return m.getSubscriptionFn(userID)
	}
	return &models.Subscription{UserID: userID, Plan: models.PlanFree, Status: models.SubscriptionStatusActive}, nil
}

func (m *mockSubscriptionService) ListSubscriptions(page pagination.PageRequest) (*pagination.PageResponse[models.Subscription], error) {
	if m.listSubscriptionsFn != nil {
		return m.listSubscriptionsFn(page)
	}
	resp := pagination.NewPageResponse([]models.Subscription{}, pagination.PageRequest{Page: 1, PageSize: 20}, 0)
	return &resp, nil
}

func (m *mockSubscriptionService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	if m.handleStripeWebhookFn != nil {
		return m.handleStripeWebhookFn(ctx, payload, signature)
	}
	return nil
}

func (m *mockSubscriptionService) HandleMercadoPagoNotification(ctx context.Context, n services.MercadoPagoNotification) error {
	if m.handleMercadoPagoFn != nil {
		return m.handleMercadoPagoFn(ctx, n)
	}
	return nil
}

func (m *mockSubscriptionService) SyncMercadoPagoPreapproval(ctx context.Context, preapprovalID string) (*models.Subscription, error) {
	if m.syncMercadoPagoFn != nil {
		return m.syncMercadoPagoFn(ctx, preapprovalID)
	}
	return &models.Subscription{}, nil
}

var _ services.SubscriptionServicer = (*mockSubscriptionService)(nil)

type mockCheckoutService struct {
	startStripeFn      func(ctx context.Context, userID, email string) (string, error)
	startMercadoPagoFn func(ctx context.Context, userID, email string) (string, error)
}

func (m *mockCheckoutService) StartStripeCheckout(ctx context.Context, userID, email string) (string, error) {
	if m.startStripeFn != nil {
		return m.startStripeFn(ctx, userID, email)
	}
	return "https://checkout.stripe.com/c/pay/cs_test", nil
}

func (m *mockCheckoutService) StartMercadoPagoCheckout(ctx context.Context, userID, email string) (string, error) {
	if m.startMercadoPagoFn != nil {
		return m.startMercadoPagoFn(ctx, userID, email)
	}
	return "https://www.mercadopago.com.br/subscriptions/checkout?preapproval_id=abc", nil
}

var _ services.CheckoutServicer = (*mockCheckoutService)(nil)

func setupSubscriptionRouter(handler *SubscriptionHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.GET("/subscription", handler.GetSubscription)
	auth.POST("/checkout/stripe", handler.StartStripeCheckout)
	auth.POST("/checkout/mercadopago", handler.StartMercadoPagoCheckout)
	r.GET("/internal/subscriptions", handler.ListSubscriptions)
	r.POST("/internal/mercadopago/preapprovals/:id/sync", handler.SyncMercadoPagoPreapproval)
	return r
}

func TestSubscriptionHandler_GetSubscription(t *testing.T) {
	t.Run("returns free plan without provider", func(t *testing.T) {
		r := setupSubscriptionRouter(NewSubscriptionHandler(&mockSubscriptionService{}, &mockCheckoutService{}))

		rec := doRequest(r, "GET", "/subscription", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		result := parseJSON(t, rec)
		sub := result["subscription"].(map[string]interface{})
		if sub["plan"] != "free" {
			t.Errorf("expected free plan, got %v", sub["plan"])
		}
		if _, ok := result["provider"]; ok {
			t.Errorf("expected no provider, got %v", result["provider"])
		}
	})

	t.Run("reports linked provider", func(t *testing.T) {
		svc := &mockSubscriptionService{
			getSubscriptionFn: func(userID string) (*models.Subscription, error) {
				return &models.Subscription{
					UserID:                    userID,
					Plan:                      models.PlanPro,
					Status:                    models.SubscriptionStatusActive,
					MercadoPagoSubscriptionID: testutil.Ptr("2c9380848e0b4a1a"),
				}, nil
			},
		}
		r := setupSubscriptionRouter(NewSubscriptionHandler(svc, &mockCheckoutService{}))

		rec := doRequest(r, "GET", "/subscription", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := parseJSON(t, rec)["provider"]; got != "mercadopago" {
			t.Errorf("expected mercadopago, got %v", got)
		}
	})
}

func TestSubscriptionHandler_Checkout(t *testing.T) {
	t.Run("stripe returns url with caller email", func(t *testing.T) {
		var gotUser, gotEmail string
		checkout := &mockCheckoutService{
			startStripeFn: func(_ context.Context, userID, email string) (string, error) {
				gotUser, gotEmail = userID, email
				return "https://checkout.stripe.com/c/pay/cs_1", nil
			},
		}
		r := setupSubscriptionRouter(NewSubscriptionHandler(&mockSubscriptionService{}, checkout))

		rec := doRequest(r, "POST", "/checkout/stripe", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotUser != testUserID || gotEmail != "mei@example.com" {
			t.Errorf("got user=%q email=%q", gotUser, gotEmail)
		}
		if url := parseJSON(t, rec)["url"]; url != "https://checkout.stripe.com/c/pay/cs_1" {
			t.Errorf("unexpected url %v", url)
		}
	})

	t.Run("stripe returns 409 when managed by mercadopago", func(t *testing.T) {
		msg := "Your subscription is managed by MercadoPago. Manage or cancel it there before switching to Stripe."
		checkout := &mockCheckoutService{
			startStripeFn: func(context.Context, string, string) (string, error) {
				return "", apperrors.WithMessage(apperrors.ErrProviderConflict, msg)
			},
		}
		r := setupSubscriptionRouter(NewSubscriptionHandler(&mockSubscriptionService{}, checkout))

		rec := doRequest(r, "POST", "/checkout/stripe", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		result := parseJSON(t, rec)
		assertErrorCode(t, result, "PROVIDER_CONFLICT")
		if got := result["error"].(map[string]interface{})["message"]; got != msg {
			t.Errorf("unexpected message %v", got)
		}
	})

	t.Run("mercadopago returns 502 with provider message", func(t *testing.T) {
		checkout := &mockCheckoutService{
			startMercadoPagoFn: func(context.Context, string, string) (string, error) {
				return "", apperrors.WithMessage(apperrors.ErrProviderFailure, "Cannot operate between different countries")
			},
		}
		r := setupSubscriptionRouter(NewSubscriptionHandler(&mockSubscriptionService{}, checkout))

		rec := doRequest(r, "POST", "/checkout/mercadopago", "")
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "PROVIDER_ERROR")
	})

	t.Run("returns 401 without user", func(t *testing.T) {
		h := NewSubscriptionHandler(&mockSubscriptionService{}, &mockCheckoutService{})
		r := gin.New()
		r.POST("/checkout/stripe", h.StartStripeCheckout)

		rec := doRequest(r, "POST", "/checkout/stripe", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestSubscriptionHandler_Internal(t *testing.T) {
	t.Run("sync passes preapproval id", func(t *testing.T) {
		var gotID string
		svc := &mockSubscriptionService{
			syncMercadoPagoFn: func(_ context.Context, id string) (*models.Subscription, error) {
				gotID = id
				return &models.Subscription{Plan: models.PlanPro}, nil
			},
		}
		r := setupSubscriptionRouter(NewSubscriptionHandler(svc, &mockCheckoutService{}))

		rec := doRequest(r, "POST", "/internal/mercadopago/preapprovals/2c9380848e0b4a1a/sync", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotID != "2c9380848e0b4a1a" {
			t.Errorf("expected preapproval id, got %q", gotID)
		}
	})

	t.Run("list returns page", func(t *testing.T) {
		r := setupSubscriptionRouter(NewSubscriptionHandler(&mockSubscriptionService{}, &mockCheckoutService{}))

		rec := doRequest(r, "GET", "/internal/subscriptions?page=1&page_size=5", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}

func setupWebhookRouter(handler *WebhookHandler) *gin.Engine {
	r := gin.New()
	r.POST("/webhooks/stripe", handler.Stripe)
	r.POST("/webhooks/mercadopago", handler.MercadoPago)
	return r
}

func TestWebhookHandler_Stripe(t *testing.T) {
	t.Run("passes raw body and signature", func(t *testing.T) {
		var gotPayload, gotSig string
		svc := &mockSubscriptionService{
			handleStripeWebhookFn: func(_ context.Context, payload []byte, signature string) error {
				gotPayload, gotSig = string(payload), signature
				return nil
			},
		}
		r := setupWebhookRouter(NewWebhookHandler(svc))

		body := `{"id":"evt_1","type":"customer.subscription.updated"}`
		req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(body))
		req.Header.Set("Stripe-Signature", "t=1,v1=abc")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotPayload != body || gotSig != "t=1,v1=abc" {
			t.Errorf("got payload=%q sig=%q", gotPayload, gotSig)
		}
	})

	t.Run("returns 401 on bad signature", func(t *testing.T) {
		svc := &mockSubscriptionService{
			handleStripeWebhookFn: func(context.Context, []byte, string) error {
				return apperrors.ErrInvalidSignature
			},
		}
		r := setupWebhookRouter(NewWebhookHandler(svc))

		rec := doRequest(r, "POST", "/webhooks/stripe", `{}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_SIGNATURE")
	})

	t.Run("returns 500 when event cannot be applied", func(t *testing.T) {
		svc := &mockSubscriptionService{
			handleStripeWebhookFn: func(context.Context, []byte, string) error {
				return apperrors.ErrSubscriptionUnresolved
			},
		}
		r := setupWebhookRouter(NewWebhookHandler(svc))

		rec := doRequest(r, "POST", "/webhooks/stripe", `{}`)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})
}

func TestWebhookHandler_MercadoPago(t *testing.T) {
	capture := func(got *services.MercadoPagoNotification) *mockSubscriptionService {
		return &mockSubscriptionService{
			handleMercadoPagoFn: func(_ context.Context, n services.MercadoPagoNotification) error {
				*got = n
				return nil
			},
		}
	}

	t.Run("reads query parameters", func(t *testing.T) {
		var got services.MercadoPagoNotification
		r := setupWebhookRouter(NewWebhookHandler(capture(&got)))

		rec := doRequest(r, "POST", "/webhooks/mercadopago?topic=preapproval&id=pre_1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got.Topic != "preapproval" || got.ResourceID != "pre_1" {
			t.Errorf("unexpected notification %+v", got)
		}
	})

	t.Run("reads data.id and type query", func(t *testing.T) {
		var got services.MercadoPagoNotification
		r := setupWebhookRouter(NewWebhookHandler(capture(&got)))

		rec := doRequest(r, "POST", "/webhooks/mercadopago?type=subscription_preapproval&data.id=pre_2", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got.Topic != "subscription_preapproval" || got.ResourceID != "pre_2" {
			t.Errorf("unexpected notification %+v", got)
		}
	})

	t.Run("falls back to json body", func(t *testing.T) {
		var got services.MercadoPagoNotification
		r := setupWebhookRouter(NewWebhookHandler(capture(&got)))

		rec := doRequest(r, "POST", "/webhooks/mercadopago", `{"type":"subscription_preapproval","data":{"id":"pre_3"}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got.Topic != "subscription_preapproval" || got.ResourceID != "pre_3" {
			t.Errorf("unexpected notification %+v", got)
		}
	})

	t.Run("returns 500 on reconciliation failure", func(t *testing.T) {
		svc := &mockSubscriptionService{
			handleMercadoPagoFn: func(context.Context, services.MercadoPagoNotification) error {
				return apperrors.WithMessage(apperrors.ErrInvalidInput, "bad")
			},
		}
		r := setupWebhookRouter(NewWebhookHandler(svc))

		rec := doRequest(r, "POST", "/webhooks/mercadopago?topic=preapproval&id=pre_1", "")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INTERNAL_ERROR")
	})

	t.Run("returns 500 when re-fetch fails", func(t *testing.T) {
		svc := &mockSubscriptionService{
			handleMercadoPagoFn: func(context.Context, services.MercadoPagoNotification) error {
				return apperrors.ErrProviderFailure
			},
		}
		r := setupWebhookRouter(NewWebhookHandler(svc))

		rec := doRequest(r, "POST", "/webhooks/mercadopago?topic=preapproval&id=pre_1", "")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("keeps unresolved subscription code", func(t *testing.T) {
		svc := &mockSubscriptionService{
			handleMercadoPagoFn: func(context.Context, services.MercadoPagoNotification) error {
				return apperrors.ErrSubscriptionUnresolved
			},
		}
		r := setupWebhookRouter(NewWebhookHandler(svc))

		rec := doRequest(r, "POST", "/webhooks/mercadopago?topic=preapproval&id=pre_1", "")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "SUBSCRIPTION_UNRESOLVED")
	})
}
