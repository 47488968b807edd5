package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeEventKind is the Stripe event type string.
type StripeEventKind string

const (
	StripeCheckoutCompleted    StripeEventKind = "checkout.session.completed"
	StripeSubscriptionUpdated  StripeEventKind = "customer.subscription.updated"
	StripeSubscriptionDeleted  StripeEventKind = "customer.subscription.deleted"
	StripeInvoicePaymentFailed StripeEventKind = "invoice.payment_failed"
)

// StripeEvent is the subset of a verified Stripe event the reconciler needs.
// Status is the raw Stripe status; mapping happens in the reconciler.
type StripeEvent struct {
	ID               string
	Kind             StripeEventKind
	UserID           string
	CustomerID       string
	SubscriptionID   string
	PriceID          string
	Status           string
	CurrentPeriodEnd *time.Time
}

// StripeCheckoutRequest describes a new subscription checkout session.
type StripeCheckoutRequest struct {
	UserID     string
	Email      string
	CustomerID string // reused instead of Email when the user paid through Stripe before
	PriceID    string
	TrialDays  int
	SuccessURL string
	CancelURL  string
}

// StripeGateway is the Stripe surface used by the application.
type StripeGateway interface {
	ParseWebhook(payload []byte, signature string) (*StripeEvent, error)
	CreateCheckoutSession(ctx context.Context, req StripeCheckoutRequest) (string, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

type stripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway builds a gateway with its own stripe-go client. The
// httpClient carries the request timeout; network retries are disabled
// because session creation is not safe to repeat blindly.
func NewStripeGateway(secretKey, webhookSecret string, httpClient *http.Client) StripeGateway {
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig(httpClient)),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig(httpClient)),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig(httpClient)),
	}
	api := &client.API{}
	api.Init(secretKey, backends)
	return &stripeGateway{api: api, webhookSecret: webhookSecret}
}

// backendConfig returns a fresh config per backend; stripe-go fills in the
// URL on the struct it is given.
func backendConfig(httpClient *http.Client) *stripe.BackendConfig {
	return &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
	}
}

func (g *stripeGateway) ParseWebhook(payload []byte, signature string) (*StripeEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &StripeEvent{ID: event.ID, Kind: StripeEventKind(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Kind {
	case StripeCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decoding checkout session: %w", err)
		}
		out.UserID = sess.Metadata["userId"]
		if sess.Customer != nil {
			out.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			out.SubscriptionID = sess.Subscription.ID
		}

	case StripeSubscriptionUpdated, StripeSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decoding subscription: %w", err)
		}
		out.UserID = sub.Metadata["userId"]
		out.SubscriptionID = sub.ID
		out.Status = string(sub.Status)
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			out.PriceID = sub.Items.Data[0].Price.ID
		}
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			out.CurrentPeriodEnd = &end
		}

	case StripeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decoding invoice: %w", err)
		}
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
		}
		if inv.Customer != nil {
			out.CustomerID = inv.Customer.ID
		}
	}

	return out, nil
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, req StripeCheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(int64(req.TrialDays)),
			Metadata:        map[string]string{"userId": req.UserID},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata("userId", req.UserID)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", stripeFailure(err)
	}
	return sess.URL, nil
}

func (g *stripeGateway) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := g.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", stripeFailure(err)
	}
	return sess.URL, nil
}

func stripeFailure(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		msg := se.Msg
		if msg == "" {
			msg = "request failed with code " + strconv.Quote(string(se.Code))
		}
		return &ProviderError{Provider: "stripe", StatusCode: se.HTTPStatusCode, Message: msg, Err: err}
	}
	return &ProviderError{Provider: "stripe", Message: err.Error(), Err: err}
}
