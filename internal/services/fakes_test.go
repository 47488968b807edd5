package services

import (
	"context"
	"sync"

	"meikon/internal/billing"
)

// fakeStripe is a scripted StripeGateway that records every call.
type fakeStripe struct {
	mu      sync.Mutex
	event   *billing.StripeEvent
	parse   error
	url     string
	err     error
	calls   []string
	lastReq billing.StripeCheckoutRequest
}

var _ billing.StripeGateway = (*fakeStripe)(nil)

func (f *fakeStripe) ParseWebhook(payload []byte, signature string) (*billing.StripeEvent, error) {
	f.record("ParseWebhook")
	if f.parse != nil {
		return nil, f.parse
	}
	return f.event, nil
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, req billing.StripeCheckoutRequest) (string, error) {
	f.record("CreateCheckoutSession")
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func (f *fakeStripe) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	f.record("CreateBillingPortalSession")
	if f.err != nil {
		return "", f.err
	}
	return f.url + "/portal/" + customerID, nil
}

func (f *fakeStripe) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

// fakeMercadoPago serves preapprovals from a map.
type fakeMercadoPago struct {
	mu           sync.Mutex
	preapprovals map[string]*billing.Preapproval
	err          error
	created      []billing.PreapprovalRequest
	fetches      int
}

var _ billing.MercadoPagoClient = (*fakeMercadoPago)(nil)

func (f *fakeMercadoPago) GetPreapproval(ctx context.Context, id string) (*billing.Preapproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.preapprovals[id]
	if !ok {
		return nil, &billing.ProviderError{Provider: "mercadopago", StatusCode: 404, Message: "The preapproval with id " + id + " does not exist"}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeMercadoPago) CreatePreapproval(ctx context.Context, req billing.PreapprovalRequest) (*billing.Preapproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.err != nil {
		return nil, f.err
	}
	return &billing.Preapproval{ID: "pre_new", Status: "pending", ExternalReference: req.ExternalReference,
		InitPoint: "https://www.mercadopago.com.br/subscriptions/checkout?preapproval_id=pre_new"}, nil
}

// nopAudit discards audit events.
type nopAudit struct{}

func (nopAudit) Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{}) {
}

// stripeGateway and mercadoPagoClient keep a nil fake from becoming a
// non-nil interface.
func stripeGateway(f *fakeStripe) billing.StripeGateway {
	if f == nil {
		return nil
	}
	return f
}

func mercadoPagoClient(f *fakeMercadoPago) billing.MercadoPagoClient {
	if f == nil {
		return nil
	}
	return f
}
