package billing

import (
	"net/http"

	"meikon/internal/config"
)

// NewProviders builds the provider clients enabled by cfg. A provider whose
// credentials are missing is returned as a nil interface, which the services
// report as PROVIDER_NOT_CONFIGURED.
func NewProviders(cfg *config.Config) (StripeGateway, MercadoPagoClient) {
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}

	var stripe StripeGateway
	if cfg.Stripe.SecretKey != "" {
		stripe = NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, httpClient)
	}

	var mp MercadoPagoClient
	if cfg.MercadoPago.AccessToken != "" {
		mp = NewMercadoPagoClient(cfg.MercadoPago.BaseURL, cfg.MercadoPago.AccessToken, httpClient)
	}
	return stripe, mp
}
