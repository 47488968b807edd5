package main

import (
	"fmt"

	"gorm.io/gorm"

	"meikon/internal/billing"
	"meikon/internal/config"
	"meikon/internal/database"
	"meikon/internal/services"
)

// app is what a command needs: the services over an open database.
type app struct {
	subscriptions services.SubscriptionServicer
	stock         services.StockAuditor
	audit         services.AuditReader
	close         func()
}

// openApp connects to the configured database. Tests replace it.
var openApp = func() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	dbManager, err := database.NewManager(database.NewConfig(cfg))
	if err != nil {
		return nil, err
	}

	stripe, mp := billing.NewProviders(cfg)
	a := newApp(dbManager.DB(), stripe, mp)
	a.close = func() { _ = dbManager.Close() }
	return a, nil
}

func newApp(db *gorm.DB, stripe billing.StripeGateway, mp billing.MercadoPagoClient) *app {
	return &app{
		subscriptions: services.NewSubscriptionService(db, stripe, mp, services.NewAuditService(db)),
		stock:         services.NewStockAuditor(db),
		audit:         services.NewAuditReader(db),
		close:         func() {},
	}
}
