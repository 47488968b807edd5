package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"meikon/internal/pagination"
	"meikon/internal/services"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var commands = []subcommands.Command{
	&subscriptionsCmd{},
	&syncMercadoPagoCmd{},
	&stockAuditCmd{},
	&auditLogCmd{},
}

type subscriptionsCmd struct {
	page     int
	pageSize int
}

func (*subscriptionsCmd) Name() string     { return "subscriptions" }
func (*subscriptionsCmd) Synopsis() string { return "list subscriptions, most recently updated first" }
func (*subscriptionsCmd) Usage() string {
	return `subscriptions [-page N] [-page-size N]

  Prints one subscription per line with its plan, status and linked provider.
`
}

func (c *subscriptionsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.page, "page", 1, "Page number")
	f.IntVar(&c.pageSize, "page-size", 50, "Subscriptions per page (max 100)")
}

func (c *subscriptionsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	result, err := a.subscriptions.ListSubscriptions(pagination.PageRequest{Page: c.page, PageSize: c.pageSize})
	if err != nil {
		fmt.Fprintf(stderr, "Error listing subscriptions: %v\n", err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tPLAN\tSTATUS\tPROVIDER\tUPDATED")
	for _, sub := range result.Data {
		provider := string(sub.LinkedProvider())
		if provider == "" {
			provider = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", sub.UserID, sub.Plan, sub.Status, provider, sub.UpdatedAt.UTC().Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "page %d of %d (%d subscriptions)\n", result.Page, result.TotalPages, result.TotalItems)
	return subcommands.ExitSuccess
}

type syncMercadoPagoCmd struct {
	timeout time.Duration
}

func (*syncMercadoPagoCmd) Name() string { return "sync-mercadopago" }
func (*syncMercadoPagoCmd) Synopsis() string {
	return "re-fetch a MercadoPago preapproval and reconcile it"
}
func (*syncMercadoPagoCmd) Usage() string {
	return `sync-mercadopago [-timeout D] <preapproval-id>

  Runs the same reconciliation as a MercadoPago notification for one
  preapproval and prints the resulting subscription as JSON.
`
}

func (c *syncMercadoPagoCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.timeout, "timeout", 30*time.Second, "Overall deadline")
}

func (c *syncMercadoPagoCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: exactly one preapproval id is required.")
		return subcommands.ExitUsageError
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sub, err := a.subscriptions.SyncMercadoPagoPreapproval(ctx, f.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error syncing preapproval %s: %v\n", f.Arg(0), err)
		return subcommands.ExitFailure
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sub); err != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type stockAuditCmd struct {
	userID string
}

func (*stockAuditCmd) Name() string     { return "stock-audit" }
func (*stockAuditCmd) Synopsis() string { return "check product stock against the movement ledger" }
func (*stockAuditCmd) Usage() string {
	return `stock-audit [-user <user-id>]

  Compares every product's stock with its initial stock plus the sum of its
  stock movements. Exits non-zero when any product drifted.
`
}

func (c *stockAuditCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "user", "", "Only audit this user's products")
}

func (c *stockAuditCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	drift, err := a.stock.AuditStock(c.userID)
	if err != nil {
		fmt.Fprintf(stderr, "Error auditing stock: %v\n", err)
		return subcommands.ExitFailure
	}
	if len(drift) == 0 {
		fmt.Fprintln(stdout, "stock matches the ledger")
		return subcommands.ExitSuccess
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tUSER\tNAME\tSTOCK\tLEDGER")
	for _, d := range drift {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", d.ProductID, d.UserID, d.Name, d.Stock, d.LedgerStock)
	}
	_ = w.Flush()
	return subcommands.ExitFailure
}

type auditLogCmd struct {
	userID       string
	resourceType string
	resourceID   string
	limit        int
}

func (*auditLogCmd) Name() string     { return "audit-log" }
func (*auditLogCmd) Synopsis() string { return "show recent audit entries" }
func (*auditLogCmd) Usage() string {
	return `audit-log [-user <user-id>] [-resource <type>] [-id <resource-id>] [-limit N]

  Prints audit entries newest first.
`
}

func (c *auditLogCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "user", "", "Only this user's entries")
	f.StringVar(&c.resourceType, "resource", "", "Only entries for this resource type")
	f.StringVar(&c.resourceID, "id", "", "Only entries for this resource id")
	f.IntVar(&c.limit, "limit", 20, "Maximum entries to print (max 100)")
}

func (c *auditLogCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	filter := services.AuditFilter{UserID: c.userID, ResourceType: c.resourceType, ResourceID: c.resourceID}
	result, err := a.audit.ListAuditLogs(filter, pagination.PageRequest{Page: 1, PageSize: c.limit})
	if err != nil {
		fmt.Fprintf(stderr, "Error reading audit log: %v\n", err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tUSER\tACTION\tRESOURCE\tCHANGES")
	for _, e := range result.Data {
		changes := e.Changes
		if changes == "" {
			changes = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s/%s\t%s\n", e.CreatedAt.UTC().Format(time.RFC3339), e.UserID, e.Action, e.ResourceType, e.ResourceID, changes)
	}
	if err := w.Flush(); err != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
