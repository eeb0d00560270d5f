package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
)

// Reconciler lists products whose stock counter disagrees with the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Reconciliation, error)
}

// StockCLI offers operational helpers around the stock ledger.
type StockCLI struct {
	reconciler Reconciler
}

// NewStockCLI constructs the helper.
func NewStockCLI(reconciler Reconciler) (*StockCLI, error) {
	if reconciler == nil {
		return nil, errors.New("stock cli: reconciler required")
	}
	return &StockCLI{reconciler: reconciler}, nil
}

// ReconcileOptions defines flags for the reconcile command.
type ReconcileOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary is the JSON output of the reconcile command.
type ReconcileSummary struct {
	OK      bool             `json:"ok"`
	Drifted []ReconcileDrift `json:"drifted"`
}

// ReconcileDrift reports a single product out of step with its ledger.
type ReconcileDrift struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Counter   int64  `json:"counter"`
	Ledger    int64  `json:"ledger"`
	Drift     int64  `json:"drift"`
}

// ReconcileCommand compares every product counter with its ledger. It exits 10
// when drift is found so cron wrappers can alert on it.
func (c *StockCLI) ReconcileCommand(ctx context.Context, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	rows, err := c.reconciler.Reconcile(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "stock reconcile: %v\n", err)
		return 1
	}
	summary := buildReconcileSummary(rows)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "stock reconcile: encode json: %v\n", err)
			return 1
		}
	} else {
		renderReconcileHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func buildReconcileSummary(rows []inventory.Reconciliation) ReconcileSummary {
	summary := ReconcileSummary{OK: len(rows) == 0, Drifted: make([]ReconcileDrift, 0, len(rows))}
	for _, row := range rows {
		summary.Drifted = append(summary.Drifted, ReconcileDrift{
			ProductID: row.ProductID,
			SKU:       row.SKU,
			Counter:   row.CurrentStock,
			Ledger:    row.Expected(),
			Drift:     row.Drift(),
		})
	}
	return summary
}

func renderReconcileHuman(w io.Writer, summary ReconcileSummary) {
	if summary.OK {
		_, _ = fmt.Fprintln(w, "stock ledger consistent")
		return
	}
	_, _ = fmt.Fprintf(w, "%d product(s) drifted from the ledger\n", len(summary.Drifted))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSKU\tCOUNTER\tLEDGER\tDRIFT")
	for _, d := range summary.Drifted {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%+d\n", d.ProductID, d.SKU, d.Counter, d.Ledger, d.Drift)
	}
	_ = tw.Flush()
}
