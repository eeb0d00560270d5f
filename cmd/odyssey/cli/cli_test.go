package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-trade/jobs"
)

type failingReconciler struct{}

func (failingReconciler) Reconcile(context.Context) ([]inventory.Reconciliation, error) {
	return nil, errors.New("db down")
}

func newStockCLI(t *testing.T) (*StockCLI, *inventorytest.Store) {
	t.Helper()
	store := inventorytest.NewStore()
	cli, err := NewStockCLI(inventory.NewService(store, nil, nil, nil, nil))
	require.NoError(t, err)
	return cli, store
}

func TestReconcileCommandConsistent(t *testing.T) {
	cli, store := newStockCLI(t)
	store.Seed("A", 5, 0)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := cli.ReconcileCommand(context.Background(), ReconcileOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	var summary ReconcileSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Empty(t, summary.Drifted)
}

func TestReconcileCommandReportsDrift(t *testing.T) {
	cli, store := newStockCLI(t)
	p := store.Seed("B", 5, 0)
	store.Corrupt(p.ID, 8)

	stdout := new(bytes.Buffer)
	code := cli.ReconcileCommand(context.Background(), ReconcileOptions{JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 10, code)

	var summary ReconcileSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Len(t, summary.Drifted, 1)
	require.Equal(t, ReconcileDrift{ProductID: p.ID, SKU: "B", Counter: 8, Ledger: 5, Drift: 3}, summary.Drifted[0])

	stdout.Reset()
	code = cli.ReconcileCommand(context.Background(), ReconcileOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 10, code)
	require.Contains(t, stdout.String(), "1 product(s) drifted")
	require.Contains(t, stdout.String(), "+3")
}

func TestReconcileCommandFailure(t *testing.T) {
	cli, err := NewStockCLI(failingReconciler{})
	require.NoError(t, err)
	stderr := new(bytes.Buffer)
	code := cli.ReconcileCommand(context.Background(), ReconcileOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "db down")
}

func TestNewStockCLIRequiresReconciler(t *testing.T) {
	_, err := NewStockCLI(nil)
	require.Error(t, err)
}

func TestBuildTask(t *testing.T) {
	now := time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)
	for _, name := range []string{jobs.TaskLowStockCheck, jobs.TaskStockReconcile, jobs.TaskIdempotencyCleanup} {
		task, err := buildTask(name, now, 48*time.Hour)
		require.NoError(t, err, name)
		require.Equal(t, name, task.Type())
	}

	task, err := buildTask(jobs.TaskIdempotencyCleanup, now, 48*time.Hour)
	require.NoError(t, err)
	var payload jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, 48, payload.RetentionHours)

	_, err = buildTask("reports:unknown", now, time.Hour)
	require.ErrorContains(t, err, "unsupported job")
}

func TestJobsCLIRequiresClient(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskLowStockCheck)
	require.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	require.Error(t, err)

	_, err = NewJobsCLI("", time.Hour)
	require.Error(t, err)
}
