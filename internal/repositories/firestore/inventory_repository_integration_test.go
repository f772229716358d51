//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/ordermesh/api/internal/domain"
	pconfig "github.com/ordermesh/api/internal/platform/config"
	pfirestore "github.com/ordermesh/api/internal/platform/firestore"
	"github.com/ordermesh/api/internal/repositories"
)

func newInventoryIntegrationRepo(t *testing.T, projectID string) *InventoryRepository {
	t.Helper()

	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    projectID,
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewInventoryRepository(provider)
	if err != nil {
		t.Fatalf("new inventory repository: %v", err)
	}
	return repo
}

func seedStock(t *testing.T, repo *InventoryRepository, ctx context.Context, key domain.InventoryKey, total int, now time.Time) {
	t.Helper()
	client, err := repo.provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}
	_, err = client.Collection(supplierStockCollection).Doc(stockDocID(key)).Set(ctx, map[string]any{
		"storeId":    key.StoreID,
		"supplierId": key.SupplierID,
		"variantId":  key.VariantID,
		"total":      total,
		"reserved":   0,
		"available":  total,
		"updatedAt":  now,
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func TestInventoryRepositoryIntegration(t *testing.T) {
	repo := newInventoryIntegrationRepo(t, "inventory-test")

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	key := domain.InventoryKey{StoreID: "store-1", SupplierID: "sup-1", VariantID: "var-1"}
	seedStock(t, repo, ctx, key, 5, now)

	line := repositories.InventoryReserveLine{
		ResellerProductID: "rp-1",
		ProductID:         "prod-1",
		VariantID:         "var-1",
		SupplierID:        "sup-1",
		Quantity:          3,
	}

	held, err := repo.Reserve(ctx, repositories.InventoryReserveRequest{
		StoreID:   "store-1",
		CartID:    "cart-1",
		Payment:   domain.PaymentMethodCard,
		Lines:     []repositories.InventoryReserveLine{line},
		ExpiresAt: now.Add(15 * time.Minute),
		Now:       now,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(held.Reservations) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(held.Reservations))
	}
	if held.Reservations[0].Status != domain.ReservationStatusReserved {
		t.Fatalf("expected reserved status, got %s", held.Reservations[0].Status)
	}
	stock, ok := held.Stocks[key]
	if !ok {
		t.Fatalf("reserve result missing stock for %v", key)
	}
	if stock.Reserved != 3 || stock.Available != 2 {
		t.Fatalf("unexpected stock after reserve: %+v", stock)
	}

	var invErr *repositories.InventoryError

	// The same cart line cannot hold twice while the first hold is active.
	_, err = repo.Reserve(ctx, repositories.InventoryReserveRequest{
		StoreID:   "store-1",
		CartID:    "cart-1",
		Payment:   domain.PaymentMethodCard,
		Lines:     []repositories.InventoryReserveLine{line},
		ExpiresAt: now.Add(15 * time.Minute),
		Now:       now.Add(time.Second),
	})
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorReservationActive {
		t.Fatalf("expected active reservation rejection, got %v", err)
	}

	// Only two units remain; a three-unit hold is rejected without touching stock.
	invErr = nil
	_, err = repo.Reserve(ctx, repositories.InventoryReserveRequest{
		StoreID:   "store-1",
		CartID:    "cart-2",
		Payment:   domain.PaymentMethodCard,
		Lines:     []repositories.InventoryReserveLine{line},
		ExpiresAt: now.Add(15 * time.Minute),
		Now:       now,
	})
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	current, err := repo.GetStock(ctx, key)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if current.Reserved != 3 || current.Available != 2 {
		t.Fatalf("failed reserve must not change stock: %+v", current)
	}

	// Confirm binds the order and flips the hold; the stock stays reserved.
	resID := held.Reservations[0].ID
	err = repo.ConfirmReservations(ctx, repositories.InventoryConfirmRequest{
		ReservationIDs: []string{resID},
		OrderID:        "ord_1",
		Now:            now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	confirmed, err := repo.GetReservations(ctx, []string{resID})
	if err != nil {
		t.Fatalf("get reservations: %v", err)
	}
	if confirmed[0].Status != domain.ReservationStatusConfirmed {
		t.Fatalf("expected confirmed status, got %s", confirmed[0].Status)
	}
	if confirmed[0].OrderID == nil || *confirmed[0].OrderID != "ord_1" {
		t.Fatalf("expected order bound to hold, got %v", confirmed[0].OrderID)
	}

	// Releasing a confirmed hold is a no-op skip, not an error.
	releaseResult, err := repo.Release(ctx, repositories.InventoryReleaseRequest{
		ReservationIDs: []string{resID},
		Reason:         "commit_failed",
		Now:            now.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("release confirmed: %v", err)
	}
	if len(releaseResult.Released) != 0 {
		t.Fatalf("confirmed hold must not be released, got %+v", releaseResult.Released)
	}

	// Taking the remaining two units marks the row depleted.
	shortLine := line
	shortLine.Quantity = 2
	depletedHold, err := repo.Reserve(ctx, repositories.InventoryReserveRequest{
		StoreID:   "store-1",
		CartID:    "cart-3",
		Payment:   domain.PaymentMethodCard,
		Lines:     []repositories.InventoryReserveLine{shortLine},
		ExpiresAt: now.Add(15 * time.Minute),
		Now:       now,
	})
	if err != nil {
		t.Fatalf("reserve remaining: %v", err)
	}
	if len(depletedHold.Depleted) != 1 || depletedHold.Depleted[0] != key {
		t.Fatalf("expected depleted key reported, got %+v", depletedHold.Depleted)
	}

	// Releasing the reserved hold restores availability.
	releaseResult, err = repo.Release(ctx, repositories.InventoryReleaseRequest{
		ReservationIDs: []string{depletedHold.Reservations[0].ID},
		Reason:         "commit_failed",
		Now:            now.Add(3 * time.Minute),
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(releaseResult.Released) != 1 || releaseResult.Released[0].Status != domain.ReservationStatusReleased {
		t.Fatalf("expected released hold, got %+v", releaseResult.Released)
	}
	if stock := releaseResult.Stocks[key]; stock.Reserved != 3 || stock.Available != 2 {
		t.Fatalf("unexpected stock after release: %+v", stock)
	}

	// A lapsed hold is swept back to availability; the confirmed one is untouched.
	lapsedLine := line
	lapsedLine.Quantity = 1
	lapsed, err := repo.Reserve(ctx, repositories.InventoryReserveRequest{
		StoreID:   "store-1",
		CartID:    "cart-4",
		Payment:   domain.PaymentMethodCard,
		Lines:     []repositories.InventoryReserveLine{lapsedLine},
		ExpiresAt: now.Add(-time.Minute),
		Now:       now,
	})
	if err != nil {
		t.Fatalf("reserve lapsed: %v", err)
	}
	sweep, err := repo.ExpireDue(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if sweep.Expired != 1 {
		t.Fatalf("expected 1 expired hold, got %+v", sweep)
	}
	expired, err := repo.GetReservations(ctx, []string{lapsed.Reservations[0].ID})
	if err != nil {
		t.Fatalf("get expired reservation: %v", err)
	}
	if expired[0].Status != domain.ReservationStatusExpired {
		t.Fatalf("expected expired status, got %s", expired[0].Status)
	}
	current, err = repo.GetStock(ctx, key)
	if err != nil {
		t.Fatalf("get stock after sweep: %v", err)
	}
	if current.Reserved != 3 || current.Available != 2 {
		t.Fatalf("sweep must restore the lapsed quantity: %+v", current)
	}
}

func TestInventoryRepositoryConcurrentReserveIntegration(t *testing.T) {
	repo := newInventoryIntegrationRepo(t, "inventory-race-test")

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)

	// Many concurrent single-unit holds never oversell the row.
	key := domain.InventoryKey{StoreID: "store-1", SupplierID: "sup-1", VariantID: "var-9"}
	seedStock(t, repo, ctx, key, 5, now)

	const workers = 8
	outcomes := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			_, err := repo.Reserve(ctx, repositories.InventoryReserveRequest{
				StoreID: "store-1",
				CartID:  fmt.Sprintf("cart-%d", idx),
				Payment: domain.PaymentMethodCard,
				Lines: []repositories.InventoryReserveLine{{
					ResellerProductID: "rp-9",
					ProductID:         "prod-9",
					VariantID:         "var-9",
					SupplierID:        "sup-1",
					Quantity:          1,
				}},
				ExpiresAt: now.Add(15 * time.Minute),
				Now:       now,
			})
			outcomes[idx] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for idx, err := range outcomes {
		if err == nil {
			succeeded++
			continue
		}
		var invErr *repositories.InventoryError
		if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
			t.Fatalf("worker %d: expected insufficient stock, got %v", idx, err)
		}
	}
	if succeeded != 5 {
		t.Fatalf("expected exactly 5 holds, got %d", succeeded)
	}
	stock, err := repo.GetStock(ctx, key)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if stock.Reserved != 5 || stock.Available != 0 {
		t.Fatalf("oversold stock row: %+v", stock)
	}

	// Two carts racing for the last unit produce exactly one hold.
	lastKey := domain.InventoryKey{StoreID: "store-1", SupplierID: "sup-1", VariantID: "var-last"}
	seedStock(t, repo, ctx, lastKey, 1, now)

	raceErrs := make([]error, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(idx int) {
			defer wg.Done()
			_, err := repo.Reserve(ctx, repositories.InventoryReserveRequest{
				StoreID: "store-1",
				CartID:  fmt.Sprintf("race-%d", idx),
				Payment: domain.PaymentMethodCard,
				Lines: []repositories.InventoryReserveLine{{
					ResellerProductID: "rp-last",
					ProductID:         "prod-last",
					VariantID:         "var-last",
					SupplierID:        "sup-1",
					Quantity:          1,
				}},
				ExpiresAt: now.Add(15 * time.Minute),
				Now:       now,
			})
			raceErrs[idx] = err
		}(i)
	}
	wg.Wait()

	winners := 0
	for idx, err := range raceErrs {
		if err == nil {
			winners++
			continue
		}
		var invErr *repositories.InventoryError
		if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
			t.Fatalf("racer %d: expected insufficient stock, got %v", idx, err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner for the last unit, got %d", winners)
	}
	stock, err = repo.GetStock(ctx, lastKey)
	if err != nil {
		t.Fatalf("get last-unit stock: %v", err)
	}
	if stock.Reserved != 1 || stock.Available != 0 {
		t.Fatalf("last unit must be held exactly once: %+v", stock)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
