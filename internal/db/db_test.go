// Package db provides integration tests for the SurrealDB record store.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/spacefeed/spacefeed/internal/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testStore *Store
var testClient *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testClient, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}
	testStore = NewStore(testClient, nil)

	code := m.Run()

	_ = testClient.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()

	if err := testStore.EnsureCollection(ctx, "insert_test"); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}

	rec := models.RowRecord{URLID: "1001", InputURL: "http://example.com/a", Status: models.StatusPending}
	outcome, err := testStore.Insert(ctx, "insert_test", rec)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if outcome != models.OutcomeInserted {
		t.Errorf("Expected inserted outcome, got %v", outcome)
	}

	found, err := testStore.Find(ctx, "insert_test", "1001")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found.URLID != "1001" || found.InputURL != "http://example.com/a" {
		t.Errorf("Find returned wrong record: %+v", found)
	}
	if found.Status != models.StatusPending {
		t.Errorf("Expected status %q, got %q", models.StatusPending, found.Status)
	}
}

func TestInsertDuplicate(t *testing.T) {
	ctx := context.Background()

	if err := testStore.EnsureCollection(ctx, "dedup_test"); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}

	rec := models.RowRecord{URLID: "2001", InputURL: "http://example.com/b", Status: models.StatusPending}
	outcome, err := testStore.Insert(ctx, "dedup_test", rec)
	if err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if outcome != models.OutcomeInserted {
		t.Fatalf("Expected first insert outcome inserted, got %v", outcome)
	}

	// Same url_id with a different URL must be rejected by the unique index
	// and reported as a duplicate, not an error.
	dup := models.RowRecord{URLID: "2001", InputURL: "http://example.com/changed", Status: models.StatusPending}
	outcome, err = testStore.Insert(ctx, "dedup_test", dup)
	if err != nil {
		t.Fatalf("Duplicate insert should not error: %v", err)
	}
	if outcome != models.OutcomeDuplicate {
		t.Errorf("Expected duplicate outcome, got %v", outcome)
	}

	// The original document must be untouched.
	found, err := testStore.Find(ctx, "dedup_test", "2001")
	if err != nil {
		t.Fatalf("Find after duplicate failed: %v", err)
	}
	if found.InputURL != "http://example.com/b" {
		t.Errorf("Duplicate insert overwrote the record: %+v", found)
	}

	count, err := testStore.Count(ctx, "dedup_test")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 record after duplicate insert, got %d", count)
	}
}

func TestConcurrentDuplicateInserts(t *testing.T) {
	ctx := context.Background()

	if err := testStore.EnsureCollection(ctx, "race_test"); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}

	// All goroutines insert the same url_id; exactly one must win.
	const workers = 8
	results := make(chan models.Outcome, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			rec := models.RowRecord{
				URLID:    "3001",
				InputURL: fmt.Sprintf("http://example.com/worker-%d", n),
				Status:   models.StatusPending,
			}
			outcome, err := testStore.Insert(ctx, "race_test", rec)
			results <- outcome
			errs <- err
		}(i)
	}

	var inserted, duplicates int
	for i := 0; i < workers; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Concurrent insert failed: %v", err)
		}
		switch <-results {
		case models.OutcomeInserted:
			inserted++
		case models.OutcomeDuplicate:
			duplicates++
		}
	}

	if inserted != 1 {
		t.Errorf("Expected exactly 1 winning insert, got %d", inserted)
	}
	if duplicates != workers-1 {
		t.Errorf("Expected %d duplicates, got %d", workers-1, duplicates)
	}

	count, err := testStore.Count(ctx, "race_test")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 record, got %d", count)
	}
}

func TestFindMissing(t *testing.T) {
	ctx := context.Background()

	if err := testStore.EnsureCollection(ctx, "missing_test"); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}

	_, err := testStore.Find(ctx, "missing_test", "does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCountEmptyCollection(t *testing.T) {
	ctx := context.Background()

	if err := testStore.EnsureCollection(ctx, "empty_test"); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}

	count, err := testStore.Count(ctx, "empty_test")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 records, got %d", count)
	}
}

func TestEnsureCollectionIdempotent(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := testStore.EnsureCollection(ctx, "idempotent_test"); err != nil {
			t.Fatalf("EnsureCollection round %d failed: %v", i+1, err)
		}
	}
}

func TestValidateCollection(t *testing.T) {
	tests := []struct {
		name       string
		collection string
		wantErr    bool
	}{
		{"plain", "urls", false},
		{"underscores and digits", "batch_01", false},
		{"empty", "", true},
		{"dash", "my-urls", true},
		{"injection attempt", "urls; REMOVE TABLE urls", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCollection(tt.collection)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateCollection(%q) error = %v, wantErr %v", tt.collection, err, tt.wantErr)
			}
		})
	}
}
