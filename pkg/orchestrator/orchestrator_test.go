package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/db"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/kvb"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/scanner"
)

// kvbTestBus builds a Bus backed by a running miniredis instance so
// SetScanState calls the Orchestrator makes don't error out.
func kvbTestBus(t *testing.T) *kvb.Bus {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return kvb.NewWithClient(client, time.Hour, time.Hour)
}

func newTestOrchestrator(t *testing.T, scannerURL string, watch WatchFunc) (*Orchestrator, *db.DatabaseConnection) {
	t.Helper()
	database := db.NewForTesting()
	client := scanner.New(scanner.Config{BaseURL: scannerURL, CallbackURL: "http://localhost/hook", ConnectTimeout: 2 * time.Second})
	return New(database, kvbTestBus(t), client, watch), database
}

func TestStartScanRejectsEmptyTargets(t *testing.T) {
	orch, db2 := newTestOrchestrator(t, "http://127.0.0.1:1", nil)
	owner := createTestUser(t, db2)

	_, err := orch.StartScan(context.Background(), owner, StartScanRequest{Targets: nil, Type: "default"})
	require.Error(t, err)
}

func TestStartScanRejectsUnknownType(t *testing.T) {
	orch, db2 := newTestOrchestrator(t, "http://127.0.0.1:1", nil)
	owner := createTestUser(t, db2)

	_, err := orch.StartScan(context.Background(), owner, StartScanRequest{Targets: []string{"example.com"}, Type: "bogus"})
	require.Error(t, err)
}

func TestStartScanHappyPathSpawnsWatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	watched := make(chan uuid.UUID, 1)
	orch, db2 := newTestOrchestrator(t, server.URL, func(id uuid.UUID) { watched <- id })
	owner := createTestUser(t, db2)

	scanID, err := orch.StartScan(context.Background(), owner, StartScanRequest{Targets: []string{"example.com"}, Type: "default"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, scanID)

	scan, err := db2.GetScanByUUID(scanID)
	require.NoError(t, err)
	assert.Equal(t, db.ScanStatusPending, scan.Status)

	select {
	case got := <-watched:
		assert.Equal(t, scanID, got)
	case <-time.After(time.Second):
		t.Fatal("watch was never invoked")
	}
}

func TestStartScanMarksFailedOnSubmitError(t *testing.T) {
	orch, db2 := newTestOrchestrator(t, "http://127.0.0.1:1", nil)
	owner := createTestUser(t, db2)

	scanID, err := orch.StartScan(context.Background(), owner, StartScanRequest{Targets: []string{"example.com"}, Type: "default"})
	require.NoError(t, err, "submit errors do not propagate to the caller")
	assert.NotEqual(t, uuid.Nil, scanID)

	scan, err := db2.GetScanByUUID(scanID)
	require.NoError(t, err)
	assert.Equal(t, db.ScanStatusFailed, scan.Status)
}

func createTestUser(t *testing.T, database *db.DatabaseConnection) *db.User {
	t.Helper()
	user, err := database.GetOrCreateUserByExternalID("user-"+uuid.New().String(), "Test User", "test@example.com")
	require.NoError(t, err)
	return user
}
