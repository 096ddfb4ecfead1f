package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/db"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/kvb"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/orchestrator"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/scanner"
)

// testHandlers wires ScanHandlers against a real in-memory db and a
// miniredis-backed bus, skipping JWTProtected entirely: a stub middleware
// injects the owner directly into Locals("user"), exercising everything
// ResolveUser would hand the route without requiring a signed token.
func testHandlers(t *testing.T, scannerURL string) (*fiber.App, *ScanHandlers, *db.DatabaseConnection, *db.User) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := kvb.NewWithClient(client, time.Hour, time.Hour)

	database := db.NewForTesting()
	user, err := database.GetOrCreateUserByExternalID("api-test-user", "API Test User", "api@example.com")
	require.NoError(t, err)

	scannerClient := scanner.New(scanner.Config{BaseURL: scannerURL, CallbackURL: "http://localhost/hook", ConnectTimeout: 2 * time.Second})
	orch := orchestrator.New(database, bus, scannerClient, nil)
	h := NewScanHandlers(database, bus, orch)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", user)
		return c.Next()
	})

	scans := app.Group("/api/v1/scans")
	scans.Post("/start", h.StartScan)
	scans.Get("/", h.ListScans)
	scans.Post("/bulk-delete", h.BulkDeleteScans)
	scans.Get("/:uuid", h.GetScan)
	scans.Get("/:uuid/status", h.GetScanStatus)
	scans.Get("/:uuid/findings", h.GetFindings)
	scans.Delete("/:uuid", h.DeleteScan)
	scans.Post("/:uuid/report", h.CreateReport)
	app.Post("/api/v1/scans/hook", h.Webhook)

	return app, h, database, user
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestStartScanHandlerRejectsEmptyTargets(t *testing.T) {
	app, _, _, _ := testHandlers(t, "http://127.0.0.1:1")

	resp := doJSON(t, app, http.MethodPost, "/api/v1/scans/start", StartScanInput{Targets: nil, Type: "default"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestStartScanHandlerHappyPath(t *testing.T) {
	scannerServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer scannerServer.Close()

	app, _, database, _ := testHandlers(t, scannerServer.URL)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/scans/start", StartScanInput{Targets: []string{"example.com"}, Type: "default"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out StartScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEqual(t, uuid.Nil, out.ScanUUID)

	scan, err := database.GetScanByUUID(out.ScanUUID)
	require.NoError(t, err)
	assert.Equal(t, db.ScanStatusPending, scan.Status)
}

func TestGetScanNotOwnedReturnsForbidden(t *testing.T) {
	app, _, database, _ := testHandlers(t, "http://127.0.0.1:1")

	other, err := database.GetOrCreateUserByExternalID("someone-else", "Someone Else", "other@example.com")
	require.NoError(t, err)
	targets, err := database.GetOrCreateTargets(other.ID, []string{"example.com"})
	require.NoError(t, err)
	scan := &db.Scan{UUID: uuid.New(), OwnerUserID: other.ID, Name: "Assessment no. 1", Type: db.ScanTypeDefault, Status: db.ScanStatusPending, Targets: targets}
	_, err = database.CreateScan(scan)
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/scans/"+scan.UUID.String(), nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestGetScanUnknownUUIDReturnsNotFound(t *testing.T) {
	app, _, _, _ := testHandlers(t, "http://127.0.0.1:1")

	resp := doJSON(t, app, http.MethodGet, "/api/v1/scans/"+uuid.New().String(), nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestDeleteScanRefusesWhilePending(t *testing.T) {
	app, _, database, user := testHandlers(t, "http://127.0.0.1:1")

	targets, err := database.GetOrCreateTargets(user.ID, []string{"example.com"})
	require.NoError(t, err)
	scan := &db.Scan{UUID: uuid.New(), OwnerUserID: user.ID, Name: "Assessment no. 1", Type: db.ScanTypeDefault, Status: db.ScanStatusPending, Targets: targets}
	_, err = database.CreateScan(scan)
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodDelete, "/api/v1/scans/"+scan.UUID.String(), nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestListScansReturnsOnlyOwnedScans(t *testing.T) {
	app, _, database, user := testHandlers(t, "http://127.0.0.1:1")

	targets, err := database.GetOrCreateTargets(user.ID, []string{"example.com"})
	require.NoError(t, err)
	_, err = database.CreateScan(&db.Scan{UUID: uuid.New(), OwnerUserID: user.ID, Name: "Assessment no. 1", Type: db.ScanTypeDefault, Status: db.ScanStatusPending, Targets: targets})
	require.NoError(t, err)

	other, err := database.GetOrCreateUserByExternalID("other-lister", "Other", "other2@example.com")
	require.NoError(t, err)
	otherTargets, err := database.GetOrCreateTargets(other.ID, []string{"other.example.com"})
	require.NoError(t, err)
	_, err = database.CreateScan(&db.Scan{UUID: uuid.New(), OwnerUserID: other.ID, Name: "Assessment no. 1", Type: db.ScanTypeDefault, Status: db.ScanStatusPending, Targets: otherTargets})
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/scans/", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out []ScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out, 1)
}

func TestWebhookAlwaysReturns200(t *testing.T) {
	app, _, _, _ := testHandlers(t, "http://127.0.0.1:1")

	resp := doJSON(t, app, http.MethodPost, "/api/v1/scans/hook", WebhookRequest{ScanID: "", Status: ""})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp2 := doJSON(t, app, http.MethodPost, "/api/v1/scans/hook", WebhookRequest{ScanID: uuid.New().String(), Status: "running"})
	assert.Equal(t, fiber.StatusOK, resp2.StatusCode)
}

func TestGetFindingsEmptyScanReturnsEmptyArray(t *testing.T) {
	app, _, database, user := testHandlers(t, "http://127.0.0.1:1")

	targets, err := database.GetOrCreateTargets(user.ID, []string{"example.com"})
	require.NoError(t, err)
	scan := &db.Scan{UUID: uuid.New(), OwnerUserID: user.ID, Name: "Assessment no. 1", Type: db.ScanTypeDefault, Status: db.ScanStatusCompleted, Targets: targets}
	_, err = database.CreateScan(scan)
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/scans/"+scan.UUID.String()+"/findings", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out []FindingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out, 0)
}
