package api

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/db"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/lib/errs"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/kvb"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/orchestrator"
)

var validate = validator.New()

// ScanHandlers groups the REST routes of §6.1 plus the supplemented
// features of SPEC_FULL.md §5. Collaborators are constructor-injected
// (§9's "no module-level initialization" note) rather than reached for as
// globals, the way the teacher's handlers reach for db.Connection().
type ScanHandlers struct {
	db           *db.DatabaseConnection
	bus          *kvb.Bus
	orchestrator *orchestrator.Orchestrator
}

func NewScanHandlers(database *db.DatabaseConnection, bus *kvb.Bus, o *orchestrator.Orchestrator) *ScanHandlers {
	return &ScanHandlers{db: database, bus: bus, orchestrator: o}
}

// StartScan handles POST /api/v1/scans/start (§4.2, §6.1).
func (h *ScanHandlers) StartScan(c *fiber.Ctx) error {
	user := currentUser(c)

	var input StartScanInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(NewErrorResponse("invalid_request", "malformed body"))
	}
	if err := validate.Struct(input); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(NewErrorResponse("invalid_request", err.Error()))
	}

	scanUUID, err := h.orchestrator.StartScan(c.Context(), user, orchestrator.StartScanRequest{
		Targets:     input.Targets,
		Type:        input.Type,
		ScanOptions: input.ScanOptions,
	})
	if err != nil {
		return writeErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(StartScanResponse{ScanUUID: scanUUID})
}

// GetScan handles GET /api/v1/scans/:uuid (§6.1): fetch scan plus a live
// progress reading from the KVB when the scan is still non-terminal.
func (h *ScanHandlers) GetScan(c *fiber.Ctx) error {
	scan, err := h.loadOwnedScan(c)
	if err != nil {
		return writeErr(c, err)
	}

	var progress *string
	if !scan.IsTerminal() {
		if p, err := h.bus.GetProgress(c.Context(), scan.UUID.String()); err == nil && p != "" {
			progress = &p
		}
	}

	return c.Status(fiber.StatusOK).JSON(scanToResponse(scan, progress))
}

// GetScanStatus handles GET /api/v1/scans/:uuid/status.
func (h *ScanHandlers) GetScanStatus(c *fiber.Ctx) error {
	scan, err := h.loadOwnedScan(c)
	if err != nil {
		return writeErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(ScanStatusResponse{Status: string(scan.Status)})
}

// GetFindings handles GET /api/v1/scans/:uuid/findings.
func (h *ScanHandlers) GetFindings(c *fiber.Ctx) error {
	scan, err := h.loadOwnedScan(c)
	if err != nil {
		return writeErr(c, err)
	}

	findings, err := h.db.ListFindingsByScan(scan.UUID)
	if err != nil {
		return writeErr(c, errs.Wrap(errs.UpstreamUnavailable, "list findings", err))
	}

	out := make([]FindingResponse, 0, len(findings))
	for _, f := range findings {
		out = append(out, findingToResponse(f))
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// Webhook handles POST /api/v1/scans/hook — the external scanner's callback
// (§6.1, §6.4). It always returns 200; errors ride in the body so the
// scanner never retries by accident (§7).
func (h *ScanHandlers) Webhook(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	var body WebhookRequest
	if err := c.BodyParser(&body); err != nil {
		log.Warn().Err(err).Msg("webhook: unparseable body")
		return c.Status(fiber.StatusOK).JSON(NewErrorResponse("parse_error", "unparseable body"))
	}
	if body.ScanID == "" || body.Status == "" {
		return c.Status(fiber.StatusOK).JSON(NewErrorResponse("invalid_request", "scan_id and status required"))
	}

	if err := h.bus.SetScanState(ctx, body.ScanID, kvb.ScanState{Status: body.Status}); err != nil {
		log.Error().Err(err).Str("scan_id", body.ScanID).Msg("webhook: failed to update KVB state")
		return c.Status(fiber.StatusOK).JSON(NewErrorResponse("upstream_unavailable", "failed to record status"))
	}

	return c.Status(fiber.StatusOK).JSON(SuccessResponse{Message: "ok"})
}

// ListScans handles GET /api/v1/scans — the supplemented list-for-current-
// user endpoint (SPEC_FULL.md §5.4).
func (h *ScanHandlers) ListScans(c *fiber.Ctx) error {
	user := currentUser(c)
	pagination := db.Pagination{Page: c.QueryInt("page", 1), PageSize: c.QueryInt("page_size", 25)}

	scans, _, err := h.db.ListScans(db.ScanFilter{OwnerUserID: user.ID, Pagination: pagination})
	if err != nil {
		return writeErr(c, errs.Wrap(errs.UpstreamUnavailable, "list scans", err))
	}

	out := make([]ScanResponse, 0, len(scans))
	for _, scan := range scans {
		out = append(out, scanToResponse(scan, nil))
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// DeleteScan handles DELETE /api/v1/scans/:uuid — refuses while the scan is
// pending or running (SPEC_FULL.md §5.1, grounded on original_source's
// delete_scan route).
func (h *ScanHandlers) DeleteScan(c *fiber.Ctx) error {
	scan, err := h.loadOwnedScan(c)
	if err != nil {
		return writeErr(c, err)
	}
	if err := h.db.DeleteScan(scan.UUID); err != nil {
		return writeErr(c, errs.Wrap(errs.InvalidRequest, err.Error(), err))
	}
	return c.Status(fiber.StatusOK).JSON(SuccessResponse{Message: "scan deleted"})
}

// BulkDeleteScans handles POST /api/v1/scans/bulk-delete (SPEC_FULL.md §5.2).
func (h *ScanHandlers) BulkDeleteScans(c *fiber.Ctx) error {
	user := currentUser(c)

	var body BulkDeleteRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(NewErrorResponse("invalid_request", "malformed body"))
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(NewErrorResponse("invalid_request", err.Error()))
	}

	var failures []string
	for _, id := range body.ScanUUIDs {
		scan, err := h.db.GetScanByUUID(id)
		if err != nil || scan.OwnerUserID != user.ID {
			failures = append(failures, id.String())
			continue
		}
		if err := h.db.DeleteScan(id); err != nil {
			failures = append(failures, id.String())
		}
	}

	if len(failures) > 0 {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "partial delete", "failed": failures})
	}
	return c.Status(fiber.StatusOK).JSON(SuccessResponse{Message: "scans deleted"})
}

// CreateReport handles POST /api/v1/scans/:uuid/report — a report-generation
// stub (SPEC_FULL.md §5.3); rendering itself is a Non-goal.
func (h *ScanHandlers) CreateReport(c *fiber.Ctx) error {
	scan, err := h.loadOwnedScan(c)
	if err != nil {
		return writeErr(c, err)
	}

	var body ReportRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(NewErrorResponse("invalid_request", "malformed body"))
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(NewErrorResponse("invalid_request", err.Error()))
	}

	report, err := h.db.CreateReport(scan.UUID, body.Name, db.ReportType(body.Type))
	if err != nil {
		return writeErr(c, errs.Wrap(errs.InvalidRequest, err.Error(), err))
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

// loadOwnedScan resolves the :uuid route param and enforces ownership,
// the per-resource check named in §6.1's authorization note.
func (h *ScanHandlers) loadOwnedScan(c *fiber.Ctx) (*db.Scan, error) {
	user := currentUser(c)

	id, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return nil, errs.New(errs.InvalidRequest, "malformed scan uuid")
	}

	scan, err := h.db.GetScanByUUID(id)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "scan not found", err)
	}
	if scan.OwnerUserID != user.ID {
		return nil, errs.New(errs.Forbidden, "not the scan owner")
	}
	return scan, nil
}

// writeErr maps a *errs.Error (or any error) to the HTTP status its Kind
// implies — the one place this mapping happens, per SPEC_FULL.md §2.3.
func writeErr(c *fiber.Ctx, err error) error {
	kind := errs.KindOf(err)
	status := fiber.StatusInternalServerError
	switch kind {
	case errs.InvalidRequest:
		status = fiber.StatusUnprocessableEntity
	case errs.Unauthorized:
		status = fiber.StatusUnauthorized
	case errs.Forbidden:
		status = fiber.StatusForbidden
	case errs.NotFound:
		status = fiber.StatusNotFound
	case errs.UpstreamUnavailable:
		status = fiber.StatusServiceUnavailable
	case errs.ParseError:
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(NewErrorResponse(string(kind), err.Error()))
}
