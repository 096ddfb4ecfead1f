// Package orchestrator implements the Scan Orchestrator (§4.2): the intake
// endpoint's business logic. It normalizes targets, resolves Target rows,
// creates the Scan row, seeds the Key-Value Bus, dispatches to the external
// scanner, and spawns a Watcher — all before returning to the caller.
//
// Grounded on original_source/webserver/app/api/routes/scan.py's
// create_scan_entry / start_openfaas_job / get_or_create_targets, restructured
// the way api/scans.go composes validate -> db.Connection().CreateScan in the
// teacher, one Go function per original helper.
package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/db"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/lib/errs"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/kvb"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/normalizer"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/scanner"
)

// StartScanRequest is the Orchestrator's input (§4.2, §6.1's POST body).
type StartScanRequest struct {
	Targets     []string               `json:"targets" validate:"required,min=1"`
	Type        string                 `json:"type" validate:"required"`
	ScanOptions map[string]interface{} `json:"scan_options,omitempty"`
}

// WatchFunc launches a Watcher keyed by scan UUID. The Orchestrator does not
// import pkg/watcher; this func is injected by the caller (api/server.go
// wiring) the way the teacher injects its background tasks, and keeps both
// packages free of the other's import.
type WatchFunc func(scanID uuid.UUID)

// Orchestrator owns the collaborators needed to start a scan.
type Orchestrator struct {
	db      *db.DatabaseConnection
	bus     *kvb.Bus
	scanner *scanner.Client
	watch   WatchFunc
}

func New(database *db.DatabaseConnection, bus *kvb.Bus, scannerClient *scanner.Client, watch WatchFunc) *Orchestrator {
	return &Orchestrator{db: database, bus: bus, scanner: scannerClient, watch: watch}
}

// StartScan implements §4.2's nine steps. On external-submission failure the
// scan is still returned — marked failed — matching §7's propagation policy:
// "Orchestrator treats UpstreamUnavailable on scanner submit as scan-level
// failed... 200 still returned with the UUID".
func (o *Orchestrator) StartScan(ctx context.Context, owner *db.User, req StartScanRequest) (uuid.UUID, error) {
	if len(req.Targets) == 0 {
		return uuid.Nil, errs.New(errs.InvalidRequest, "targets must not be empty")
	}
	if !db.ValidScanType(req.Type) {
		return uuid.Nil, errs.New(errs.InvalidRequest, "unknown scan type: "+req.Type)
	}

	// 1. Normalize.
	cleaned := normalizer.Normalize(req.Targets)
	if len(cleaned) == 0 {
		return uuid.Nil, errs.New(errs.InvalidRequest, "no valid targets after normalization")
	}

	// 2. Resolve or create Target rows.
	targets, err := o.db.GetOrCreateTargets(owner.ID, cleaned)
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.UpstreamUnavailable, "resolve targets", err)
	}

	// 3. Generate a fresh scan UUID.
	scanUUID := uuid.New()

	// 4. Compose a display name.
	name, err := o.db.NextDisplayName(owner.ID)
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.UpstreamUnavailable, "compose scan name", err)
	}

	// 5. Insert the pending Scan row, associated to all resolved targets.
	scan := &db.Scan{
		UUID:        scanUUID,
		OwnerUserID: owner.ID,
		Name:        name,
		Type:        db.ScanType(req.Type),
		Status:      db.ScanStatusPending,
		Parameters:  req.ScanOptions,
		Targets:     targets,
	}
	if _, err := o.db.CreateScan(scan); err != nil {
		return uuid.Nil, errs.Wrap(errs.UpstreamUnavailable, "create scan row", err)
	}

	// 6. Seed KVB with the pending state.
	if err := o.bus.SetScanState(ctx, scanUUID.String(), kvb.ScanState{Status: string(db.ScanStatusPending)}); err != nil {
		log.Error().Err(err).Str("scan_uuid", scanUUID.String()).Msg("Failed to seed KVB scan state")
	}

	// 7. Submit to the external scanner.
	submitErr := o.scanner.Submit(ctx, scanner.SubmitRequest{
		Targets:     cleaned,
		ScanType:    req.Type,
		ScanID:      scanUUID.String(),
		ScanOptions: req.ScanOptions,
	})
	if submitErr != nil {
		log.Error().Err(submitErr).Str("scan_uuid", scanUUID.String()).Msg("External scanner submission failed")
		if err := o.bus.SetScanState(ctx, scanUUID.String(), kvb.ScanState{Status: string(db.ScanStatusFailed)}); err != nil {
			log.Error().Err(err).Str("scan_uuid", scanUUID.String()).Msg("Failed to mark KVB scan state failed")
		}
		if _, err := o.db.TransitionStatus(scanUUID, db.ScanStatusFailed); err != nil {
			log.Error().Err(err).Str("scan_uuid", scanUUID.String()).Msg("Failed to mark scan row failed")
		}
		// 9. Return the UUID regardless — the client learns of the failure
		// via status, not via this call's error (§7).
		return scanUUID, nil
	}

	// 8. Spawn a Watcher for this scan.
	if o.watch != nil {
		go o.watch(scanUUID)
	}

	return scanUUID, nil
}
