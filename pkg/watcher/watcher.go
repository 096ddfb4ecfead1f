// Package watcher implements the Scan Watcher (§4.3): the single writer of
// a scan's status, timestamps, output, result, and findings. One Watch call
// runs per scan, spawned by the Orchestrator as a bare goroutine — no global
// registry, per §9's design note that "a task per UUID is sufficient".
//
// Grounded on original_source/webserver/app/tasks.py's watch_scan Celery
// task, restructured per §9: the asyncio get_message(timeout=1.0)/sleep loop
// becomes a combined subscribe-with-timeout + KV-state-poll loop, using
// sourcegraph/conc (as the teacher's websocket scanner does) only for the
// terminal results-processing fan-in, not the main loop itself.
package watcher

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/db"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/classifier"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/kvb"
)

// Watcher owns the collaborators a supervisor needs: storage and the bus.
type Watcher struct {
	db                *db.DatabaseConnection
	bus               *kvb.Bus
	subscribeTimeout  time.Duration
	inactivityTimeout time.Duration
}

func New(database *db.DatabaseConnection, bus *kvb.Bus, subscribeTimeout, inactivityTimeout time.Duration) *Watcher {
	if subscribeTimeout <= 0 {
		subscribeTimeout = time.Second
	}
	if inactivityTimeout <= 0 {
		inactivityTimeout = 120 * time.Second
	}
	return &Watcher{db: database, bus: bus, subscribeTimeout: subscribeTimeout, inactivityTimeout: inactivityTimeout}
}

// Watch runs until the scan reaches a terminal state, the inactivity
// threshold fires, or ctx is canceled (§4.3).
func (w *Watcher) Watch(ctx context.Context, scanUUID uuid.UUID) {
	scanID := scanUUID.String()
	sub := w.bus.SubscribeProgress(ctx, scanID)
	defer sub.Close()

	lastStatus := db.ScanStatusPending
	var runningSince time.Time
	lastProgressAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := sub.Receive(ctx, w.subscribeTimeout)
		if err != nil {
			// Only returned on outer cancellation; a plain timeout is (nil, nil).
			return
		}
		if msg != nil {
			lastProgressAt = time.Now()
			if err := w.bus.SetProgress(ctx, scanID, msg.Payload); err != nil {
				log.Error().Err(err).Str("scan_uuid", scanID).Msg("failed caching progress")
			}
		}

		state, err := w.bus.GetScanState(ctx, scanID)
		if err != nil {
			log.Error().Err(err).Str("scan_uuid", scanID).Msg("transient KVB read failure; retrying next poll")
		} else if state != nil {
			observed := db.ScanStatus(state.Status)
			if observed != lastStatus {
				switch observed {
				case db.ScanStatusRunning:
					w.enterRunning(ctx, scanUUID)
					runningSince = time.Now()
					lastProgressAt = time.Now()
					lastStatus = observed
				case db.ScanStatusCompleted, db.ScanStatusFailed:
					w.enterTerminal(ctx, scanUUID, observed)
					return
				default:
					lastStatus = observed
				}
			}
		}

		if lastStatus == db.ScanStatusRunning && !runningSince.IsZero() && time.Since(lastProgressAt) > w.inactivityTimeout {
			log.Warn().Str("scan_uuid", scanID).Msg("no progress within inactivity window; failing scan")
			w.enterTerminal(ctx, scanUUID, db.ScanStatusFailed)
			return
		}
	}
}

func (w *Watcher) enterRunning(ctx context.Context, scanUUID uuid.UUID) {
	scan, err := w.db.TransitionStatus(scanUUID, db.ScanStatusRunning)
	if err != nil {
		log.Error().Err(err).Str("scan_uuid", scanUUID.String()).Msg("failed transitioning scan to running")
		return
	}
	w.publishStatus(ctx, scanUUID, scan)
}

func (w *Watcher) enterTerminal(ctx context.Context, scanUUID uuid.UUID, status db.ScanStatus) {
	scan, err := w.db.TransitionStatus(scanUUID, status)
	if err != nil {
		log.Error().Err(err).Str("scan_uuid", scanUUID.String()).Msg("failed transitioning scan to terminal state")
		return
	}
	w.publishStatus(ctx, scanUUID, scan)

	if err := w.bus.PublishProgress(ctx, scanUUID.String(), "100"); err != nil {
		log.Error().Err(err).Str("scan_uuid", scanUUID.String()).Msg("failed publishing terminal progress")
	}
	if err := w.bus.SetProgress(ctx, scanUUID.String(), "100"); err != nil {
		log.Error().Err(err).Str("scan_uuid", scanUUID.String()).Msg("failed caching terminal progress")
	}

	if status == db.ScanStatusCompleted {
		w.processResults(ctx, scanUUID)
	}
}

type statusEnvelope struct {
	Status     string  `json:"status"`
	StartedAt  *string `json:"started_at"`
	FinishedAt *string `json:"finished_at"`
}

func (w *Watcher) publishStatus(ctx context.Context, scanUUID uuid.UUID, scan *db.Scan) {
	payload, err := json.Marshal(statusEnvelope{
		Status:     string(scan.Status),
		StartedAt:  formatTime(scan.StartedAt),
		FinishedAt: formatTime(scan.FinishedAt),
	})
	if err != nil {
		log.Error().Err(err).Str("scan_uuid", scanUUID.String()).Msg("failed encoding status envelope")
		return
	}
	if err := w.bus.PublishStatus(ctx, scanUUID.String(), payload); err != nil {
		log.Error().Err(err).Str("scan_uuid", scanUUID.String()).Msg("failed publishing status")
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// processResults performs the terminal results commit (§4.3's three steps):
// freeze output, ingest the result blob through the Classifier, commit
// everything in one transaction. Output flush and result ingestion run
// concurrently, joined before the commit — the one spot this package reaches
// for sourcegraph/conc, per SPEC_FULL.md's design.
func (w *Watcher) processResults(ctx context.Context, scanUUID uuid.UUID) {
	scanID := scanUUID.String()

	var output string
	var resultJSONPtr *string
	var findings []db.Finding

	var wg conc.WaitGroup
	wg.Go(func() {
		lines, err := w.bus.ReadOutputLines(ctx, scanID)
		if err != nil {
			log.Error().Err(err).Str("scan_uuid", scanID).Msg("failed reading buffered output")
		}
		output = strings.Join(lines, "\n")
		if err := w.bus.DeleteOutputLines(ctx, scanID); err != nil {
			log.Error().Err(err).Str("scan_uuid", scanID).Msg("failed clearing output ring")
		}
	})
	wg.Go(func() {
		raw, err := w.bus.GetResults(ctx, scanID)
		if err != nil {
			log.Error().Err(err).Str("scan_uuid", scanID).Msg("failed reading result blob")
			return
		}
		if raw == nil {
			return
		}
		resultStr := string(raw)
		resultJSONPtr = &resultStr
		defer func() {
			if err := w.bus.DeleteResults(ctx, scanID); err != nil {
				log.Error().Err(err).Str("scan_uuid", scanID).Msg("failed clearing result blob")
			}
		}()

		hosts, err := classifier.ParseHostRecords(raw)
		if err != nil {
			log.Error().Err(err).Str("scan_uuid", scanID).Msg("unparseable scan result blob; zero findings")
			return
		}

		scan, err := w.db.GetScanWithTargets(scanUUID)
		if err != nil {
			log.Error().Err(err).Str("scan_uuid", scanID).Msg("failed loading scan targets for finding resolution")
			return
		}
		byLabel := make(map[string]uint, len(scan.Targets))
		for _, t := range scan.Targets {
			byLabel[t.Name] = t.ID
		}

		for _, cf := range classifier.Classify(hosts) {
			targetID, ok := byLabel[cf.TargetName]
			if !ok {
				// Host label doesn't match any target resolved at intake —
				// unexpected scanner output; skip rather than guess an owner.
				continue
			}
			findings = append(findings, toDBFinding(targetID, cf))
		}
	})
	wg.Wait()

	if err := w.db.ApplyResult(scanUUID, output, resultJSONPtr, findings); err != nil {
		log.Error().Err(err).Str("scan_uuid", scanID).Msg("failed committing terminal results")
	}
}

func toDBFinding(targetID uint, cf classifier.Finding) db.Finding {
	f := db.Finding{
		UUID:           uuid.New(),
		TargetID:       targetID,
		Name:           cf.Name,
		Description:    cf.Description,
		Recommendation: cf.Recommendation,
		Port:           cf.Port,
		Protocol:       cf.Protocol,
		Service:        cf.Service,
		OS:             cf.OS,
		Traceroute:     cf.Traceroute,
		Severity:       db.Severity(cf.Severity),
	}
	if cf.PortState != nil {
		ps := db.PortState(*cf.PortState)
		f.PortState = &ps
	}
	return f
}
