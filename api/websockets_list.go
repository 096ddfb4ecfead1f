// api/websockets_list.go implements the scan-list heartbeat stream (§4.4.2):
// no subscription, no DB writes, just a 5-second poll of the user's active
// scans relayed as JSON frames.
package api

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/db"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/kvb"
)

type scanUpdateFrame struct {
	Type       string  `json:"type"`
	ScanUUID   string  `json:"scan_uuid"`
	Status     string  `json:"status"`
	Progress   string  `json:"progress,omitempty"`
	StartedAt  *string `json:"started_at,omitempty"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Name       string  `json:"name"`
}

// ScanListStreamHandler serves /api/v1/scans/ws.
type ScanListStreamHandler struct {
	db  *db.DatabaseConnection
	bus *kvb.Bus
}

func NewScanListStreamHandler(database *db.DatabaseConnection, bus *kvb.Bus) *ScanListStreamHandler {
	return &ScanListStreamHandler{db: database, bus: bus}
}

// Stream implements §4.4.2: every 5 seconds, query the user's non-pending,
// non-completed scans and emit a scan_update frame per scan. The caller is
// ResolveUser-resolved ahead of this handler (server.go's JWTProtectedWS +
// ResolveUser) — there is no client-supplied identity here, only the
// bearer-token-derived user stashed in Locals.
func (h *ScanListStreamHandler) Stream(conn *websocket.Conn) {
	user, ok := conn.Locals("user").(*db.User)
	if !ok {
		conn.Close()
		return
	}

	interval := viper.GetDuration("gateway.list_stream_interval")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			if err := h.emitUpdates(conn, user.ID); err != nil {
				return
			}
		}
	}
}

// emitUpdates sources status/finished_at from the KVB scan:{S} envelope,
// not the DB row (§4.4.2 step 2; original_source/webserver/app/api/routes/
// scan.py's websocket_scans route reads the same Redis key and leaves the
// DB-queried status unused) — the KVB value is what's current while a scan
// is non-terminal, since the DB row is only caught up by the Watcher.
func (h *ScanListStreamHandler) emitUpdates(conn *websocket.Conn, ownerID uint) error {
	scans, err := h.db.ListActiveScansForUser(ownerID)
	if err != nil {
		log.Error().Err(err).Msg("list stream: failed listing active scans")
		return nil
	}

	ctx := context.Background()
	for _, scan := range scans {
		progress, _ := h.bus.GetProgress(ctx, scan.UUID.String())

		status := string(scan.Status)
		finishedAt := formatTimePtr(scan.FinishedAt)
		if state, err := h.bus.GetScanState(ctx, scan.UUID.String()); err == nil && state != nil {
			status = state.Status
			finishedAt = state.FinishedAt
		}

		frame := scanUpdateFrame{
			Type:       "scan_update",
			ScanUUID:   scan.UUID.String(),
			Status:     status,
			Progress:   progress,
			StartedAt:  formatTimePtr(scan.StartedAt),
			FinishedAt: finishedAt,
			Name:       scan.Name,
		}
		if err := conn.WriteJSON(frame); err != nil {
			return err
		}
	}
	return nil
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
