package api

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Auditor writes an append-only trail of session events. It is entirely
// optional: a nil Auditor or a nil pool turns every Record into a no-op,
// and a failed insert never fails the request that produced it.
type Auditor struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewAuditor wraps a connection pool. pool may be nil.
func NewAuditor(pool *pgxpool.Pool, log *slog.Logger) *Auditor {
	if log == nil {
		log = slog.Default()
	}
	return &Auditor{pool: pool, log: log}
}

const insertAuditEvent = `
INSERT INTO prism.audit_log (id, event, request_id, detail, created_at)
VALUES ($1, $2, $3, $4, now())`

// Record persists one audit event. The write detaches from the request
// cancellation so a client disconnect does not drop the trail entry.
func (a *Auditor) Record(ctx context.Context, event, requestID string, detail map[string]any) {
	if a == nil || a.pool == nil {
		return
	}

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err != nil {
		a.log.Error("audit.id.fail", "error", err)
		return
	}

	payload := []byte("{}")
	if len(detail) > 0 {
		if buf, err := json.Marshal(detail); err == nil {
			payload = buf
		}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if _, err := a.pool.Exec(writeCtx, insertAuditEvent, id.String(), event, requestID, payload); err != nil {
		a.log.Error("audit.insert.fail", "event", event, "error", err)
	}
}
