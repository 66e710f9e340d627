package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// PGRepository membaca audit_logs dari PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed audit reader.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const windowSQL = `
SELECT occurred_at, COALESCE(actor_id, ''), action, entity, entity_id, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)
ORDER BY occurred_at DESC, id DESC
OFFSET $6
LIMIT $7`

// Window implements Repository.
func (r *PGRepository) Window(ctx context.Context, q Query) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, windowSQL,
		toPgTime(q.From), toPgTime(q.To),
		optionalText(q.Actor), optionalText(q.Entity), optionalText(q.Action),
		q.Offset, pgtype.Int4{Int32: int32(q.Limit), Valid: q.Limit > 0})
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var out TimelineRow
		err := row.Scan(&out.At, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &out.Meta)
		return out, err
	})
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

// MemoryLog keeps audit entries in process. It is both the sink and the
// reader for STORE_DRIVER=memory.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []TimelineRow
	now     func() time.Time
}

// NewMemoryLog returns an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{now: time.Now}
}

// Record implements shared.AuditSink.
func (m *MemoryLog) Record(ctx context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	at := log.At
	if at.IsZero() {
		at = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, TimelineRow{
		At:       at.UTC(),
		Actor:    log.ActorID,
		Action:   log.Action,
		Entity:   log.Entity,
		EntityID: log.EntityID,
		Meta:     log.Meta,
	})
	return nil
}

// Window implements Repository.
func (m *MemoryLog) Window(ctx context.Context, q Query) ([]TimelineRow, error) {
	m.mu.RLock()
	matched := make([]TimelineRow, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0; i-- {
		if q.matches(m.entries[i]) {
			matched = append(matched, m.entries[i])
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].At.After(matched[j].At) })
	if q.Offset >= len(matched) {
		return []TimelineRow{}, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

var (
	_ Repository       = (*PGRepository)(nil)
	_ Repository       = (*MemoryLog)(nil)
	_ shared.AuditSink = (*MemoryLog)(nil)
)
