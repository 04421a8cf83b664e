package sync

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/triplinked/chatsync/internal/store"
	"go.uber.org/zap"
)

// Reconciler manages per-conversation sync watermarks: the highest confirmed
// message id already merged, used to fetch only newer messages.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logger}
}

// Watermark returns the stored watermark for a conversation, 0 when none.
func (r *Reconciler) Watermark(convKey string) (int64, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, stateKey(convKey)).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AdvanceWatermark raises the watermark to id. Monotonic: a lower id never
// regresses the stored value, so overlapping ticks cannot move it backwards.
func (r *Reconciler) AdvanceWatermark(convKey string, id int64) error {
	now := time.Now().UnixMilli()
	_, err := r.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = CASE WHEN CAST(excluded.value AS INTEGER) > CAST(sync_state.value AS INTEGER)
				THEN excluded.value ELSE sync_state.value END,
			updated_at = excluded.updated_at`,
		stateKey(convKey), strconv.FormatInt(id, 10), now)
	return err
}

func stateKey(convKey string) string {
	return "watermark:" + convKey
}
