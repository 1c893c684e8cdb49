package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reelrender/internal/httpkit"
)

const settingsSchema = `
	CREATE TABLE IF NOT EXISTS render_settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// SettingsRepository stores the settings document as key/value rows.
// It satisfies settings.Store.
type SettingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Name() string { return "postgres" }

// EnsureSchema creates the table when missing.
func (r *SettingsRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, settingsSchema)
	return err
}

func (r *SettingsRepository) Load(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM render_settings`)
	if err != nil {
		// Nothing saved yet on a fresh database.
		if httpkit.IsUndefinedTable(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Save replaces the whole document in one transaction.
func (r *SettingsRepository) Save(ctx context.Context, doc map[string]string) error {
	if err := r.EnsureSchema(ctx); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM render_settings`); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for k, v := range doc {
			batch.Queue(`
				INSERT INTO render_settings (key, value, updated_at)
				VALUES ($1, $2, now())
			`, k, v)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (r *SettingsRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
