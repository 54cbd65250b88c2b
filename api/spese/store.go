package spese

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// pgUniqueViolation is the Postgres error code for unique-constraint
// violations; on the fingerprint index it means "duplicate transaction".
const pgUniqueViolation = "23505"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS spese_transactions (
		id BIGSERIAL PRIMARY KEY,
		data_valuta DATE NOT NULL,
		operazione TEXT NOT NULL,
		conto_carta TEXT NOT NULL DEFAULT '',
		categoria TEXT NOT NULL DEFAULT '',
		valuta TEXT NOT NULL DEFAULT 'EUR',
		importo NUMERIC(14,2) NOT NULL,
		is_excluded BOOLEAN NOT NULL DEFAULT FALSE,
		is_neutral BOOLEAN NOT NULL DEFAULT FALSE,
		fingerprint TEXT NOT NULL,
		import_batch_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// uniqueness on fingerprint is the correctness backstop for concurrent
	// ingestions, not an optimization
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_spese_fingerprint ON spese_transactions (fingerprint)`,
	`CREATE INDEX IF NOT EXISTS idx_spese_data_valuta ON spese_transactions (data_valuta DESC)`,
	`CREATE TABLE IF NOT EXISTS neutral_keywords (
		id BIGSERIAL PRIMARY KEY,
		keyword TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS rimborso_mittenti (
		id BIGSERIAL PRIMARY KEY,
		operazione TEXT NOT NULL UNIQUE,
		keyword_id BIGINT REFERENCES neutral_keywords(id) ON DELETE SET NULL,
		tolleranza NUMERIC(10,2) NOT NULL DEFAULT 5.0,
		attivo BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS monthly_status (
		year INT NOT NULL,
		month INT NOT NULL,
		is_paid BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (year, month)
	)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// isUniqueViolation detects a fingerprint (or other unique index) collision
// from either driver in use.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	return false
}

// pqUserFriendlyMessage maps driver errors to messages safe to show users.
func pqUserFriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	if isUniqueViolation(err) {
		return "Una voce identica è già presente."
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503":
			return "Some referenced data was not found (please refresh and try again)."
		case "23514":
			return "Some fields have invalid values. Please check and try again."
		}
		return "Database error while processing the request. Please try again."
	}
	return err.Error()
}

// loadNeutralKeywords returns the current keyword snapshot via the pgx pool.
func loadNeutralKeywords(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT keyword FROM neutral_keywords ORDER BY keyword`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, err
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}

// loadNeutralKeywordsSQL is the database/sql twin used by the CRUD handlers.
func loadNeutralKeywordsSQL(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT keyword FROM neutral_keywords ORDER BY keyword`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, err
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}

// ---- JSON response helpers (shared by every handler in the package) ----

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}
