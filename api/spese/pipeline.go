package spese

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"SpeseTracker/api/constants"
	"SpeseTracker/internal/config"
)

// plannedRow is a record that survived in-batch and against-store
// deduplication and is ready to insert.
type plannedRow struct {
	rec         RawRecord
	fingerprint string
	isNeutral   bool
}

// planBatch dedupes the parsed records by fingerprint, both within the batch
// and against already-persisted transactions (existsFP), and classifies the
// survivors against the keyword snapshot. It returns the rows to insert and
// the number of duplicates dropped.
func planBatch(records []RawRecord, keywords []string, existsFP func(string) bool) ([]plannedRow, int) {
	seen := make(map[string]bool, len(records))
	planned := make([]plannedRow, 0, len(records))
	duplicates := 0
	for _, rec := range records {
		fp := FingerprintRecord(rec)
		if seen[fp] || existsFP(fp) {
			duplicates++
			continue
		}
		seen[fp] = true
		isNeutral, _ := Classify(rec, keywords)
		planned = append(planned, plannedRow{rec: rec, fingerprint: fp, isNeutral: isNeutral})
	}
	return planned, duplicates
}

// fuzzyMatch reports whether any stored same-amount description denotes the
// same transaction as the incoming one. Stored rows keep their original
// trailing bank reference, so both sides are normalized here rather than in
// SQL before comparing.
func fuzzyMatch(operazione string, candidates []string) bool {
	norm := NormalizeDescription(operazione)
	for _, c := range candidates {
		if NormalizeDescription(c) == norm {
			return true
		}
	}
	return false
}

// IngestFile runs the full pipeline for one uploaded file: parse, fingerprint,
// dedupe, classify, persist. All inserts for the file share one transaction.
// Parse failures of individual rows are counted in Errors; an unrecognized
// layout fails the whole file and nothing is persisted.
func IngestFile(ctx context.Context, pool *pgxpool.Pool, fileBytes []byte) (IngestStats, error) {
	var stats IngestStats

	parsed, err := ParseStatement(fileBytes)
	if err != nil {
		return stats, err
	}
	stats.Errors = parsed.RowErrors

	keywords, err := loadNeutralKeywords(ctx, pool)
	if err != nil {
		return stats, fmt.Errorf("failed to load neutral keywords: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existsFP := func(fp string) bool {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM spese_transactions WHERE fingerprint = $1)`, fp,
		).Scan(&exists); err != nil {
			return false
		}
		return exists
	}

	planned, duplicates := planBatch(parsed.Records, keywords, existsFP)
	stats.Duplicates = duplicates
	stats.BatchID = uuid.New().String()

	for _, p := range planned {
		dateISO := p.rec.DataValuta.Format(constants.DateFormat)

		// Fuzzy duplicate: same amount and normalized description within
		// ±2 days. Catches re-exports where the bank shifted the value date.
		candRows, err := tx.Query(ctx, fmt.Sprintf(`
			SELECT operazione FROM spese_transactions
			WHERE importo = $1::numeric
			  AND data_valuta BETWEEN $2::date - %d AND $2::date + %d`,
			config.FuzzyDuplicateDays, config.FuzzyDuplicateDays),
			p.rec.Importo.StringFixed(2), dateISO,
		)
		if err != nil {
			return stats, fmt.Errorf("fuzzy duplicate check failed: %w", err)
		}
		var candidates []string
		for candRows.Next() {
			var op string
			if err := candRows.Scan(&op); err != nil {
				candRows.Close()
				return stats, fmt.Errorf("fuzzy duplicate check failed: %w", err)
			}
			candidates = append(candidates, op)
		}
		candRows.Close()
		if err := candRows.Err(); err != nil {
			return stats, fmt.Errorf("fuzzy duplicate check failed: %w", err)
		}
		if fuzzyMatch(p.rec.Operazione, candidates) {
			stats.Duplicates++
			continue
		}

		// ON CONFLICT DO NOTHING resolves the concurrent-ingest race: the
		// losing insert is reported as a duplicate, never as a second row.
		tag, err := tx.Exec(ctx, `
			INSERT INTO spese_transactions
				(data_valuta, operazione, conto_carta, categoria, valuta, importo, is_neutral, fingerprint, import_batch_id)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
			ON CONFLICT (fingerprint) DO NOTHING`,
			dateISO, p.rec.Operazione, p.rec.ContoCarta, p.rec.Categoria, p.rec.Valuta,
			p.rec.Importo.StringFixed(2), p.isNeutral, p.fingerprint, stats.BatchID,
		)
		if err != nil {
			return stats, fmt.Errorf("insert failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			stats.Duplicates++
			continue
		}
		stats.New++
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, fmt.Errorf("commit failed: %w", err)
	}
	return stats, nil
}

// uploadFileResult is the per-file entry in the upload response.
type uploadFileResult struct {
	Filename   string `json:"filename"`
	New        int    `json:"new"`
	Duplicates int    `json:"duplicates"`
	Errors     int    `json:"errors"`
	BatchID    string `json:"batch_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// UploadExpenses handles POST /spese/upload. Each uploaded file is ingested
// independently; a file-level failure (unrecognized layout, unreadable
// content) is reported per file without aborting the others.
func UploadExpenses(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "Failed to parse multipart form")
			return
		}
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			writeError(w, http.StatusBadRequest, "No files uploaded")
			return
		}

		var totals IngestStats
		results := make([]uploadFileResult, 0, len(files))
		failed := 0

		for _, fileHeader := range files {
			file, err := fileHeader.Open()
			if err != nil {
				results = append(results, uploadFileResult{Filename: fileHeader.Filename, Error: "failed to open file"})
				failed++
				continue
			}
			fileBytes, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				results = append(results, uploadFileResult{Filename: fileHeader.Filename, Error: "failed to read file"})
				failed++
				continue
			}

			stats, err := IngestFile(ctx, pool, fileBytes)
			if err != nil {
				msg := "failed to process file"
				if errors.Is(err, ErrUnrecognizedLayout) || errors.Is(err, ErrUnsupportedFile) || errors.Is(err, ErrNoDataRows) {
					msg = err.Error()
				}
				log.Printf("[SpeseUpload] %s: %v", fileHeader.Filename, err)
				results = append(results, uploadFileResult{Filename: fileHeader.Filename, Error: msg})
				failed++
				continue
			}

			if stats.New > 0 {
				if url, err := archiveUpload(ctx, fileBytes, fileHeader.Filename, stats.BatchID); err != nil {
					log.Printf("[SpeseUpload] archive failed for %s: %v", fileHeader.Filename, err)
				} else if url != "" {
					log.Printf("[SpeseUpload] archived %s to %s", fileHeader.Filename, url)
				}
			}

			totals.Add(stats)
			results = append(results, uploadFileResult{
				Filename:   fileHeader.Filename,
				New:        stats.New,
				Duplicates: stats.Duplicates,
				Errors:     stats.Errors,
				BatchID:    stats.BatchID,
			})
		}

		if failed == len(files) {
			writeError(w, http.StatusBadRequest, "No uploaded file could be processed")
			return
		}

		writeJSON(w, map[string]interface{}{
			"files":      results,
			"new":        totals.New,
			"duplicates": totals.Duplicates,
			"errors":     totals.Errors,
		})
	}
}
