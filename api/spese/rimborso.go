package spese

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"SpeseTracker/api/constants"
	"SpeseTracker/internal/config"
)

// eligibleMonths filters the unpaid months down to those strictly before the
// transfer date: a transfer cannot reimburse the month it lands in.
func eligibleMonths(unpaid []UnpaidMonth, txDateISO string) []UnpaidMonth {
	out := make([]UnpaidMonth, 0, len(unpaid))
	for _, m := range unpaid {
		if fmt.Sprintf("%04d-%02d-28", m.Year, m.Month) < txDateISO {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// bestContiguousWindow scans every contiguous run of up to MaxRimborsoWindow
// eligible months (oldest first) and keeps the run whose cumulative
// reimbursable total is closest to the transfer amount within tolleranza.
// Strict improvement on the diff means ties go to the earliest and smallest
// window, so one transfer settling several backlogged months beats a larger
// later month that merely lands inside the tolerance band.
func bestContiguousWindow(eligible []UnpaidMonth, txAmount, tolleranza decimal.Decimal) ([]UnpaidMonth, decimal.Decimal, decimal.Decimal, bool) {
	var (
		bestMonths []UnpaidMonth
		bestTotal  decimal.Decimal
		bestDiff   decimal.Decimal
		found      bool
	)
	for start := 0; start < len(eligible); start++ {
		cumulative := decimal.Zero
		end := start + config.MaxRimborsoWindow
		if end > len(eligible) {
			end = len(eligible)
		}
		for i := start; i < end; i++ {
			cumulative = cumulative.Add(decimal.NewFromFloat(eligible[i].Amount))
			diff := cumulative.Abs().Sub(txAmount).Abs()
			if diff.LessThanOrEqual(tolleranza) && (!found || diff.LessThan(bestDiff)) {
				bestMonths = append([]UnpaidMonth(nil), eligible[start:i+1]...)
				bestTotal = cumulative
				bestDiff = diff
				found = true
			}
		}
	}
	return bestMonths, bestTotal, bestDiff, found
}

// collectUnpaidMonths builds the unpaid-month list: every month that has
// non-neutral transactions, is not flagged paid, and whose reimbursable total
// (non-excluded, non-neutral) is meaningful.
func collectUnpaidMonths(db *sql.DB) ([]UnpaidMonth, error) {
	paid := map[[2]int]bool{}
	rows, err := db.Query(`SELECT year, month FROM monthly_status WHERE is_paid`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var y, m int
		if err := rows.Scan(&y, &m); err != nil {
			rows.Close()
			return nil, err
		}
		paid[[2]int{y, m}] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totRows, err := db.Query(`
		SELECT EXTRACT(YEAR FROM data_valuta)::int AS year,
		       EXTRACT(MONTH FROM data_valuta)::int AS month,
		       COALESCE(SUM(CASE WHEN NOT is_excluded THEN importo ELSE 0 END), 0)::float8 AS total
		FROM spese_transactions
		WHERE NOT is_neutral
		GROUP BY 1, 2
		ORDER BY 1, 2`)
	if err != nil {
		return nil, err
	}
	defer totRows.Close()

	var unpaid []UnpaidMonth
	for totRows.Next() {
		var y, m int
		var total float64
		if err := totRows.Scan(&y, &m, &total); err != nil {
			return nil, err
		}
		if paid[[2]int{y, m}] {
			continue
		}
		if total < config.MinReimbursableTotal && total > -config.MinReimbursableTotal {
			continue
		}
		unpaid = append(unpaid, UnpaidMonth{
			Year: y, Month: m,
			MonthName: constants.MonthNamesIT[m],
			Amount:    roundTo2(total),
		})
	}
	return unpaid, totRows.Err()
}

func roundTo2(f float64) float64 {
	v, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return v
}

// DetectRimborso handles GET /spese/detect-rimborso. Detection is read-only:
// it proposes candidates and never flips monthly status by itself.
func DetectRimborso(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mitRows, err := db.Query(`SELECT operazione, tolleranza::float8 FROM rimborso_mittenti WHERE attivo`)
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		type mittente struct {
			pattern    string
			tolleranza float64
		}
		var mittenti []mittente
		for mitRows.Next() {
			var m mittente
			if err := mitRows.Scan(&m.pattern, &m.tolleranza); err != nil {
				mitRows.Close()
				writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			mittenti = append(mittenti, m)
		}
		mitRows.Close()
		if len(mittenti) == 0 {
			writeJSON(w, map[string]interface{}{"candidates": []RimborsoCandidate{}})
			return
		}

		unpaid, err := collectUnpaidMonths(db)
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		if len(unpaid) == 0 {
			writeJSON(w, map[string]interface{}{"candidates": []RimborsoCandidate{}})
			return
		}

		candidates := []RimborsoCandidate{}
		seenTx := map[int64]bool{}

		for _, mit := range mittenti {
			txRows, err := db.Query(`
				SELECT id, to_char(data_valuta, 'YYYY-MM-DD'), operazione, importo::float8
				FROM spese_transactions
				WHERE importo > 0 AND LOWER(operazione) LIKE '%' || LOWER($1) || '%'
				ORDER BY data_valuta DESC`, mit.pattern)
			if err != nil {
				writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			var txs []Transaction
			for txRows.Next() {
				var tx Transaction
				if err := txRows.Scan(&tx.ID, &tx.DataValuta, &tx.Operazione, &tx.Importo); err != nil {
					txRows.Close()
					writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
					return
				}
				txs = append(txs, tx)
			}
			txRows.Close()

			tol := decimal.NewFromFloat(mit.tolleranza)
			for _, tx := range txs {
				if seenTx[tx.ID] {
					continue
				}
				eligible := eligibleMonths(unpaid, tx.DataValuta)
				if len(eligible) == 0 {
					continue
				}
				months, total, diff, ok := bestContiguousWindow(eligible, decimal.NewFromFloat(tx.Importo), tol)
				if !ok {
					continue
				}
				seenTx[tx.ID] = true
				totalF, _ := total.Round(2).Float64()
				diffF, _ := diff.Round(2).Float64()
				candidates = append(candidates, RimborsoCandidate{
					Transaction: tx,
					Months:      months,
					MonthsTotal: totalF,
					Diff:        diffF,
				})
			}
		}

		writeJSON(w, map[string]interface{}{"candidates": candidates})
	}
}

// ConfirmRimborso handles POST /spese/rimborso/confirm: the explicit user
// confirmation that flips the selected months to paid.
func ConfirmRimborso(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TransactionID int64 `json:"transaction_id"`
			Months        []struct {
				Year  int `json:"year"`
				Month int `json:"month"`
			} `json:"months"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Months) == 0 {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		for _, m := range req.Months {
			if m.Month < 1 || m.Month > 12 || m.Year < 1900 {
				writeError(w, http.StatusBadRequest, "invalid year/month in selection")
				return
			}
		}

		tx, err := db.Begin()
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		defer tx.Rollback()

		for _, m := range req.Months {
			if _, err := tx.Exec(`
				INSERT INTO monthly_status (year, month, is_paid)
				VALUES ($1, $2, TRUE)
				ON CONFLICT (year, month) DO UPDATE SET is_paid = EXCLUDED.is_paid`,
				m.Year, m.Month); err != nil {
				writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
				return
			}
		}
		if err := tx.Commit(); err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}

		writeJSON(w, map[string]interface{}{
			"transaction_id": req.TransactionID,
			"confirmed":      len(req.Months),
		})
	}
}

// ---- Rimborso mittenti CRUD ----

func ListMittenti(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.Query(`SELECT id, operazione, keyword_id, tolleranza::float8, attivo FROM rimborso_mittenti ORDER BY operazione`)
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		defer rows.Close()
		out := []RimborsoMittente{}
		for rows.Next() {
			var m RimborsoMittente
			if err := rows.Scan(&m.ID, &m.Operazione, &m.KeywordID, &m.Tolleranza, &m.Attivo); err != nil {
				writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			out = append(out, m)
		}
		writeJSON(w, out)
	}
}

// AddMittente registers a reimbursement sender. Its pattern doubles as a
// neutral keyword (incoming reimbursements must not inflate income totals),
// so the keyword is created or linked and the table reclassified.
func AddMittente(db *sql.DB, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Operazione string   `json:"operazione"`
			Tolleranza *float64 `json:"tolleranza"`
			Attivo     *bool    `json:"attivo"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || normalizeCell(req.Operazione) == "" {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		operazione := normalizeCell(req.Operazione)
		tolleranza := config.DefaultTolleranza
		if req.Tolleranza != nil {
			tolleranza = *req.Tolleranza
		}
		attivo := true
		if req.Attivo != nil {
			attivo = *req.Attivo
		}

		var keywordID int64
		err := db.QueryRow(`SELECT id FROM neutral_keywords WHERE LOWER(keyword) = LOWER($1)`, operazione).Scan(&keywordID)
		if err == sql.ErrNoRows {
			err = db.QueryRow(`INSERT INTO neutral_keywords (keyword) VALUES ($1) RETURNING id`, operazione).Scan(&keywordID)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}

		var m RimborsoMittente
		err = db.QueryRow(`
			INSERT INTO rimborso_mittenti (operazione, keyword_id, tolleranza, attivo)
			VALUES ($1, $2, $3, $4)
			RETURNING id, operazione, keyword_id, tolleranza::float8, attivo`,
			operazione, keywordID, tolleranza, attivo,
		).Scan(&m.ID, &m.Operazione, &m.KeywordID, &m.Tolleranza, &m.Attivo)
		if err != nil {
			if isUniqueViolation(err) {
				writeError(w, http.StatusConflict, "Mittente già presente.")
				return
			}
			writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}

		if err := reclassifyWithSnapshot(r, db, pool); err != nil {
			writeError(w, http.StatusInternalServerError, "reclassification failed: "+err.Error())
			return
		}
		writeJSON(w, m)
	}
}

func UpdateMittente(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		var req struct {
			Tolleranza *float64 `json:"tolleranza"`
			Attivo     *bool    `json:"attivo"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if req.Tolleranza != nil {
			if _, err := db.Exec(`UPDATE rimborso_mittenti SET tolleranza = $1 WHERE id = $2`, *req.Tolleranza, id); err != nil {
				writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
				return
			}
		}
		if req.Attivo != nil {
			if _, err := db.Exec(`UPDATE rimborso_mittenti SET attivo = $1 WHERE id = $2`, *req.Attivo, id); err != nil {
				writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
				return
			}
		}
		var m RimborsoMittente
		err = db.QueryRow(`SELECT id, operazione, keyword_id, tolleranza::float8, attivo FROM rimborso_mittenti WHERE id = $1`, id).
			Scan(&m.ID, &m.Operazione, &m.KeywordID, &m.Tolleranza, &m.Attivo)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, constants.ErrMittenteNotFound)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		writeJSON(w, m)
	}
}

// DeleteMittente removes a sender and its linked neutral keyword, then
// reclassifies so previously neutral reimbursements count again.
func DeleteMittente(db *sql.DB, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		var keywordID sql.NullInt64
		err = db.QueryRow(`SELECT keyword_id FROM rimborso_mittenti WHERE id = $1`, id).Scan(&keywordID)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, constants.ErrMittenteNotFound)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		if _, err := db.Exec(`DELETE FROM rimborso_mittenti WHERE id = $1`, id); err != nil {
			writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		if keywordID.Valid {
			if _, err := db.Exec(`DELETE FROM neutral_keywords WHERE id = $1`, keywordID.Int64); err != nil {
				writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
				return
			}
		}
		if err := reclassifyWithSnapshot(r, db, pool); err != nil {
			writeError(w, http.StatusInternalServerError, "reclassification failed: "+err.Error())
			return
		}
		writeJSON(w, map[string]interface{}{"deleted": id})
	}
}

// reclassifyWithSnapshot re-reads the keyword list after a mutation and runs
// the full-table reclassification with that explicit snapshot.
func reclassifyWithSnapshot(r *http.Request, db *sql.DB, pool *pgxpool.Pool) error {
	keywords, err := loadNeutralKeywordsSQL(db)
	if err != nil {
		return err
	}
	return ReclassifyAll(r.Context(), pool, keywords)
}
