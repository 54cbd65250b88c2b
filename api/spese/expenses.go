package spese

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"SpeseTracker/api/constants"
)

const selectTransactionCols = `
	id, to_char(data_valuta, 'YYYY-MM-DD'), operazione, conto_carta,
	categoria, valuta, importo::float8, is_excluded, is_neutral, fingerprint`

func scanTransaction(scan func(dest ...interface{}) error) (Transaction, error) {
	var t Transaction
	err := scan(&t.ID, &t.DataValuta, &t.Operazione, &t.ContoCarta,
		&t.Categoria, &t.Valuta, &t.Importo, &t.IsExcluded, &t.IsNeutral, &t.Fingerprint)
	return t, err
}

type monthGroup struct {
	Month        int           `json:"month"`
	MonthName    string        `json:"month_name"`
	Transactions []Transaction `json:"transactions"`
}

type yearGroup struct {
	Year   int          `json:"year"`
	Months []monthGroup `json:"months"`
}

// buildExpenseListQuery translates the list filters into SQL. search_text
// matches description, category and account label; the dates bound the value
// date on either side.
func buildExpenseListQuery(q url.Values) (string, []interface{}, error) {
	query := `SELECT ` + selectTransactionCols + ` FROM spese_transactions WHERE TRUE`
	args := []interface{}{}
	if s := normalizeCell(q.Get("search_text")); s != "" {
		args = append(args, "%"+s+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (operazione ILIKE $` + n + ` OR categoria ILIKE $` + n + ` OR conto_carta ILIKE $` + n + `)`
	}
	if s := q.Get("start_date"); s != "" {
		if _, err := time.Parse(constants.DateFormat, s); err != nil {
			return "", nil, fmt.Errorf("start_date must be YYYY-MM-DD")
		}
		args = append(args, s)
		query += ` AND data_valuta >= $` + strconv.Itoa(len(args)) + `::date`
	}
	if s := q.Get("end_date"); s != "" {
		if _, err := time.Parse(constants.DateFormat, s); err != nil {
			return "", nil, fmt.Errorf("end_date must be YYYY-MM-DD")
		}
		args = append(args, s)
		query += ` AND data_valuta <= $` + strconv.Itoa(len(args)) + `::date`
	}
	query += ` ORDER BY data_valuta DESC, id DESC`
	return query, args, nil
}

// ListExpenses handles GET /spese/expenses. Results are grouped by year and
// month, newest first, and optionally filtered by a free-text search on the
// description, category and account, and by a date range.
func ListExpenses(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, args, err := buildExpenseListQuery(r.URL.Query())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		rows, err := db.Query(query, args...)
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		defer rows.Close()

		groups := []yearGroup{}
		for rows.Next() {
			t, err := scanTransaction(rows.Scan)
			if err != nil {
				writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			d, err := time.Parse(constants.DateFormat, t.DataValuta)
			if err != nil {
				writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			y, m := d.Year(), int(d.Month())
			if len(groups) == 0 || groups[len(groups)-1].Year != y {
				groups = append(groups, yearGroup{Year: y})
			}
			yg := &groups[len(groups)-1]
			if len(yg.Months) == 0 || yg.Months[len(yg.Months)-1].Month != m {
				yg.Months = append(yg.Months, monthGroup{
					Month: m, MonthName: constants.MonthNamesIT[m],
					Transactions: []Transaction{},
				})
			}
			mg := &yg.Months[len(yg.Months)-1]
			mg.Transactions = append(mg.Transactions, t)
		}
		if err := rows.Err(); err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		writeJSON(w, groups)
	}
}

type expensePayload struct {
	DataValuta string   `json:"data_valuta"`
	Operazione string   `json:"operazione"`
	ContoCarta string   `json:"conto_carta"`
	Categoria  string   `json:"categoria"`
	Valuta     string   `json:"valuta"`
	Importo    *float64 `json:"importo"`
}

// CreateExpense handles POST /spese/expenses for manual entries. Manual rows
// go through the same fingerprint and keyword classification as uploads, so a
// manually typed duplicate of an imported row is rejected just the same.
func CreateExpense(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req expensePayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		req.Operazione = normalizeCell(req.Operazione)
		if req.Operazione == "" || req.Importo == nil {
			writeError(w, http.StatusBadRequest, "operazione and importo are required")
			return
		}
		if _, err := time.Parse(constants.DateFormat, req.DataValuta); err != nil {
			writeError(w, http.StatusBadRequest, "data_valuta must be YYYY-MM-DD")
			return
		}
		if req.Valuta == "" {
			req.Valuta = "EUR"
		}

		keywords, err := loadNeutralKeywordsSQL(db)
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		importo := decimal.NewFromFloat(*req.Importo)
		fp := Fingerprint(req.DataValuta, importo, req.Operazione, req.ContoCarta)
		isNeutral := IsNeutralDescription(req.Operazione, keywords)

		row := db.QueryRow(`
			INSERT INTO spese_transactions
				(data_valuta, operazione, conto_carta, categoria, valuta, importo, is_excluded, is_neutral, fingerprint)
			VALUES ($1::date, $2, $3, $4, $5, $6::numeric, FALSE, $7, $8)
			RETURNING `+selectTransactionCols,
			req.DataValuta, req.Operazione, req.ContoCarta, req.Categoria,
			req.Valuta, importo.StringFixed(2), isNeutral, fp)
		t, err := scanTransaction(row.Scan)
		if err != nil {
			if isUniqueViolation(err) {
				writeError(w, http.StatusConflict, "Movimento già registrato.")
				return
			}
			writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		writeJSON(w, t)
	}
}

// UpdateExpense handles PATCH /spese/expenses/{id}. Identity fields may
// change, so the fingerprint and neutral flag are recomputed from the merged
// row; a fingerprint collision with a different row is a conflict.
func UpdateExpense(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		var req struct {
			DataValuta *string  `json:"data_valuta"`
			Operazione *string  `json:"operazione"`
			ContoCarta *string  `json:"conto_carta"`
			Categoria  *string  `json:"categoria"`
			Valuta     *string  `json:"valuta"`
			Importo    *float64 `json:"importo"`
			IsExcluded *bool    `json:"is_excluded"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}

		cur, err := scanTransaction(db.QueryRow(
			`SELECT `+selectTransactionCols+` FROM spese_transactions WHERE id = $1`, id).Scan)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, constants.ErrExpenseNotFound)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}

		if req.DataValuta != nil {
			if _, err := time.Parse(constants.DateFormat, *req.DataValuta); err != nil {
				writeError(w, http.StatusBadRequest, "data_valuta must be YYYY-MM-DD")
				return
			}
			cur.DataValuta = *req.DataValuta
		}
		if req.Operazione != nil {
			op := normalizeCell(*req.Operazione)
			if op == "" {
				writeError(w, http.StatusBadRequest, "operazione cannot be empty")
				return
			}
			cur.Operazione = op
		}
		if req.ContoCarta != nil {
			cur.ContoCarta = *req.ContoCarta
		}
		if req.Categoria != nil {
			cur.Categoria = *req.Categoria
		}
		if req.Valuta != nil {
			cur.Valuta = *req.Valuta
		}
		if req.Importo != nil {
			cur.Importo = *req.Importo
		}
		if req.IsExcluded != nil {
			cur.IsExcluded = *req.IsExcluded
		}

		keywords, err := loadNeutralKeywordsSQL(db)
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		importo := decimal.NewFromFloat(cur.Importo)
		fp := Fingerprint(cur.DataValuta, importo, cur.Operazione, cur.ContoCarta)
		isNeutral := IsNeutralDescription(cur.Operazione, keywords)

		var clashID int64
		err = db.QueryRow(`SELECT id FROM spese_transactions WHERE fingerprint = $1 AND id <> $2`, fp, id).Scan(&clashID)
		if err == nil {
			writeError(w, http.StatusConflict, "Movimento già registrato.")
			return
		}
		if err != sql.ErrNoRows {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}

		row := db.QueryRow(`
			UPDATE spese_transactions
			SET data_valuta = $1::date, operazione = $2, conto_carta = $3, categoria = $4,
			    valuta = $5, importo = $6::numeric, is_excluded = $7, is_neutral = $8, fingerprint = $9
			WHERE id = $10
			RETURNING `+selectTransactionCols,
			cur.DataValuta, cur.Operazione, cur.ContoCarta, cur.Categoria,
			cur.Valuta, importo.StringFixed(2), cur.IsExcluded, isNeutral, fp, id)
		out, err := scanTransaction(row.Scan)
		if err != nil {
			if isUniqueViolation(err) {
				writeError(w, http.StatusConflict, "Movimento già registrato.")
				return
			}
			writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		writeJSON(w, out)
	}
}

// ToggleExpense flips the exclusion flag of one row.
func ToggleExpense(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		row := db.QueryRow(`
			UPDATE spese_transactions SET is_excluded = NOT is_excluded
			WHERE id = $1
			RETURNING `+selectTransactionCols, id)
		t, err := scanTransaction(row.Scan)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, constants.ErrExpenseNotFound)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		writeJSON(w, t)
	}
}

func DeleteExpense(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		res, err := db.Exec(`DELETE FROM spese_transactions WHERE id = $1`, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			writeError(w, http.StatusNotFound, constants.ErrExpenseNotFound)
			return
		}
		writeJSON(w, map[string]interface{}{"deleted": id})
	}
}

// BulkDeleteExpenses removes every transaction in the selected months.
// Monthly paid flags are history of reimbursements already settled and are
// left untouched.
func BulkDeleteExpenses(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Periods []struct {
				Year  int `json:"year"`
				Month int `json:"month"`
			} `json:"periods"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Periods) == 0 {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		tx, err := db.Begin()
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		defer tx.Rollback()

		var deleted int64
		for _, p := range req.Periods {
			if p.Month < 1 || p.Month > 12 || p.Year < 1900 {
				writeError(w, http.StatusBadRequest, "invalid year/month in periods")
				return
			}
			res, err := tx.Exec(`
				DELETE FROM spese_transactions
				WHERE EXTRACT(YEAR FROM data_valuta)::int = $1
				  AND EXTRACT(MONTH FROM data_valuta)::int = $2`, p.Year, p.Month)
			if err != nil {
				writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
				return
			}
			n, _ := res.RowsAffected()
			deleted += n
		}
		if err := tx.Commit(); err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		writeJSON(w, map[string]interface{}{"deleted": deleted})
	}
}

type statementPeriod struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	MonthName string `json:"month_name"`
}

// periodsEnvelope wraps the newest-first period list with the distinct year
// list and the latest year/month, which the frontend preselects.
func periodsEnvelope(periods []statementPeriod) map[string]interface{} {
	years := []int{}
	seen := map[int]bool{}
	for _, p := range periods {
		if !seen[p.Year] {
			seen[p.Year] = true
			years = append(years, p.Year)
		}
	}
	out := map[string]interface{}{
		"periods": periods,
		"years":   years,
	}
	if len(periods) > 0 {
		out["latest_year"] = periods[0].Year
		out["latest_month"] = periods[0].Month
	}
	return out
}

// AvailablePeriods lists every year/month that has at least one transaction,
// newest first, plus the latest period for preselection.
func AvailablePeriods(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.Query(`
			SELECT DISTINCT EXTRACT(YEAR FROM data_valuta)::int,
			                EXTRACT(MONTH FROM data_valuta)::int
			FROM spese_transactions
			ORDER BY 1 DESC, 2 DESC`)
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		defer rows.Close()
		out := []statementPeriod{}
		for rows.Next() {
			var p statementPeriod
			if err := rows.Scan(&p.Year, &p.Month); err != nil {
				writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			p.MonthName = constants.MonthNamesIT[p.Month]
			out = append(out, p)
		}
		if err := rows.Err(); err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		writeJSON(w, periodsEnvelope(out))
	}
}

// DashboardStats aggregates income, spending and top categories. Excluded
// and neutral rows never count; optional year/month query params narrow the
// window.
func DashboardStats(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		where := ` WHERE NOT is_excluded AND NOT is_neutral`
		args := []interface{}{}
		if s := q.Get("year"); s != "" {
			y, err := strconv.Atoi(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "year must be an integer")
				return
			}
			args = append(args, y)
			where += ` AND EXTRACT(YEAR FROM data_valuta)::int = $` + strconv.Itoa(len(args))
		}
		if s := q.Get("month"); s != "" {
			m, err := strconv.Atoi(s)
			if err != nil || m < 1 || m > 12 {
				writeError(w, http.StatusBadRequest, "month must be 1..12")
				return
			}
			args = append(args, m)
			where += ` AND EXTRACT(MONTH FROM data_valuta)::int = $` + strconv.Itoa(len(args))
		}

		var entrate, uscite float64
		var count int64
		err := db.QueryRow(`
			SELECT COALESCE(SUM(CASE WHEN importo > 0 THEN importo ELSE 0 END), 0)::float8,
			       COALESCE(SUM(CASE WHEN importo < 0 THEN -importo ELSE 0 END), 0)::float8,
			       COUNT(*)
			FROM spese_transactions`+where, args...).Scan(&entrate, &uscite, &count)
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}

		rows, err := db.Query(`
			SELECT COALESCE(NULLIF(TRIM(categoria), ''), 'Senza categoria'),
			       SUM(-importo)::float8
			FROM spese_transactions`+where+` AND importo < 0
			GROUP BY 1
			ORDER BY 2 DESC
			LIMIT 3`, args...)
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		defer rows.Close()
		type categoryTotal struct {
			Categoria string  `json:"categoria"`
			Totale    float64 `json:"totale"`
		}
		top := []categoryTotal{}
		for rows.Next() {
			var c categoryTotal
			if err := rows.Scan(&c.Categoria, &c.Totale); err != nil {
				writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			c.Totale = roundTo2(c.Totale)
			top = append(top, c)
		}

		writeJSON(w, map[string]interface{}{
			"entrate":        roundTo2(entrate),
			"uscite":         roundTo2(uscite),
			"saldo":          roundTo2(entrate - uscite),
			"count":          count,
			"top_categories": top,
		})
	}
}
