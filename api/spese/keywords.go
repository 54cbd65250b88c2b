package spese

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"SpeseTracker/api/constants"
)

// ListKeywords handles GET /spese/neutral-keywords. Keywords linked to a
// reimbursement sender are flagged so the frontend can show where they came
// from.
func ListKeywords(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.Query(`
			SELECT k.id, k.keyword, (m.id IS NOT NULL) AS is_rimborso
			FROM neutral_keywords k
			LEFT JOIN rimborso_mittenti m ON m.keyword_id = k.id
			ORDER BY k.keyword`)
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		defer rows.Close()
		out := []NeutralKeyword{}
		for rows.Next() {
			var k NeutralKeyword
			if err := rows.Scan(&k.ID, &k.Keyword, &k.IsRimborso); err != nil {
				writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			out = append(out, k)
		}
		writeJSON(w, out)
	}
}

// AddKeyword inserts a neutral keyword and reclassifies the whole table
// against the updated list, so matching rows drop out of the totals at once.
func AddKeyword(db *sql.DB, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Keyword string `json:"keyword"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || normalizeCell(req.Keyword) == "" {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		keyword := normalizeCell(req.Keyword)

		var k NeutralKeyword
		err := db.QueryRow(`INSERT INTO neutral_keywords (keyword) VALUES ($1) RETURNING id, keyword`, keyword).
			Scan(&k.ID, &k.Keyword)
		if err != nil {
			if isUniqueViolation(err) {
				writeError(w, http.StatusConflict, "Keyword già presente.")
				return
			}
			writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}

		if err := reclassifyWithSnapshot(r, db, pool); err != nil {
			writeError(w, http.StatusInternalServerError, "reclassification failed: "+err.Error())
			return
		}
		writeJSON(w, k)
	}
}

// DeleteKeyword removes a keyword, severs any sender link pointing at it and
// reclassifies so rows it was neutralizing rejoin the totals.
func DeleteKeyword(db *sql.DB, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		if _, err := db.Exec(`UPDATE rimborso_mittenti SET keyword_id = NULL WHERE keyword_id = $1`, id); err != nil {
			writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		res, err := db.Exec(`DELETE FROM neutral_keywords WHERE id = $1`, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			writeError(w, http.StatusNotFound, constants.ErrKeywordNotFound)
			return
		}
		if err := reclassifyWithSnapshot(r, db, pool); err != nil {
			writeError(w, http.StatusInternalServerError, "reclassification failed: "+err.Error())
			return
		}
		writeJSON(w, map[string]interface{}{"deleted": id})
	}
}
