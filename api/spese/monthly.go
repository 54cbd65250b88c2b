package spese

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"SpeseTracker/api/constants"
)

// GetMonthlyStatus handles GET /spese/monthly-status and returns a
// "YYYY-MM" -> paid map covering every recorded month.
func GetMonthlyStatus(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.Query(`SELECT year, month, is_paid FROM monthly_status ORDER BY year, month`)
		if err != nil {
			writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		defer rows.Close()
		out := map[string]bool{}
		for rows.Next() {
			var s MonthlyStatus
			if err := rows.Scan(&s.Year, &s.Month, &s.IsPaid); err != nil {
				writeError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
				return
			}
			out[fmt.Sprintf("%04d-%02d", s.Year, s.Month)] = s.IsPaid
		}
		writeJSON(w, out)
	}
}

// SetMonthlyStatus handles POST /spese/monthly-status, upserting the paid
// flag for one month.
func SetMonthlyStatus(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MonthlyStatus
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if req.Month < 1 || req.Month > 12 || req.Year < 1900 {
			writeError(w, http.StatusBadRequest, "invalid year/month")
			return
		}
		if _, err := db.Exec(`
			INSERT INTO monthly_status (year, month, is_paid)
			VALUES ($1, $2, $3)
			ON CONFLICT (year, month) DO UPDATE SET is_paid = EXCLUDED.is_paid`,
			req.Year, req.Month, req.IsPaid); err != nil {
			writeError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		writeJSON(w, req)
	}
}
