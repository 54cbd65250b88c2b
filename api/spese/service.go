package spese

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"SpeseTracker/internal/serviceiface"
)

type SpeseService struct {
	config map[string]interface{}
	db     *sql.DB
	pool   *pgxpool.Pool
}

func NewSpeseService(cfg map[string]interface{}, db *sql.DB, pool *pgxpool.Pool) serviceiface.Service {
	return &SpeseService{config: cfg, db: db, pool: pool}
}

func (s *SpeseService) Name() string {
	return "spese"
}

func (s *SpeseService) Start() error {
	port := "6143"
	if s.config != nil {
		if v, ok := s.config["port"]; ok && v != nil {
			port = fmt.Sprintf("%v", v)
		}
	}
	go StartSpeseService(port, s.db, s.pool)
	return nil
}

func (s *SpeseService) Stop() error {
	return nil
}

// StartSpeseService wires every expense endpoint onto a mux router and
// serves it on the given port.
func StartSpeseService(port string, db *sql.DB, pool *pgxpool.Pool) {
	r := mux.NewRouter()

	r.HandleFunc("/spese/upload", UploadExpenses(pool)).Methods("POST")

	r.HandleFunc("/spese/expenses", ListExpenses(db)).Methods("GET")
	r.HandleFunc("/spese/expenses", CreateExpense(db)).Methods("POST")
	r.HandleFunc("/spese/expenses/bulk-delete", BulkDeleteExpenses(db)).Methods("POST")
	r.HandleFunc("/spese/expenses/{id}/toggle", ToggleExpense(db)).Methods("PATCH")
	r.HandleFunc("/spese/expenses/{id}", UpdateExpense(db)).Methods("PATCH")
	r.HandleFunc("/spese/expenses/{id}", DeleteExpense(db)).Methods("DELETE")

	r.HandleFunc("/spese/available-periods", AvailablePeriods(db)).Methods("GET")
	r.HandleFunc("/spese/dashboard-stats", DashboardStats(db)).Methods("GET")

	r.HandleFunc("/spese/monthly-status", GetMonthlyStatus(db)).Methods("GET")
	r.HandleFunc("/spese/monthly-status", SetMonthlyStatus(db)).Methods("POST")

	r.HandleFunc("/spese/neutral-keywords", ListKeywords(db)).Methods("GET")
	r.HandleFunc("/spese/neutral-keywords", AddKeyword(db, pool)).Methods("POST")
	r.HandleFunc("/spese/neutral-keywords/{id}", DeleteKeyword(db, pool)).Methods("DELETE")

	r.HandleFunc("/spese/rimborso-mittenti", ListMittenti(db)).Methods("GET")
	r.HandleFunc("/spese/rimborso-mittenti", AddMittente(db, pool)).Methods("POST")
	r.HandleFunc("/spese/rimborso-mittenti/{id}", UpdateMittente(db)).Methods("PATCH")
	r.HandleFunc("/spese/rimborso-mittenti/{id}", DeleteMittente(db, pool)).Methods("DELETE")

	r.HandleFunc("/spese/detect-rimborso", DetectRimborso(db)).Methods("GET")
	r.HandleFunc("/spese/rimborso/confirm", ConfirmRimborso(db)).Methods("POST")

	log.Println("Spese service listening on port", port)
	err := http.ListenAndServe(":"+port, r)
	if err != nil {
		log.Println("Spese service stopped:", err)
	}
}
