package spese

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one bank-statement line item as persisted and served to the
// frontend. Importo is positive for income and negative for expenses.
type Transaction struct {
	ID          int64   `json:"id"`
	DataValuta  string  `json:"data_valuta"`
	Operazione  string  `json:"operazione"`
	ContoCarta  string  `json:"conto_carta"`
	Categoria   string  `json:"categoria"`
	Valuta      string  `json:"valuta"`
	Importo     float64 `json:"importo"`
	IsExcluded  bool    `json:"is_excluded"`
	IsNeutral   bool    `json:"is_neutral"`
	Fingerprint string  `json:"fingerprint"`
}

// RawRecord is a normalized statement row produced by the parser, before
// classification and persistence.
type RawRecord struct {
	DataValuta time.Time
	Operazione string
	ContoCarta string
	Categoria  string
	Valuta     string
	Importo    decimal.Decimal
}

// IngestStats is the per-file result of an ingestion run.
type IngestStats struct {
	New        int    `json:"new"`
	Duplicates int    `json:"duplicates"`
	Errors     int    `json:"errors"`
	BatchID    string `json:"batch_id,omitempty"`
}

// Add accumulates another file's stats into s (multi-file uploads).
func (s *IngestStats) Add(o IngestStats) {
	s.New += o.New
	s.Duplicates += o.Duplicates
	s.Errors += o.Errors
}

type NeutralKeyword struct {
	ID         int64  `json:"id"`
	Keyword    string `json:"keyword"`
	IsRimborso bool   `json:"is_rimborso"`
}

type RimborsoMittente struct {
	ID         int64   `json:"id"`
	Operazione string  `json:"operazione"`
	KeywordID  *int64  `json:"keyword_id"`
	Tolleranza float64 `json:"tolleranza"`
	Attivo     bool    `json:"attivo"`
}

type MonthlyStatus struct {
	Year   int  `json:"year"`
	Month  int  `json:"month"`
	IsPaid bool `json:"is_paid"`
}

// UnpaidMonth is a month with an outstanding reimbursable total.
type UnpaidMonth struct {
	Year      int     `json:"year"`
	Month     int     `json:"month"`
	MonthName string  `json:"month_name"`
	Amount    float64 `json:"amount"`
}

// RimborsoCandidate proposes marking a contiguous run of unpaid months as
// paid by an incoming transfer. Detection is read-only; the caller confirms
// through a separate endpoint.
type RimborsoCandidate struct {
	Transaction Transaction   `json:"transaction"`
	Months      []UnpaidMonth `json:"months"`
	MonthsTotal float64       `json:"months_total"`
	Diff        float64       `json:"diff"`
}
