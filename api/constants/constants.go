package constants

// Common error messages
const (
	ErrInvalidJSON        = "invalid json or missing fields"
	ErrInvalidJSONShort   = "Invalid JSON"
	ErrDB                 = "DB error"
	ErrInvalidRequestBody = "Invalid request body"
	ErrMethodNotAllowed   = "Method Not Allowed"
	ErrExpenseNotFound    = "Expense not found"
	ErrKeywordNotFound    = "Keyword not found"
	ErrMittenteNotFound   = "Mittente not found"
)

// Content Types
const (
	ContentTypeJSON = "application/json"
	HeaderContent   = "Content-Type"
)

// Date formats
const (
	DateTimeFormat  = "2006-01-02 15:04:05"
	DateFormat      = "2006-01-02"
	DateFormatAlt   = "02-01-2006"
	DateFormatSlash = "02/Jan/2006"
	DateFormatDash  = "02-Jan-2006"
)

// NBSP is the non-breaking space occasionally found in spreadsheet cells.
const NBSP = " "

// MonthNamesIT maps month numbers to the Italian names used in ledger and
// dashboard responses.
var MonthNamesIT = map[int]string{
	1: "Gennaio", 2: "Febbraio", 3: "Marzo", 4: "Aprile",
	5: "Maggio", 6: "Giugno", 7: "Luglio", 8: "Agosto",
	9: "Settembre", 10: "Ottobre", 11: "Novembre", 12: "Dicembre",
}
