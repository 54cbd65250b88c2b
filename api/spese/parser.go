package spese

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"SpeseTracker/api/constants"
)

// Sentinel errors surfaced to the upload handler. A layout error fails the
// whole file; row-level problems are counted and skipped instead.
var (
	ErrUnsupportedFile     = errors.New("unsupported or unreadable file")
	ErrUnrecognizedLayout  = errors.New("no recognizable statement header found")
	ErrNoDataRows          = errors.New("statement has no data rows")
	errRowMissingDate      = errors.New("row has no parseable date")
	errRowMissingAmount    = errors.New("row has no parseable amount")
	errRowMissingEntrambi  = errors.New("row has neither debit nor credit value")
	errRowEmptyDescription = errors.New("row has an empty description")
)

// statementLayout tags the detected column arrangement of an uploaded file.
type statementLayout int

const (
	layoutUnknown statementLayout = iota
	// one signed amount column (the home-banking export: Data / Operazione /
	// Conto o carta / Categoria / Valuta / Importo)
	layoutSingleAmount
	// separate debit and credit columns merged into one signed amount
	layoutSplitAmount
)

func (l statementLayout) String() string {
	switch l {
	case layoutSingleAmount:
		return "single-amount"
	case layoutSplitAmount:
		return "split-debit-credit"
	}
	return "unknown"
}

// columnMap is the explicit resolution of header names to column indexes for
// one detected layout. -1 means the column is absent.
type columnMap struct {
	layout   statementLayout
	date     int
	desc     int
	account  int
	category int
	currency int
	amount   int
	debit    int
	credit   int
}

// ParsedStatement is the parser output for one uploaded file.
type ParsedStatement struct {
	Layout    string
	Records   []RawRecord
	RowErrors int
}

// header-name variants per logical column, compared after normalizeCell +
// lowercase. Two bank-export families are covered: the single signed Importo
// column and the split Dare/Avere (debit/credit) pair.
var (
	dateHeaders = []string{"data", "data valuta", "data operazione", "data contabile", "value date", "date"}
	descHeaders = []string{"operazione", "descrizione", "descrizione operazione", "description", "transaction remarks"}
	acctHeaders = []string{"conto o carta", "conto/carta", "conto", "carta", "account"}
	catHeaders  = []string{"categoria", "category"}
	currHeaders = []string{"valuta", "divisa", "currency"}
	amtHeaders  = []string{"importo", "importo (eur)", "importo (€)", "amount"}
	debHeaders  = []string{"dare", "addebiti", "addebito", "uscite", "debit", "withdrawal"}
	creHeaders  = []string{"avere", "accrediti", "accredito", "entrate", "credit", "deposit"}
)

// headerScanLimit bounds how many leading rows are checked for the header row.
// Home-banking exports put logos and account info above the table.
const headerScanLimit = 40

// normalizeCell trims, removes non-breaking spaces and collapses whitespace
func normalizeCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, constants.NBSP, " ")
	return strings.Join(strings.Fields(s), " ")
}

func matchHeader(cell string, variants []string) bool {
	v := strings.ToLower(normalizeCell(cell))
	for _, h := range variants {
		if v == h {
			return true
		}
	}
	return false
}

// resolveColumns inspects a candidate header row and, when it contains a date
// column, a description column and either a signed amount column or a
// debit/credit pair, returns the resolved column map.
func resolveColumns(row []string) (columnMap, bool) {
	cm := columnMap{date: -1, desc: -1, account: -1, category: -1, currency: -1, amount: -1, debit: -1, credit: -1}
	for i, cell := range row {
		switch {
		case cm.date == -1 && matchHeader(cell, dateHeaders):
			cm.date = i
		case cm.desc == -1 && matchHeader(cell, descHeaders):
			cm.desc = i
		case cm.account == -1 && matchHeader(cell, acctHeaders):
			cm.account = i
		case cm.category == -1 && matchHeader(cell, catHeaders):
			cm.category = i
		case cm.currency == -1 && matchHeader(cell, currHeaders):
			cm.currency = i
		case cm.amount == -1 && matchHeader(cell, amtHeaders):
			cm.amount = i
		case cm.debit == -1 && matchHeader(cell, debHeaders):
			cm.debit = i
		case cm.credit == -1 && matchHeader(cell, creHeaders):
			cm.credit = i
		}
	}
	if cm.date == -1 || cm.desc == -1 {
		return cm, false
	}
	if cm.amount != -1 {
		cm.layout = layoutSingleAmount
		return cm, true
	}
	if cm.debit != -1 && cm.credit != -1 {
		cm.layout = layoutSplitAmount
		return cm, true
	}
	return cm, false
}

// allEmptyRow returns true when every cell in the row is empty or whitespace
func allEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// readRows extracts the raw cell grid from xlsx, legacy xls or csv content,
// in that order, mirroring the upload fallback chain used for bank files.
func readRows(fileBytes []byte) ([][]string, error) {
	xl, xlErr := excelize.OpenReader(bytes.NewReader(fileBytes))
	if xlErr == nil {
		defer xl.Close()
		sheetName := xl.GetSheetName(0)
		rows, err := xl.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("failed to read xlsx rows: %w", err)
		}
		return rows, nil
	}

	if wb, err := xls.OpenReader(bytes.NewReader(fileBytes), "utf-8"); err == nil {
		sheet := wb.GetSheet(0)
		if sheet == nil {
			return nil, errors.New("xls file has no sheets")
		}
		var rows [][]string
		for i := 0; i <= int(sheet.MaxRow); i++ {
			row := sheet.Row(i)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			var vals []string
			for j := 0; j <= row.LastCol(); j++ {
				vals = append(vals, row.Col(j))
			}
			rows = append(rows, vals)
		}
		return rows, nil
	}

	r := csv.NewReader(bytes.NewReader(fileBytes))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, ErrUnsupportedFile
	}
	return rows, nil
}

// currencySymbolRe strips euro/dollar/pound signs and spaces before numeric parsing.
var currencySymbolRe = regexp.MustCompile(`[€$£\s\x{00a0}]`)

// parseImporto parses a currency cell into a decimal, handling both the
// Italian convention ('.' thousands, ',' decimals: "1.200,50") and the plain
// format ("1200.50"). If both separators appear the comma wins as decimal
// separator; a lone comma is treated as the decimal separator.
func parseImporto(value string) (decimal.Decimal, error) {
	s := currencySymbolRe.ReplaceAllString(strings.TrimSpace(value), "")
	if s == "" {
		return decimal.Zero, errRowMissingAmount
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	if hasDot && hasComma {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else if hasComma {
		s = strings.ReplaceAll(s, ",", ".")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errRowMissingAmount
	}
	return d, nil
}

// parseDate tries the date layouts seen across home-banking exports,
// dd/mm/yyyy first so Italian statements never get misread as mm/dd.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date string")
	}
	layouts := []string{
		// dd/mm/yyyy variants - MUST be first
		"02/01/2006", "2/1/2006", "02/01/06", "2/1/06",
		"02-01-2006", "2-1-2006", "02.01.2006", "2.1.2006",
		// ISO and Excel-rendered forms
		constants.DateFormat, "2006/01/02", "2006-01-02 15:04:05", "2006-01-02T15:04:05", time.RFC3339,
		// named-month variants
		constants.DateFormatDash, constants.DateFormatSlash, "02-Jan-06", "2-Jan-2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, err := parseExcelSerialDate(s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("could not parse date: %s", s)
}

// parseExcelSerialDate converts an Excel serial date (possibly with fractional
// day time) into a time.Time. Serial 1 is 1900-01-01, and the count includes
// the nonexistent 1900-02-29.
func parseExcelSerialDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty excel serial")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	if f < 1 || f > 300000 {
		return time.Time{}, fmt.Errorf("implausible excel serial: %s", s)
	}
	days := int(f)
	frac := f - float64(days)
	if days > 59 { // Excel leap-year bug adjustment
		days--
	}
	base := time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
	d := base.AddDate(0, 0, days)
	d = d.Add(time.Duration(frac * float64(24*time.Hour)))
	return d, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// parseRow converts one data row into a RawRecord according to the resolved
// column map. Row-level failures return an error so the caller can count and
// skip them without failing the batch.
func parseRow(row []string, cm columnMap) (RawRecord, error) {
	var rec RawRecord

	dateCell := normalizeCell(cellAt(row, cm.date))
	if dateCell == "" {
		return rec, errRowMissingDate
	}
	t, err := parseDate(dateCell)
	if err != nil {
		return rec, errRowMissingDate
	}
	rec.DataValuta = t

	rec.Operazione = normalizeCell(cellAt(row, cm.desc))
	if rec.Operazione == "" || strings.EqualFold(rec.Operazione, "nan") {
		return rec, errRowEmptyDescription
	}

	rec.ContoCarta = normalizeCell(cellAt(row, cm.account))
	rec.Categoria = normalizeCell(cellAt(row, cm.category))
	rec.Valuta = normalizeCell(cellAt(row, cm.currency))
	if rec.Valuta == "" {
		rec.Valuta = "EUR"
	}

	switch cm.layout {
	case layoutSingleAmount:
		amt, err := parseImporto(cellAt(row, cm.amount))
		if err != nil {
			return rec, err
		}
		rec.Importo = amt
	case layoutSplitAmount:
		debCell := normalizeCell(cellAt(row, cm.debit))
		creCell := normalizeCell(cellAt(row, cm.credit))
		if debCell == "" && creCell == "" {
			return rec, errRowMissingEntrambi
		}
		amt := decimal.Zero
		if creCell != "" {
			c, err := parseImporto(creCell)
			if err != nil {
				return rec, err
			}
			// credit is incoming money, always positive
			amt = amt.Add(c.Abs())
		}
		if debCell != "" {
			d, err := parseImporto(debCell)
			if err != nil {
				return rec, err
			}
			// debit is outgoing money, always negative
			amt = amt.Sub(d.Abs())
		}
		rec.Importo = amt
	default:
		return rec, ErrUnrecognizedLayout
	}
	return rec, nil
}

// ParseStatement parses one uploaded spreadsheet into normalized records.
// The header row is located by scanning the leading rows; an unrecognized
// column layout fails the whole file. Malformed rows below the header are
// counted in RowErrors and skipped.
func ParseStatement(fileBytes []byte) (*ParsedStatement, error) {
	rows, err := readRows(fileBytes)
	if err != nil {
		return nil, err
	}

	headerIdx := -1
	var cm columnMap
	for i := 0; i < headerScanLimit && i < len(rows); i++ {
		if resolved, ok := resolveColumns(rows[i]); ok {
			headerIdx = i
			cm = resolved
			break
		}
	}
	if headerIdx == -1 {
		return nil, ErrUnrecognizedLayout
	}
	if headerIdx+1 >= len(rows) {
		return nil, ErrNoDataRows
	}

	out := &ParsedStatement{Layout: cm.layout.String()}
	for _, row := range rows[headerIdx+1:] {
		if allEmptyRow(row) {
			continue
		}
		rec, err := parseRow(row, cm)
		if err != nil {
			if errors.Is(err, errRowEmptyDescription) {
				// blank description rows are filler lines, not data errors
				continue
			}
			out.RowErrors++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	if len(out.Records) == 0 && out.RowErrors == 0 {
		return nil, ErrNoDataRows
	}
	return out, nil
}
