package spese

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildXLSX(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return buf.Bytes()
}

func TestParseStatementSingleAmountXLSX(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{
		{"Estratto conto"},
		{"Conto n. 1234", "", ""},
		{},
		{"Data", "Operazione", "Conto o carta", "Categoria", "Valuta", "Importo"},
		{"15/03/2024", "Pagamento POS Esselunga", "Conto Principale", "Spesa", "EUR", "-45,90"},
		{"16/03/2024", "Bonifico da Mario Rossi", "Conto Principale", "", "EUR", "1.200,50"},
		{"17/03/2024", "Prelievo ATM", "Carta", "Contanti", "", "-100"},
	})

	parsed, err := ParseStatement(data)
	require.NoError(t, err)
	assert.Equal(t, "single-amount", parsed.Layout)
	assert.Equal(t, 0, parsed.RowErrors)
	require.Len(t, parsed.Records, 3)

	first := parsed.Records[0]
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), first.DataValuta)
	assert.Equal(t, "Pagamento POS Esselunga", first.Operazione)
	assert.Equal(t, "Conto Principale", first.ContoCarta)
	assert.Equal(t, "Spesa", first.Categoria)
	assert.Equal(t, "EUR", first.Valuta)
	assert.True(t, first.Importo.Equal(decimal.RequireFromString("-45.90")))

	assert.True(t, parsed.Records[1].Importo.Equal(decimal.RequireFromString("1200.50")))

	// currency falls back to EUR when the cell is empty
	assert.Equal(t, "EUR", parsed.Records[2].Valuta)
	assert.True(t, parsed.Records[2].Importo.Equal(decimal.RequireFromString("-100")))
}

func TestParseStatementSplitDebitCreditCSV(t *testing.T) {
	csvData := strings.Join([]string{
		"Data,Descrizione,Dare,Avere",
		"01/02/2024,Pagamento bolletta,50.00,",
		"02/02/2024,Accredito stipendio,,30.00",
		"03/02/2024,Storno commissioni,-12.00,",
		"04/02/2024,Movimento incompleto,,",
	}, "\n")

	parsed, err := ParseStatement([]byte(csvData))
	require.NoError(t, err)
	assert.Equal(t, "split-debit-credit", parsed.Layout)
	require.Len(t, parsed.Records, 3)
	assert.Equal(t, 1, parsed.RowErrors, "row with neither debit nor credit counts as an error")

	// debit becomes negative regardless of its sign in the cell
	assert.True(t, parsed.Records[0].Importo.Equal(decimal.RequireFromString("-50.00")))
	assert.True(t, parsed.Records[2].Importo.Equal(decimal.RequireFromString("-12.00")))
	// credit becomes positive
	assert.True(t, parsed.Records[1].Importo.Equal(decimal.RequireFromString("30.00")))
}

func TestParseStatementCountsBadRows(t *testing.T) {
	rows := [][]interface{}{
		{"Data", "Operazione", "Importo"},
	}
	for i := 1; i <= 8; i++ {
		rows = append(rows, []interface{}{"10/01/2024", "Movimento regolare", "-10,00"})
	}
	rows = append(rows,
		[]interface{}{"not-a-date", "Movimento con data rotta", "-5,00"},
		[]interface{}{"11/01/2024", "Movimento senza importo", "n/d"},
	)

	parsed, err := ParseStatement(buildXLSX(t, rows))
	require.NoError(t, err)
	assert.Len(t, parsed.Records, 8)
	assert.Equal(t, 2, parsed.RowErrors)
}

func TestParseStatementSkipsBlankDescriptions(t *testing.T) {
	csvData := strings.Join([]string{
		"Data,Operazione,Importo",
		"01/02/2024,,-10.00",
		"02/02/2024,Movimento vero,-20.00",
	}, "\n")

	parsed, err := ParseStatement([]byte(csvData))
	require.NoError(t, err)
	require.Len(t, parsed.Records, 1)
	assert.Equal(t, 0, parsed.RowErrors, "blank-description rows are filler, not errors")
	assert.Equal(t, "Movimento vero", parsed.Records[0].Operazione)
}

func TestParseStatementUnrecognizedLayout(t *testing.T) {
	csvData := "Colonna1,Colonna2\nfoo,bar\n"
	_, err := ParseStatement([]byte(csvData))
	assert.ErrorIs(t, err, ErrUnrecognizedLayout)
}

func TestParseStatementNoDataRows(t *testing.T) {
	_, err := ParseStatement([]byte("Data,Operazione,Importo\n"))
	assert.ErrorIs(t, err, ErrNoDataRows)
}

func TestParseImporto(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1.200,50", want: "1200.50"},
		{in: "1200.50", want: "1200.50"},
		{in: "-45,00", want: "-45.00"},
		{in: "€ 30,00", want: "30.00"},
		{in: "1.234.567,89", want: "1234567.89"},
		{in: "-100", want: "-100"},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseImporto(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"15/03/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"15-Mar-2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"15/03/24", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		// ambiguous day/month resolves Italian-style, never mm/dd
		{"05/03/2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		// Excel serial date
		{"45370", time.Date(2024, 3, 19, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseDate(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want.Format("2006-01-02"), got.Format("2006-01-02"))
		})
	}

	_, err := parseDate("not a date")
	assert.Error(t, err)
	_, err = parseDate("9999999")
	assert.Error(t, err, "implausible excel serials are rejected")
}
