package spese

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkRecord(date string, operazione string, importo string) RawRecord {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return RawRecord{
		DataValuta: d,
		Operazione: operazione,
		ContoCarta: "Conto Principale",
		Valuta:     "EUR",
		Importo:    decimal.RequireFromString(importo),
	}
}

func TestPlanBatchDedupesWithinBatch(t *testing.T) {
	records := []RawRecord{
		mkRecord("2024-03-15", "Pagamento POS Esselunga", "-45.90"),
		mkRecord("2024-03-15", "Pagamento POS Esselunga", "-45.90"),
		mkRecord("2024-03-16", "Bonifico stipendio", "1500.00"),
	}
	planned, duplicates := planBatch(records, nil, func(string) bool { return false })
	assert.Equal(t, 1, duplicates)
	require.Len(t, planned, 2)
	assert.Equal(t, "Pagamento POS Esselunga", planned[0].rec.Operazione)
	assert.Equal(t, "Bonifico stipendio", planned[1].rec.Operazione)
}

func TestPlanBatchSkipsAlreadyStoredRows(t *testing.T) {
	records := []RawRecord{
		mkRecord("2024-03-15", "Pagamento POS Esselunga", "-45.90"),
		mkRecord("2024-03-16", "Bonifico stipendio", "1500.00"),
	}
	// re-uploading the same file: every fingerprint already exists
	planned, duplicates := planBatch(records, nil, func(string) bool { return true })
	assert.Empty(t, planned)
	assert.Equal(t, 2, duplicates)
}

func TestPlanBatchIgnoresReferenceNoise(t *testing.T) {
	records := []RawRecord{
		mkRecord("2024-03-15", "Pagamento POS Esselunga rif. 1111222233", "-45.90"),
		mkRecord("2024-03-15", "Pagamento POS Esselunga rif. 9999888877", "-45.90"),
	}
	planned, duplicates := planBatch(records, nil, func(string) bool { return false })
	assert.Len(t, planned, 1, "same transaction under two export reference numbers")
	assert.Equal(t, 1, duplicates)
}

func TestFuzzyMatchIgnoresReferenceChurn(t *testing.T) {
	// a stored row keeps its trailing bank reference as imported
	stored := []string{"Pagamento POS Esselunga rif. 1111222233"}

	// the next export renumbered the reference and shifted the value date;
	// the normalized descriptions still agree
	assert.True(t, fuzzyMatch("Pagamento POS Esselunga rif. 9999888877", stored))
	assert.True(t, fuzzyMatch("  pagamento   POS Esselunga ", stored))

	assert.False(t, fuzzyMatch("Pagamento POS Coop rif. 9999888877", stored))
	assert.False(t, fuzzyMatch("Pagamento POS Esselunga", nil))
}

func TestPlanBatchClassifiesNeutralRows(t *testing.T) {
	records := []RawRecord{
		mkRecord("2024-03-15", "Giroconto verso deposito", "-500.00"),
		mkRecord("2024-03-16", "Pagamento POS Esselunga", "-45.90"),
	}
	planned, duplicates := planBatch(records, []string{"giroconto"}, func(string) bool { return false })
	assert.Equal(t, 0, duplicates)
	require.Len(t, planned, 2)
	assert.True(t, planned[0].isNeutral)
	assert.False(t, planned[1].isNeutral)
}
