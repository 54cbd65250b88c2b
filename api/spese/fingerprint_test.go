package spese

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeDescription(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and collapse", "  Pagamento   POS  Esselunga ", "pagamento pos esselunga"},
		{"nbsp treated as space", "Bonifico da Mario", "bonifico da mario"},
		{"trailing reference stripped", "Pagamento POS rif. 1234567890", "pagamento pos"},
		{"trailing ref with prefix id", "Addebito SDD id: 00012345678", "addebito sdd"},
		{"bare trailing digit run stripped", "Bonifico stipendio 202403150001", "bonifico stipendio"},
		{"short digit runs kept", "Esselunga negozio 42", "esselunga negozio 42"},
		{"only one trailing token removed", "Rif 1234567 rif 7654321", "rif 1234567"},
		{"reference-only description kept whole", "1234567890", "1234567890"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeDescription(tc.in))
		})
	}
}

func TestFingerprintStability(t *testing.T) {
	amount := decimal.RequireFromString("-45.90")

	base := Fingerprint("2024-03-15", amount, "Pagamento POS Esselunga", "Conto Principale")

	// formatting noise never changes the identity
	assert.Equal(t, base, Fingerprint("2024-03-15", amount, "  pagamento   pos  ESSELUNGA ", " conto principale "))
	// a successive export with a fresh reference number is the same transaction
	assert.Equal(t, base, Fingerprint("2024-03-15", amount, "Pagamento POS Esselunga rif. 9876543210", "Conto Principale"))

	// any identity field change produces a different fingerprint
	assert.NotEqual(t, base, Fingerprint("2024-03-16", amount, "Pagamento POS Esselunga", "Conto Principale"))
	assert.NotEqual(t, base, Fingerprint("2024-03-15", decimal.RequireFromString("-45.91"), "Pagamento POS Esselunga", "Conto Principale"))
	assert.NotEqual(t, base, Fingerprint("2024-03-15", amount, "Pagamento POS Coop", "Conto Principale"))
	assert.NotEqual(t, base, Fingerprint("2024-03-15", amount, "Pagamento POS Esselunga", "Carta"))
}

func TestFingerprintAmountScaleNormalized(t *testing.T) {
	a := decimal.RequireFromString("100")
	b := decimal.RequireFromString("100.00")
	assert.Equal(t,
		Fingerprint("2024-01-01", a, "Bonifico", "Conto"),
		Fingerprint("2024-01-01", b, "Bonifico", "Conto"))
}

func TestFingerprintRecord(t *testing.T) {
	rec := RawRecord{
		DataValuta: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Operazione: "Pagamento POS Esselunga",
		ContoCarta: "Conto Principale",
		Importo:    decimal.RequireFromString("-45.90"),
	}
	assert.Equal(t,
		Fingerprint("2024-03-15", rec.Importo, rec.Operazione, rec.ContoCarta),
		FingerprintRecord(rec))
}
