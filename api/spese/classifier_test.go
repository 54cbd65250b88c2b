package spese

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNeutralDescription(t *testing.T) {
	keywords := []string{"mario rossi", "giroconto", ""}

	cases := []struct {
		name       string
		operazione string
		want       bool
	}{
		{"substring match", "Bonifico da MARIO ROSSI per cena", true},
		{"case insensitive", "GIROCONTO verso conto deposito", true},
		{"no match", "Pagamento POS Esselunga", false},
		{"keyword inside a longer token", "Storno girocontobancario interno", true},
		{"empty description", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsNeutralDescription(tc.operazione, keywords))
		})
	}

	// empty keyword entries never match everything
	assert.False(t, IsNeutralDescription("qualsiasi movimento", []string{""}))
	assert.False(t, IsNeutralDescription("qualsiasi movimento", nil))
}
