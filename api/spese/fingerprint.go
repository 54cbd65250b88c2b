package spese

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"SpeseTracker/api/constants"
)

// trailingRefRe matches a trailing bank reference token: a final run
// containing at least six digits, optionally introduced by rif/ref/id.
// These tokens change between successive exports of the same statement
// window, so they must not take part in duplicate detection.
var trailingRefRe = regexp.MustCompile(`(?i)\s+(?:(?:rif|ref|id)[.:]?\s*)?[a-z0-9]*\d{6,}[a-z0-9]*$`)

// NormalizeDescription canonicalizes an operation description for
// fingerprinting: NBSP removal, whitespace collapse, lowercasing, and
// stripping one trailing reference token.
//
// The normalization is deliberately conservative: only a single trailing
// token is removed, and only when it carries a long digit run. Two genuinely
// distinct same-day transactions keep distinct fingerprints unless they agree
// on date, amount, account AND the full non-reference description, which is
// the same collision the upstream bank export itself cannot distinguish.
func NormalizeDescription(s string) string {
	s = strings.ReplaceAll(s, constants.NBSP, " ")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToLower(s)
	stripped := strings.TrimSpace(trailingRefRe.ReplaceAllString(s, ""))
	if stripped == "" {
		// description was nothing but a reference number; keep it whole
		return s
	}
	return stripped
}

// Fingerprint derives the stable duplicate-detection identity of a
// transaction from (value date, amount, description, account label).
func Fingerprint(dataValuta string, importo decimal.Decimal, operazione, contoCarta string) string {
	raw := fmt.Sprintf("%s|%s|%s|%s",
		strings.TrimSpace(dataValuta),
		importo.StringFixed(2),
		NormalizeDescription(operazione),
		strings.ToLower(strings.TrimSpace(contoCarta)),
	)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// FingerprintRecord computes the fingerprint of a parsed statement row.
func FingerprintRecord(rec RawRecord) string {
	return Fingerprint(rec.DataValuta.Format(constants.DateFormat), rec.Importo, rec.Operazione, rec.ContoCarta)
}
