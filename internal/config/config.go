package config

const (
	DefaultTimeZone = "Europe/Rome"

	// Reimbursement matching defaults
	DefaultTolleranza = 5.0
	// A single incoming transfer can settle at most this many consecutive
	// unpaid months.
	MaxRimborsoWindow = 4
	// Months whose reimbursable total is below this threshold are skipped by
	// the matcher.
	MinReimbursableTotal = 0.01

	// Fuzzy duplicate detection window (same amount + description).
	FuzzyDuplicateDays = 2
)
