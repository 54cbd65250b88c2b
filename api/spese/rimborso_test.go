package spese

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkMonth(year, month int, amount float64) UnpaidMonth {
	return UnpaidMonth{Year: year, Month: month, Amount: amount}
}

func TestEligibleMonthsExcludesTransferMonthAndLater(t *testing.T) {
	unpaid := []UnpaidMonth{
		mkMonth(2024, 3, -200),
		mkMonth(2024, 1, -120),
		mkMonth(2024, 2, -80.5),
		mkMonth(2024, 4, -50),
	}
	eligible := eligibleMonths(unpaid, "2024-04-10")
	require.Len(t, eligible, 3, "the month the transfer lands in is never reimbursable by it")

	// sorted oldest first regardless of input order
	assert.Equal(t, 1, eligible[0].Month)
	assert.Equal(t, 2, eligible[1].Month)
	assert.Equal(t, 3, eligible[2].Month)

	assert.Empty(t, eligibleMonths(unpaid, "2024-01-05"))
}

func TestBestContiguousWindowPrefersExactRun(t *testing.T) {
	eligible := []UnpaidMonth{
		mkMonth(2024, 1, -120.00),
		mkMonth(2024, 2, -80.50),
		mkMonth(2024, 3, -200.00),
	}
	tx := decimal.RequireFromString("200.50")
	tol := decimal.RequireFromString("1.00")

	months, total, diff, ok := bestContiguousWindow(eligible, tx, tol)
	require.True(t, ok)
	// January+February sum to exactly 200.50, beating March alone (diff 0.50)
	require.Len(t, months, 2)
	assert.Equal(t, 1, months[0].Month)
	assert.Equal(t, 2, months[1].Month)
	assert.True(t, total.Equal(decimal.RequireFromString("-200.50")))
	assert.True(t, diff.IsZero())
}

func TestBestContiguousWindowSingleMonthFallback(t *testing.T) {
	eligible := []UnpaidMonth{
		mkMonth(2024, 1, -120.00),
		mkMonth(2024, 2, -80.50),
		mkMonth(2024, 3, -200.00),
	}
	months, _, diff, ok := bestContiguousWindow(eligible, decimal.RequireFromString("199.80"), decimal.RequireFromString("1.00"))
	require.True(t, ok)
	require.Len(t, months, 1)
	assert.Equal(t, 3, months[0].Month)
	assert.True(t, diff.Equal(decimal.RequireFromString("0.20")))
}

func TestBestContiguousWindowRespectsCap(t *testing.T) {
	eligible := []UnpaidMonth{
		mkMonth(2024, 1, -10), mkMonth(2024, 2, -10), mkMonth(2024, 3, -10),
		mkMonth(2024, 4, -10), mkMonth(2024, 5, -10),
	}
	// only a five-month run sums to 50, above the window cap
	_, _, _, ok := bestContiguousWindow(eligible, decimal.RequireFromString("50.00"), decimal.Zero)
	assert.False(t, ok)

	// a four-month run is allowed
	months, _, _, ok := bestContiguousWindow(eligible, decimal.RequireFromString("40.00"), decimal.Zero)
	require.True(t, ok)
	assert.Len(t, months, 4)
}

func TestBestContiguousWindowTieGoesToEarliest(t *testing.T) {
	eligible := []UnpaidMonth{
		mkMonth(2024, 1, -100.00),
		mkMonth(2024, 2, -100.00),
	}
	months, _, diff, ok := bestContiguousWindow(eligible, decimal.RequireFromString("100.00"), decimal.RequireFromString("5.00"))
	require.True(t, ok)
	require.Len(t, months, 1)
	assert.Equal(t, 1, months[0].Month, "equal diffs keep the earliest window")
	assert.True(t, diff.IsZero())
}

func TestBestContiguousWindowOutsideTolerance(t *testing.T) {
	eligible := []UnpaidMonth{mkMonth(2024, 1, -100.00)}
	_, _, _, ok := bestContiguousWindow(eligible, decimal.RequireFromString("150.00"), decimal.RequireFromString("5.00"))
	assert.False(t, ok)
}

func TestBestContiguousWindowEmptyInput(t *testing.T) {
	_, _, _, ok := bestContiguousWindow(nil, decimal.RequireFromString("100.00"), decimal.RequireFromString("5.00"))
	assert.False(t, ok)
}
