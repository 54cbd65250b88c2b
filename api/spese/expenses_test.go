package spese

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildExpenseListQuery(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		query, args, err := buildExpenseListQuery(url.Values{})
		require.NoError(t, err)
		assert.Empty(t, args)
		assert.Contains(t, query, "ORDER BY data_valuta DESC, id DESC")
	})

	t.Run("search matches description, category and account", func(t *testing.T) {
		q := url.Values{"search_text": {" esselunga "}}
		query, args, err := buildExpenseListQuery(q)
		require.NoError(t, err)
		require.Len(t, args, 1)
		assert.Equal(t, "%esselunga%", args[0])
		assert.Contains(t, query, "operazione ILIKE $1")
		assert.Contains(t, query, "categoria ILIKE $1")
		assert.Contains(t, query, "conto_carta ILIKE $1")
	})

	t.Run("date range", func(t *testing.T) {
		q := url.Values{"start_date": {"2024-01-01"}, "end_date": {"2024-03-31"}}
		query, args, err := buildExpenseListQuery(q)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"2024-01-01", "2024-03-31"}, args)
		assert.Contains(t, query, "data_valuta >= $1::date")
		assert.Contains(t, query, "data_valuta <= $2::date")
	})

	t.Run("malformed dates rejected", func(t *testing.T) {
		_, _, err := buildExpenseListQuery(url.Values{"start_date": {"31/03/2024"}})
		assert.Error(t, err)
		_, _, err = buildExpenseListQuery(url.Values{"end_date": {"soon"}})
		assert.Error(t, err)
	})
}

func TestPeriodsEnvelope(t *testing.T) {
	periods := []statementPeriod{
		{Year: 2024, Month: 3, MonthName: "Marzo"},
		{Year: 2024, Month: 1, MonthName: "Gennaio"},
		{Year: 2023, Month: 12, MonthName: "Dicembre"},
	}
	env := periodsEnvelope(periods)
	assert.Equal(t, []int{2024, 2023}, env["years"])
	assert.Equal(t, 2024, env["latest_year"])
	assert.Equal(t, 3, env["latest_month"])
	assert.Equal(t, periods, env["periods"])
}

func TestPeriodsEnvelopeEmpty(t *testing.T) {
	env := periodsEnvelope(nil)
	assert.Equal(t, []int{}, env["years"])
	assert.NotContains(t, env, "latest_year")
	assert.NotContains(t, env, "latest_month")
}
