package lexicon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"order_total", []string{"order", "total"}},
		{"OrderTotal", []string{"order", "total"}},
		{"orderTotals", []string{"order", "total"}},
		{"customers", []string{"customer"}},
		{"HTTPStatus", []string{"http", "status"}},
		{"top customers by revenue", []string{"top", "customer", "by", "revenue"}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestMatchScore(t *testing.T) {
	lex := Default()
	revenue := lex.Terms("revenue")
	require.Equal(t, "revenue", revenue[0])

	assert.Equal(t, 4, MatchScore("revenue", revenue))
	assert.Equal(t, 3, MatchScore("order_total", revenue))
	assert.Equal(t, 3, MatchScore("subtotal", revenue))
	assert.Equal(t, 2, MatchScore("net_revenue", revenue))
	assert.Equal(t, 0, MatchScore("created_at", revenue))

	customer := lex.Terms("customers")
	assert.Equal(t, 4, MatchScore("customers", customer))
	assert.Equal(t, 2, MatchScore("customer_id", customer))
	assert.Equal(t, 3, MatchScore("clients", customer))
}

func TestLookups(t *testing.T) {
	lex := Default()

	name, term, ok := lex.MetricFor("total sales")
	require.True(t, ok)
	assert.Equal(t, "revenue", name)
	assert.Equal(t, models.AggregationSum, term.Aggregation)

	entity, ok := lex.EntityFor("our biggest clients")
	require.True(t, ok)
	assert.Equal(t, "customer", entity)

	dim, ok := lex.DimensionFor("sales territory")
	require.True(t, ok)
	assert.Equal(t, "region", dim)

	_, _, ok = lex.MetricFor("performance")
	assert.False(t, ok)
	vague, ok := lex.VagueMetric("customer performance")
	require.True(t, ok)
	assert.Equal(t, "performance", vague)

	q, ok := lex.VagueQualifier("active users")
	require.True(t, ok)
	assert.Equal(t, "active", q)
}

func TestIsNonCommittal(t *testing.T) {
	lex := Default()
	assert.True(t, lex.IsNonCommittal(""))
	assert.True(t, lex.IsNonCommittal("  I don't know. "))
	assert.True(t, lex.IsNonCommittal("whatever"))
	assert.False(t, lex.IsNonCommittal("revenue by region"))
}

func TestStarters(t *testing.T) {
	lex := Default()
	assert.Equal(t, lex.RoleStarters["marketing"], lex.Starters("Marketing manager"))
	assert.Equal(t, lex.DefaultStarters, lex.Starters("astronaut"))
	assert.NotEmpty(t, lex.Starters(""))
}

func TestKeyColumns(t *testing.T) {
	lex := Default()
	assert.True(t, lex.IsKeyColumn("id"))
	assert.True(t, lex.IsKeyColumn("customer_id"))
	assert.True(t, lex.IsKeyColumn("CUSTOMER_KEY"))
	assert.False(t, lex.IsKeyColumn("order_total"))

	assert.Equal(t, "customer", lex.KeyEntity("customer_id"))
	assert.Equal(t, "customer", lex.KeyEntity("customers_id"))
	assert.Equal(t, "", lex.KeyEntity("id"))

	assert.True(t, lex.IsLabelColumn("name"))
	assert.True(t, lex.IsLabelColumn("customer_name"))
	assert.False(t, lex.IsLabelColumn("region"))
}

func TestAmbiguousMeanings(t *testing.T) {
	lex := Default()
	assert.Len(t, lex.AmbiguousMeanings("accounts"), 3)
	assert.Nil(t, lex.AmbiguousMeanings("customer"))
}

func TestLoad(t *testing.T) {
	lex, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, lex.Metrics)

	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
metrics:
  bookings:
    aggregation: count
    synonyms: [reservation]
`), 0o600))

	custom, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"booking", "reservation"}, custom.Terms("bookings"))
	assert.Equal(t, []string{"_id"}, custom.KeySuffixes)

	require.NoError(t, os.WriteFile(path, []byte("entities: {}\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
