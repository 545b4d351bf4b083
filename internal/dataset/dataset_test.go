package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/mining"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Data_Entry.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVSource_Transactions(t *testing.T) {
	path := writeCSV(t, "\ufeffImage Index,Finding Labels,Patient Age\n"+
		"00000001_000.png,Cardiomegaly|Emphysema,58\n"+
		"00000001_001.png, Effusion | Cardiomegaly |Effusion,58\n"+
		"00000002_000.png,No Finding,81\n"+
		"00000003_000.png,,74\n"+
		"00000004_000.png\n")

	source := NewCSVSource(path, "", "", "")
	transactions, err := source.Transactions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []domain.Transaction{
		{"Cardiomegaly", "Emphysema"},
		{"Cardiomegaly", "Effusion"},
		{"No Finding"},
		{"No Finding"},
		{"No Finding"},
	}, transactions)
	assert.Equal(t, "csv:"+path, source.Name())
}

func TestCSVSource_CustomColumn(t *testing.T) {
	path := writeCSV(t, "id,labels\n1,A;B\n2,C\n")

	transactions, err := NewCSVSource(path, "labels", ";", "Normal").Transactions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []domain.Transaction{{"A", "B"}, {"C"}}, transactions)
}

func TestCSVSource_Errors(t *testing.T) {
	t.Run("Missing file", func(t *testing.T) {
		_, err := NewCSVSource(filepath.Join(t.TempDir(), "absent.csv"), "", "", "").Transactions(context.Background())
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Empty file", func(t *testing.T) {
		_, err := NewCSVSource(writeCSV(t, ""), "", "", "").Transactions(context.Background())
		var dataErr *domain.DataError
		assert.ErrorAs(t, err, &dataErr)
	})

	t.Run("Missing column", func(t *testing.T) {
		_, err := NewCSVSource(writeCSV(t, "a,b\n1,2\n"), "", "", "").Transactions(context.Background())
		var dataErr *domain.DataError
		require.ErrorAs(t, err, &dataErr)
		assert.Equal(t, "label_column", dataErr.Field)
	})
}

func TestCSVSource_Cancelled(t *testing.T) {
	var b strings.Builder
	b.WriteString("Finding Labels\n")
	for i := 0; i < 10000; i++ {
		b.WriteString("Mass|Nodule\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCSVSource(writeCSV(t, b.String()), "", "", "").Transactions(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyntheticSource_Shape(t *testing.T) {
	source := NewSyntheticSource(2000, 300, 7)
	transactions, err := source.Transactions(context.Background())
	require.NoError(t, err)
	require.Len(t, transactions, 2300)

	known := map[domain.Item]bool{}
	for c, related := range cooccurrence {
		known[c] = true
		for _, r := range related {
			known[r] = true
		}
	}

	for i, tx := range transactions[:2000] {
		require.NotEmpty(t, tx, "transaction %d", i)
		// One primary, up to two associated findings, one random extra
		assert.LessOrEqual(t, len(tx), 4)
		for _, item := range tx {
			assert.True(t, known[item], "unexpected finding %s", item)
		}
	}
	for _, tx := range transactions[2000:] {
		assert.Equal(t, domain.Transaction{mining.DefaultNoFindingLabel}, tx)
	}
}

func TestSyntheticSource_Reproducible(t *testing.T) {
	first, err := NewSyntheticSource(500, 10, 42).Transactions(context.Background())
	require.NoError(t, err)
	second, err := NewSyntheticSource(500, 10, 42).Transactions(context.Background())
	require.NoError(t, err)
	other, err := NewSyntheticSource(500, 10, 43).Transactions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
}

func TestSyntheticSource_MinesRules(t *testing.T) {
	transactions, err := NewSyntheticSource(0, -1, 1).Transactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, transactions, DefaultSyntheticRecords+DefaultSyntheticNormal)

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	result, err := mining.NewMiner(logger, 4).Mine(context.Background(), transactions, domain.MiningParams{
		MinSupport:   0.01,
		Metric:       domain.MetricConfidence,
		MinThreshold: 0.3,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Rules)
}

func TestConditions(t *testing.T) {
	conditions := Conditions()

	assert.Len(t, conditions, 12)
	assert.Equal(t, domain.Item("Atelectasis"), conditions[0])
	assert.Equal(t, domain.Item("Pneumothorax"), conditions[len(conditions)-1])
}

func TestDefaultTransactions(t *testing.T) {
	transactions := DefaultTransactions()
	require.Len(t, transactions, 11)

	result, err := mining.NewMiner(nil, 1).Mine(context.Background(), transactions, DefaultParams())

	require.NoError(t, err)
	assert.NotEmpty(t, result.Rules)

	var found bool
	for _, r := range result.Rules {
		if r.String() == "Edema → Heart_Failure" {
			found = true
			assert.Equal(t, 1.0, r.Confidence)
		}
	}
	assert.True(t, found, "expected Edema → Heart_Failure")
}

func TestStaticSource_ReturnsCopy(t *testing.T) {
	source := DefaultSource()

	first, err := source.Transactions(context.Background())
	require.NoError(t, err)
	first[0] = nil

	second, err := source.Transactions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, second[0])
	assert.Equal(t, "bundled", source.Name())
}

func TestFeatureTransactions(t *testing.T) {
	out := FeatureTransactions([]domain.Transaction{
		{"Cardiomegaly", "Pneumonia"},
		{"No Finding"},
		{"Fibrosis"},
	})

	assert.Equal(t, []domain.Transaction{
		{"Cardiomegaly", "Pneumonia", "low_brightness"},
		{"Cardiomegaly", "Pneumonia", "high_contrast"},
		{"Cardiomegaly", "Pneumonia", "high_edge_density"},
		{"Cardiomegaly", "Pneumonia", "low_symmetry"},
		{"No Finding", "normal_brightness"},
		{"No Finding", "normal_contrast"},
	}, out)
}

func TestFeatureTransactions_Mine(t *testing.T) {
	transactions, err := NewSyntheticSource(1000, 200, 3).Transactions(context.Background())
	require.NoError(t, err)

	result, err := mining.NewMiner(nil, 2).Mine(context.Background(), FeatureTransactions(transactions), FeatureParams())

	require.NoError(t, err)
	var featureRule bool
	for _, r := range result.Rules {
		if r.HasAntecedent("normal_brightness") {
			featureRule = true
		}
	}
	assert.True(t, featureRule)
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		name    string
		cfg     domain.DatasetConfig
		want    string
		wantErr bool
	}{
		{"Synthetic default", domain.DatasetConfig{}, "synthetic:5000+0@0", false},
		{"Synthetic", domain.DatasetConfig{Source: "synthetic", SyntheticRecords: 10, SyntheticNormal: 2, SyntheticSeed: 9}, "synthetic:10+2@9", false},
		{"CSV", domain.DatasetConfig{Source: "csv", CSVPath: "data.csv"}, "csv:data.csv", false},
		{"CSV without path", domain.DatasetConfig{Source: "csv"}, "", true},
		{"Postgres without pool", domain.DatasetConfig{Source: "postgres"}, "", true},
		{"Bundled", domain.DatasetConfig{Source: "bundled"}, "bundled", false},
		{"Unknown", domain.DatasetConfig{Source: "parquet"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, err := NewSource(tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, source.Name())
		})
	}
}

func TestPostgresSource_Query(t *testing.T) {
	source := NewPostgresSource(nil, "", "", "", "")
	assert.Equal(t, `SELECT COALESCE("finding_labels", '') FROM "finding_records" ORDER BY 1`, source.query())
	assert.Equal(t, "postgres:finding_records", source.Name())

	custom := NewPostgresSource(nil, `odd"table`, "labels", "", "")
	assert.Equal(t, `SELECT COALESCE("labels", '') FROM "odd""table" ORDER BY 1`, custom.query())
}
