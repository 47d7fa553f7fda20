package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posrecon/internal/domain/businessday"
	"posrecon/internal/domain/reconcile"
	"posrecon/internal/domain/sale"
	"posrecon/internal/infrastructure/sqlite"
	"posrecon/internal/infrastructure/tabular"
	"posrecon/internal/shared/config"
)

func TestLoadCandidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "12-12-2025.csv")
	data := "Checkout Date,Item Sold,Customer,Service Provider,Amount Due,Tip,Transaction ID\n" +
		"12/12/2025 2:05 PM,Gel Manicure,Jane Doe,Alex S,35.00,7.00,TX-1001\n" +
		"12/12/2025 2:30 PM,Redeemed,,,35.00,7.00,\n" +
		"not a date,Pedicure,John Roe,,50.00,,TX-1002\n" +
		"12/13/2025 9:15 AM,Wax,Ann Lee,,20.00,,TX-1003\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	clock, err := businessday.LoadClock(businessday.DefaultTimezone)
	require.NoError(t, err)
	normalizer := sale.NewNormalizer(clock, sale.Directory{"p-alex": "Alex Santiesteban"})

	candidates, stats, err := loadCandidates([]string{path}, tabular.DefaultLayout(), normalizer)
	require.NoError(t, err)

	assert.Equal(t, importStats{Files: 1, Rows: 4, Summary: 1, Rejected: 1}, stats)
	require.Len(t, candidates, 2)
	assert.Equal(t, "2025-12-12", candidates[0].Day)
	assert.Equal(t, "12-12-2025", candidates[0].Batch)
	assert.Equal(t, "p-alex", candidates[0].ProviderID)
	assert.Equal(t, "2025-12-13", candidates[1].Day)
}

func TestLoadCandidates_MissingFile(t *testing.T) {
	clock, err := businessday.LoadClock(businessday.DefaultTimezone)
	require.NoError(t, err)

	_, _, err = loadCandidates([]string{filepath.Join(t.TempDir(), "nope.csv")}, tabular.DefaultLayout(), sale.NewNormalizer(clock, nil))
	assert.Error(t, err)
}

func TestParseDays(t *testing.T) {
	days, err := parseDays(" 2025-12-12, 2025-12-13 ,")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-12-12", "2025-12-13"}, days)

	days, err = parseDays("")
	require.NoError(t, err)
	assert.Empty(t, days)

	_, err = parseDays("12/12/2025")
	assert.ErrorIs(t, err, businessday.ErrInvalidDay)
}

func TestDescribeDays(t *testing.T) {
	assert.Equal(t, "all", describeDays(nil))
	assert.Equal(t, "2025-12-12,2025-12-13", describeDays([]string{"2025-12-12", "2025-12-13"}))
}

func newTestApp(t *testing.T, columns string) (*app, *int) {
	t.Helper()
	clock, err := businessday.LoadClock(businessday.DefaultTimezone)
	require.NoError(t, err)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)

	closed := 0
	return &app{
		cfg: &config.Config{
			Business: config.BusinessConfig{EventPrefix: "manual"},
			Import:   config.ImportConfig{HeaderRow: tabular.DefaultHeaderRow, Columns: columns},
		},
		store:      store,
		normalizer: sale.NewNormalizer(clock, nil),
		close: func() {
			closed++
			store.Close()
		},
	}, &closed
}

func TestExecuteBackfill_ReleasesAppOnError(t *testing.T) {
	export := filepath.Join(t.TempDir(), "12-12-2025.csv")
	require.NoError(t, os.WriteFile(export, []byte("Checkout Date,Item Sold,Amount Due\n12/12/2025 2:05 PM,Pedicure,50.00\n"), 0o600))

	tests := []struct {
		name    string
		columns string
		paths   []string
		wantErr string
	}{
		{"invalid column override", "item_sold=zero", []string{export}, "invalid IMPORT_COLUMNS"},
		{"unreadable export", "", []string{filepath.Join(t.TempDir(), "nope.csv")}, "failed to read exports"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, closed := newTestApp(t, tt.columns)

			err := rt.run(func(a *app) error {
				return executeBackfill(context.Background(), a, backfillPlan{
					paths: tt.paths,
					mode:  reconcile.ModeDryRun,
				})
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, 1, *closed)
		})
	}
}

func TestExecuteBackfill_DryRun(t *testing.T) {
	export := filepath.Join(t.TempDir(), "12-12-2025.csv")
	require.NoError(t, os.WriteFile(export, []byte("Checkout Date,Item Sold,Amount Due\n12/12/2025 2:05 PM,Pedicure,50.00\n"), 0o600))

	rt, closed := newTestApp(t, "")
	err := rt.run(func(a *app) error {
		return executeBackfill(context.Background(), a, backfillPlan{
			paths: []string{export},
			days:  []string{"2025-12-12"},
			mode:  reconcile.ModeDryRun,
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, *closed)
}

func TestImportLayout(t *testing.T) {
	layout, err := importLayout(&config.Config{Import: config.ImportConfig{HeaderRow: 1, Columns: "tip=15"}})
	require.NoError(t, err)
	assert.Equal(t, 1, layout.HeaderRow)
	assert.Equal(t, 15, layout.Columns[sale.FieldTip])

	_, err = importLayout(&config.Config{Import: config.ImportConfig{Columns: "tip"}})
	assert.ErrorContains(t, err, "invalid IMPORT_COLUMNS")
}

func TestUsageEndsWithNewline(t *testing.T) {
	assert.True(t, strings.HasSuffix(usage, "\n"))
	assert.False(t, strings.HasSuffix(usage, "\n\n"))
}
