package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/cuties-app/cuties/pkg/configuration"
	"github.com/cuties-app/cuties/pkg/importer"
	"github.com/cuties-app/cuties/pkg/store"
	"github.com/cuties-app/cuties/pkg/store/storetest"
)

func newTestApp(t *testing.T, m *storetest.Memory) *app {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	return &app{
		cfg: &configuration.Configuration{PageSize: 1000, CommunityOwnerEmail: "owner@example.com"},
		log: log,
		openStore: func(context.Context) (store.Store, func() error, error) {
			return m, func() error { return nil }, nil
		},
	}
}

func writeCSV(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func seed(m *storetest.Memory) {
	m.Seed("users",
		store.Row{"id": "u-alice", "name": "Alice", "username": "alice", "main_photo": "a.jpg", "email": "owner@example.com"},
		store.Row{"id": "u-bob", "name": "Bob"},
	)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, exitOK, exitCode(nil))
	require.Equal(t, exitFatal, exitCode(errors.New("plain")))
	require.Equal(t, exitDB, exitCode(withCode(exitDB, errors.New("db"))))
	require.Nil(t, withCode(exitDB, nil))
}

func TestRunImport_MessagesJSONSummary(t *testing.T) {
	m := storetest.NewMemory()
	seed(m)
	a := newTestApp(t, m)
	path := writeCSV(t, "Recipient,Creator,Value,Creation Date\nAlice,Bob,hi,2024-01-01T00:00:00Z\nAlice,Nobody,lost,\n")

	var out bytes.Buffer
	err := runImport(context.Background(), a, kindMessages, importOptions{csvPath: path, batchSize: 100, jsonOut: true}, &out)
	require.NoError(t, err)

	var s importer.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &s))
	require.Equal(t, 2, s.Total)
	require.Equal(t, 1, s.Matched)
	require.Equal(t, 1, s.Unmatched)
	require.Equal(t, 1, s.Inserted)
	require.Len(t, m.Rows(importer.MessagesTable), 1)
}

func TestRunImport_TestimonialsWritesReportAndMetrics(t *testing.T) {
	m := storetest.NewMemory()
	seed(m)
	a := newTestApp(t, m)
	dir := t.TempDir()
	path := writeCSV(t, "Subject,Value,Creator\nAlice,great friend,Bob\nMallory,who?,Bob\n")
	opts := importOptions{
		csvPath:     path,
		batchSize:   50,
		reportPath:  filepath.Join(dir, "unmatched.csv"),
		metricsPath: filepath.Join(dir, "import.prom"),
	}

	var out bytes.Buffer
	require.NoError(t, runImport(context.Background(), a, kindTestimonials, opts, &out))
	require.Contains(t, out.String(), "Migration complete!")
	require.Contains(t, out.String(), "Unmatched records:")

	report, err := os.ReadFile(opts.reportPath)
	require.NoError(t, err)
	require.Contains(t, string(report), "Mallory")

	metrics, err := os.ReadFile(opts.metricsPath)
	require.NoError(t, err)
	require.Contains(t, string(metrics), `cuties_import_inserted_total{table="friend_testimonials"} 1`)
}

func TestRunImport_ExitCodes(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file is a validation error", func(t *testing.T) {
		a := newTestApp(t, storetest.NewMemory())
		err := runImport(ctx, a, kindMessages, importOptions{csvPath: filepath.Join(t.TempDir(), "nope.csv"), batchSize: 100}, &bytes.Buffer{})
		require.Equal(t, exitValidation, exitCode(err))
	})

	t.Run("bad batch size is a usage error", func(t *testing.T) {
		a := newTestApp(t, storetest.NewMemory())
		err := runImport(ctx, a, kindMessages, importOptions{csvPath: "x.csv"}, &bytes.Buffer{})
		require.Equal(t, exitUsage, exitCode(err))
	})

	t.Run("user fetch failure is fatal", func(t *testing.T) {
		m := storetest.NewMemory()
		m.FailSelect = func(string, store.Query) error { return errors.New("timeout") }
		a := newTestApp(t, m)
		path := writeCSV(t, "Recipient,Creator,Value\nAlice,Bob,hi\n")
		err := runImport(ctx, a, kindMessages, importOptions{csvPath: path, batchSize: 100}, &bytes.Buffer{})
		require.Equal(t, exitFatal, exitCode(err))
	})

	t.Run("delete failure is reported and inserts still run", func(t *testing.T) {
		m := storetest.NewMemory()
		seed(m)
		m.FailDelete = func(string) error { return errors.New("permission denied") }
		a := newTestApp(t, m)
		path := writeCSV(t, "Recipient,Creator,Value\nAlice,Bob,hi\n")
		var out bytes.Buffer
		err := runImport(ctx, a, kindMessages, importOptions{csvPath: path, batchSize: 100}, &out)
		require.NoError(t, err)
		require.Contains(t, out.String(), "existing rows were NOT cleared")
		require.Len(t, m.Rows(importer.MessagesTable), 1)
	})
}

func TestRunCommunities_UnknownOwner(t *testing.T) {
	m := storetest.NewMemory()
	a := newTestApp(t, m)
	a.cfg.CommunityOwnerEmail = "ghost@example.com"

	err := runCommunities(context.Background(), a, communityOptions{}, &bytes.Buffer{})
	require.Equal(t, exitFatal, exitCode(err))
	require.Contains(t, err.Error(), "ghost@example.com")
}

func TestRunCommunities_SyncsCatalog(t *testing.T) {
	m := storetest.NewMemory()
	seed(m)
	a := newTestApp(t, m)
	catalog := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte("communities:\n  - name: Hiking\n    description: Trails\n  - name: Chess\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, runCommunities(context.Background(), a, communityOptions{catalogPath: catalog}, &out))
	require.Contains(t, out.String(), "Owner is admin of:  2 communities")
	require.Len(t, m.Rows("communities"), 2)
}

func TestRunLegacyCommunities_RequiresOwnerEmail(t *testing.T) {
	a := newTestApp(t, storetest.NewMemory())
	a.cfg.CommunityOwnerEmail = ""

	err := runLegacyCommunities(context.Background(), a, communityOptions{ownerEmail: "  "}, &bytes.Buffer{})
	require.Equal(t, exitUsage, exitCode(err))
}

func TestRunVerify_PrintsCounts(t *testing.T) {
	m := storetest.NewMemory()
	seed(m)
	var out bytes.Buffer
	require.NoError(t, runVerify(context.Background(), newTestApp(t, m), &out))
	require.True(t, strings.Contains(out.String(), "users"))
}

func TestRootCommandListsSubcommands(t *testing.T) {
	cmd := newRootCmd(&app{})
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"messages", "testimonials", "legacy-communities", "communities", "export", "verify"})
}
