package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cuties-app/cuties/pkg/csvsource"
	"github.com/cuties-app/cuties/pkg/matching"
	"github.com/cuties-app/cuties/pkg/store"
	"github.com/cuties-app/cuties/pkg/store/storetest"
)

var fixedNow = func() time.Time { return time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC) }

func seedPeople(m *storetest.Memory) {
	m.Seed(matching.UsersTable,
		store.Row{"id": "u-alice", "name": "Alice", "username": "alice", "main_photo": "a.jpg"},
		store.Row{"id": "u-bob", "name": "Bob", "username": nil, "main_photo": nil},
		store.Row{"id": "u-legacy", "name": nil, "username": "zed"},
	)
}

func newImporter(m store.Store, opts Options) *Importer {
	log, _ := logtest.NewNullLogger()
	opts.Now = fixedNow
	return New(m, log, NewMetrics(), opts)
}

func parse(t *testing.T, doc string) []csvsource.Record {
	t.Helper()
	recs, err := csvsource.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return recs
}

func TestMessages_MatchedRowsWithISOTimestamps(t *testing.T) {
	m := storetest.NewMemory()
	seedPeople(m)
	m.Seed(MessagesTable, store.Row{"content": "stale"})

	recs := parse(t, "Recipient,Creator,Value,Creation Date\n"+
		"Alice,Bob,hi,2024-01-01T00:00:00Z\n"+
		" alice , BOB ,  hello again ,\n"+
		"Alice,Bob,bad date,yesterday-ish\n")

	res, err := newImporter(m, Options{}).Messages(context.Background(), recs)
	require.NoError(t, err)
	require.Equal(t, 3, res.Summary.Total)
	require.Equal(t, 3, res.Summary.Matched)
	require.Equal(t, 0, res.Summary.Skipped)
	require.Equal(t, 3, res.Summary.Inserted)
	require.True(t, res.Summary.Cleared)

	rows := m.Rows(MessagesTable)
	require.Len(t, rows, 3)
	require.Equal(t, "u-bob", rows[0]["sender_id"])
	require.Equal(t, "u-alice", rows[0]["recipient_id"])
	require.Equal(t, "hi", rows[0]["content"])
	require.Equal(t, "2024-01-01T00:00:00.000Z", rows[0]["created_at"])

	require.Equal(t, "hello again", rows[1]["content"])
	require.Nil(t, rows[1]["created_at"])

	require.Equal(t, "2025-02-03T04:05:06.000Z", rows[2]["created_at"])
}

func TestMessages_SkipsEmptyAndUnresolved(t *testing.T) {
	m := storetest.NewMemory()
	seedPeople(m)

	recs := parse(t, "Recipient,Creator,Value,Creation Date\n"+
		"Alice,Bob,   ,\n"+
		"Alice Smith,Bob,who?,\n"+
		"Alice,Nobody,hey,\n"+
		",Bob,no recipient,\n"+
		"zed,Alice,to a legacy user,\n")

	res, err := newImporter(m, Options{}).Messages(context.Background(), recs)
	require.NoError(t, err)
	require.Equal(t, 5, res.Summary.Total)
	require.Equal(t, 4, res.Summary.Skipped)
	require.Equal(t, 1, res.Summary.Matched)
	require.Len(t, res.Unmatched, 3)
	require.Equal(t, "recipient not found", res.Unmatched[0].Reason)
	require.Equal(t, 3, res.Unmatched[0].Line)
	require.Contains(t, res.Unmatched[0].Suggestions, "Alice")
	require.Equal(t, "sender not found", res.Unmatched[1].Reason)

	rows := m.Rows(MessagesTable)
	require.Len(t, rows, 1)
	require.Equal(t, "u-legacy", rows[0]["recipient_id"])
}

func TestMessages_UserFetchErrorIsFatal(t *testing.T) {
	m := storetest.NewMemory()
	m.FailSelect = func(string, store.Query) error { return context.DeadlineExceeded }

	_, err := newImporter(m, Options{}).Messages(context.Background(), nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, m.Calls("delete", MessagesTable))
}

func TestMessages_DryRunWritesNothing(t *testing.T) {
	m := storetest.NewMemory()
	seedPeople(m)
	m.Seed(MessagesTable, store.Row{"content": "keep me"})

	recs := parse(t, "Recipient,Creator,Value\nAlice,Bob,hi\n")
	res, err := newImporter(m, Options{DryRun: true}).Messages(context.Background(), recs)
	require.NoError(t, err)
	require.True(t, res.Summary.DryRun)
	require.Equal(t, 1, res.Summary.Matched)
	require.Zero(t, res.Summary.Inserted)
	require.Empty(t, m.Calls("delete", MessagesTable))
	require.Len(t, m.Rows(MessagesTable), 1)
}

func TestTestimonials_SubjectRequiredAuthorOptional(t *testing.T) {
	m := storetest.NewMemory()
	seedPeople(m)

	recs := parse(t, "subject,content,creation_date,author,bubble_id\n"+
		"Alice,She is great,2024-05-06,Bob,b1\n"+
		"Bob,Kind soul,,Stranger,b2\n"+
		"Ghost,Nobody knows,,Alice,b3\n"+
		"Alice,,,Bob,b4\n")

	res, err := newImporter(m, Options{}).Testimonials(context.Background(), recs)
	require.NoError(t, err)
	require.Equal(t, 4, res.Summary.Total)
	require.Equal(t, 2, res.Summary.Matched)
	require.Equal(t, 1, res.Summary.Unmatched)
	require.Equal(t, 1, res.Summary.Skipped)
	require.Equal(t, 2, res.Summary.Inserted)
	require.Equal(t, "Ghost", res.Unmatched[0].Subject)

	rows := m.Rows(TestimonialsTable)
	require.Len(t, rows, 2)
	require.Equal(t, "u-alice", rows[0]["subject_id"])
	require.Equal(t, "u-bob", rows[0]["author_id"])
	require.Equal(t, "2024-05-06T00:00:00.000Z", rows[0]["created_at"])

	require.Equal(t, "u-bob", rows[1]["subject_id"])
	require.Nil(t, rows[1]["author_id"])
	require.Equal(t, "2025-02-03T04:05:06.000Z", rows[1]["created_at"])
}

func TestTestimonials_HeaderAliases(t *testing.T) {
	m := storetest.NewMemory()
	seedPeople(m)

	recs := parse(t, "Subject,Value,Creation Date,Creator,unique id\nalice,Lovely,,zed,x\n")
	res, err := newImporter(m, Options{BatchSize: 1}).Testimonials(context.Background(), recs)
	require.NoError(t, err)
	require.Equal(t, 1, res.Summary.Inserted)
	require.Equal(t, "u-legacy", m.Rows(TestimonialsTable)[0]["author_id"])
}

func TestPreview(t *testing.T) {
	require.Equal(t, "short", preview("short"))
	long := strings.Repeat("é", 60)
	require.Equal(t, strings.Repeat("é", 50)+"...", preview(long))
}

func TestWriteUnmatchedReport(t *testing.T) {
	items := []Unmatched{
		{Line: 3, Reason: "subject not found", Subject: "Ghost", Author: "Alice", Preview: "Nobody, knows", Suggestions: []string{"Gus", "Gail"}},
	}
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "unmatched.csv")
	require.NoError(t, WriteUnmatchedReport(csvPath, items))
	recs, err := csvsource.Read(csvPath)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "Ghost", recs[0]["subject"])
	require.Equal(t, "Nobody, knows", recs[0]["content"])
	require.Equal(t, "Gus; Gail", recs[0]["suggestions"])

	xlsxPath := filepath.Join(dir, "unmatched.xlsx")
	require.NoError(t, WriteUnmatchedReport(xlsxPath, items))
	f, err := excelize.OpenFile(xlsxPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(reportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, reportHeader, rows[0])
	require.Equal(t, "3", rows[1][0])
	require.Equal(t, "Ghost", rows[1][2])
}

func TestMetrics_WriteTextfile(t *testing.T) {
	mt := NewMetrics()
	mt.Observe(Summary{Table: MessagesTable, Total: 5, Matched: 3, Skipped: 2, Inserted: 3, FailedBatches: []int{2}})

	path := filepath.Join(t.TempDir(), "cuties_import.prom")
	require.NoError(t, mt.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	require.Contains(t, out, `cuties_import_records_total{table="messages"} 5`)
	require.Contains(t, out, `cuties_import_inserted_total{table="messages"} 3`)
	require.Contains(t, out, `cuties_import_failed_batches_total{table="messages"} 1`)
	require.Contains(t, out, `cuties_import_last_run_info{dry_run="false",table="messages"} 1`)
}
