package sink

import (
	"context"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"bookdex/internal/book"
	"bookdex/internal/testutil"
)

func openTestSink(t *testing.T) *SQLite {
	t.Helper()
	env := testutil.NewTestEnv(t)
	s, err := OpenSQLite(env.Path("books.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(isbn13, title string) *book.Record {
	return &book.Record{
		ISBN13:    isbn13,
		Title:     title,
		Authors:   []string{"Alan A. A. Donovan", "Brian W. Kernighan"},
		FetchedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestUpsertAndGet(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	rec := sampleRecord("9780134190440", "The Go Programming Language")
	assert.NoError(t, s.Upsert(ctx, rec))

	got, ok, err := s.Get(ctx, "9780134190440")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, rec.Authors, got.Authors)
}

func TestUpsertReplaces(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	assert.NoError(t, s.Upsert(ctx, sampleRecord("9780134190440", "Old Title")))
	assert.NoError(t, s.Upsert(ctx, sampleRecord("9780134190440", "New Title")))

	got, ok, err := s.Get(ctx, "9780134190440")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "New Title", got.Title)
}

func TestGetMissing(t *testing.T) {
	s := openTestSink(t)

	_, ok, err := s.Get(context.Background(), "9780132350884")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertRequiresISBN(t *testing.T) {
	s := openTestSink(t)

	err := s.Upsert(context.Background(), &book.Record{Title: "No ISBN"})
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	assert.NoError(t, s.Upsert(ctx, sampleRecord("9780134190440", "The Go Programming Language")))
	assert.NoError(t, s.Upsert(ctx, sampleRecord("9780132350884", "Clean Code")))

	records, err := s.List(ctx, 10)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(records))
}
