package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmueller/marten/internal/config"
	"github.com/ggmueller/marten/internal/logger"
	"github.com/ggmueller/marten/internal/mapping"
	"github.com/ggmueller/marten/internal/store"
)

// openTestStore connects to MARTEN_TEST_DATABASE_URL or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("MARTEN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MARTEN_TEST_DATABASE_URL not set")
	}
	opts := config.Default()
	opts.Driver = config.DriverPostgres
	opts.DatabaseURL = url

	s, err := Open(context.Background(), opts, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestOpen_BadURL(t *testing.T) {
	opts := config.Default()
	opts.DatabaseURL = "::not a url::"

	_, err := Open(context.Background(), opts, logger.Discard())
	assert.Error(t, err)
}

func TestTableSchema(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyDDL(ctx, `
		drop table if exists public.mt_doc_pgstore_sample;
		create table public.mt_doc_pgstore_sample (
		  id uuid not null,
		  data jsonb,
		  mt_last_modified timestamp with time zone,
		  mt_version uuid,
		  primary key (id)
		);`))
	t.Cleanup(func() { _ = s.ApplyDDL(ctx, "drop table if exists public.mt_doc_pgstore_sample;") })

	def, err := s.TableSchema(ctx, "public", "mt_doc_pgstore_sample")
	require.NoError(t, err)
	want := &mapping.TableDefinition{Name: "mt_doc_pgstore_sample", PrimaryKey: "id", Columns: []mapping.TableColumn{
		{Name: "id", Type: "uuid"},
		{Name: "data", Type: "jsonb"},
		{Name: "mt_last_modified", Type: "timestamp with time zone"},
		{Name: "mt_version", Type: "uuid"},
	}}
	assert.True(t, want.Equal(def), "got %+v", def)

	missing, err := s.TableSchema(ctx, "public", "mt_doc_not_there")
	require.NoError(t, err)
	assert.Nil(t, missing)

	names, err := s.TableNames(ctx, "public")
	require.NoError(t, err)
	assert.Contains(t, names, "mt_doc_pgstore_sample")
}

func TestInTx_Nested(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx store.Executor) error {
		return tx.InTx(ctx, func(inner store.Executor) error {
			rows, err := inner.Query(ctx, "select 1")
			if err != nil {
				return err
			}
			defer rows.Close()
			require.True(t, rows.Next())
			return rows.Err()
		})
	})
	assert.NoError(t, err)
}
