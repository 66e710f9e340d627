package db

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-campus/migrations"
)

func TestLoadMigrationsOrdersAndSkipsBlank(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_more.sql": {Data: []byte("ALTER TABLE x ADD COLUMN y INT;")},
		"0001_init.sql": {Data: []byte("CREATE TABLE x (id INT);")},
		"0003_noop.sql": {Data: []byte("  \n")},
		"README.md":     {Data: []byte("not sql")},
	}
	all, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "0001_init.sql", all[0].Name)
	assert.Equal(t, "0002_more.sql", all[1].Name)

	pending := Pending(all, map[string]bool{"0001_init.sql": true})
	require.Len(t, pending, 1)
	assert.Equal(t, "0002_more.sql", pending[0].Name)
}

func TestEmbeddedSchemaDeclaresConstraints(t *testing.T) {
	all, err := LoadMigrations(migrations.Files)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	schema := all[0].SQL
	for _, want := range []string{"candidates_applicant_position_key", "votes_election_voter_key", "ON DELETE CASCADE", "audit_logs"} {
		assert.Contains(t, schema, want)
	}
}

func TestErrorClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "votes_election_voter_key"}
	wrapped := errors.Join(errors.New("insert vote"), unique)

	assert.True(t, IsUniqueViolation(wrapped, ""))
	assert.True(t, IsUniqueViolation(wrapped, "votes_election_voter_key"))
	assert.False(t, IsUniqueViolation(wrapped, "candidates_applicant_position_key"))
	assert.False(t, IsForeignKeyViolation(wrapped))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: codeForeignKeyViolation}))
	assert.False(t, IsUniqueViolation(nil, ""))
}
