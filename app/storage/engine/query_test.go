package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_For(t *testing.T) {
	q := Query{Sqlite: "select sqlite", Postgres: "select postgres"}

	got, err := q.For(Sqlite)
	require.NoError(t, err)
	assert.Equal(t, "select sqlite", got)

	got, err = q.For(Postgres)
	require.NoError(t, err)
	assert.Equal(t, "select postgres", got)

	_, err = q.For(Unknown)
	require.Error(t, err)

	_, err = q.For(Type("oracle"))
	require.Error(t, err)
}

func TestSame(t *testing.T) {
	q := Same("select 1")
	for _, dbType := range []Type{Sqlite, Postgres} {
		got, err := q.For(dbType)
		require.NoError(t, err)
		assert.Equal(t, "select 1", got)
	}
}
