package job

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextKey(t *testing.T) {
	key, err := nextKey("", "films")
	require.NoError(t, err)
	require.Equal(t, "jobs/films/films-001.yml", key)

	key, err = nextKey("jobs/films/films-009.yml", "films")
	require.NoError(t, err)
	require.Equal(t, "jobs/films/films-010.yml", key)

	key, err = nextKey("jobs/a.b/a.b-041.yml", "a.b")
	require.NoError(t, err)
	require.Equal(t, "jobs/a.b/a.b-042.yml", key)

	_, err = nextKey("jobs/films/other.yml", "films")
	require.Error(t, err)
}
