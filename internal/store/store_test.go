package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreate(t *testing.T, s *Store, name, host string) *Connection {
	t.Helper()
	conn := &Connection{Name: name, Host: host, Username: "deploy"}
	require.NoError(t, s.CreateConnection(context.Background(), conn))
	return conn
}

func TestOpenCreatesDataDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "halyard.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	mustCreate(t, s, "web1", "web1.example.com")
}

func TestCreateConnectionDefaults(t *testing.T) {
	s := openTestStore(t)
	conn := mustCreate(t, s, "web1", "web1.example.com")

	assert.NotEmpty(t, conn.ID)
	assert.Equal(t, 22, conn.Port)
	assert.False(t, conn.CreatedAt.IsZero())

	got, err := s.GetConnection(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "web1", got.Name)
	assert.Equal(t, 22, got.Port)
	assert.False(t, got.Active)
}

func TestCreateConnectionDuplicateName(t *testing.T) {
	s := openTestStore(t)
	mustCreate(t, s, "web1", "a.example.com")

	err := s.CreateConnection(context.Background(), &Connection{
		Name: "web1", Host: "b.example.com", Username: "deploy",
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrStore))
}

func TestGetConnectionByName(t *testing.T) {
	s := openTestStore(t)
	conn := mustCreate(t, s, "web1", "web1.example.com")

	got, err := s.GetConnectionByName(context.Background(), "web1")
	require.NoError(t, err)
	assert.Equal(t, conn.ID, got.ID)

	_, err = s.GetConnectionByName(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConnectionsOrdering(t *testing.T) {
	s := openTestStore(t)
	mustCreate(t, s, "zeta", "z.example.com")
	mid := mustCreate(t, s, "mid", "m.example.com")
	mustCreate(t, s, "alpha", "a.example.com")

	require.NoError(t, s.SetActive(context.Background(), mid.ID))

	list, err := s.ListConnections(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)

	// Active first, then alphabetical.
	assert.Equal(t, "mid", list[0].Name)
	assert.True(t, list[0].Active)
	assert.Equal(t, "alpha", list[1].Name)
	assert.Equal(t, "zeta", list[2].Name)
}

func TestSetActiveDeactivatesOthers(t *testing.T) {
	s := openTestStore(t)
	a := mustCreate(t, s, "a", "a.example.com")
	b := mustCreate(t, s, "b", "b.example.com")

	ctx := context.Background()
	require.NoError(t, s.SetActive(ctx, a.ID))
	require.NoError(t, s.SetActive(ctx, b.ID))

	list, err := s.ListConnections(ctx)
	require.NoError(t, err)

	var activeCount int
	for _, c := range list {
		if c.Active {
			activeCount++
			assert.Equal(t, b.ID, c.ID)
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestSetActiveUnknownID(t *testing.T) {
	s := openTestStore(t)
	a := mustCreate(t, s, "a", "a.example.com")
	ctx := context.Background()
	require.NoError(t, s.SetActive(ctx, a.ID))

	err := s.SetActive(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)

	// The failed transaction must not have deactivated the current one.
	got, err := s.GetConnection(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestDeleteConnection(t *testing.T) {
	s := openTestStore(t)
	conn := mustCreate(t, s, "web1", "web1.example.com")
	ctx := context.Background()

	require.NoError(t, s.DeleteConnection(ctx, conn.ID))
	_, err := s.GetConnection(ctx, conn.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteConnection(ctx, conn.ID), ErrNotFound)
}

func TestExecutionHistory(t *testing.T) {
	s := openTestStore(t)
	conn := mustCreate(t, s, "web1", "web1.example.com")
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, cmd := range []string{"uptime", "df -h", "free -m"} {
		require.NoError(t, s.InsertExecution(ctx, &Execution{
			ConnectionID: conn.ID,
			Command:      cmd,
			Output:       cmd + " output",
			ExitCode:     0,
			ExitKnown:    true,
			DurationMs:   int64(100 * (i + 1)),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := s.ListExecutions(ctx, conn.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)

	// Newest first.
	assert.Equal(t, "free -m", list[0].Command)
	assert.Equal(t, "uptime", list[2].Command)
	assert.Equal(t, "manual", list[0].Source)
	assert.True(t, list[0].ExitKnown)
}

func TestListExecutionsLimitAndFilter(t *testing.T) {
	s := openTestStore(t)
	a := mustCreate(t, s, "a", "a.example.com")
	b := mustCreate(t, s, "b", "b.example.com")
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertExecution(ctx, &Execution{
			ConnectionID: a.ID, Command: "uptime", ExitKnown: true,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.InsertExecution(ctx, &Execution{
		ConnectionID: b.ID, Command: "df -h", ExitKnown: true,
		CreatedAt: base.Add(time.Minute),
	}))

	limited, err := s.ListExecutions(ctx, a.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	all, err := s.ListExecutions(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	onlyB, err := s.ListExecutions(ctx, b.ID, 10)
	require.NoError(t, err)
	require.Len(t, onlyB, 1)
	assert.Equal(t, "df -h", onlyB[0].Command)
}

func TestExecutionAbortedAndUnknownExit(t *testing.T) {
	s := openTestStore(t)
	conn := mustCreate(t, s, "web1", "web1.example.com")
	ctx := context.Background()

	require.NoError(t, s.InsertExecution(ctx, &Execution{
		ConnectionID: conn.ID,
		Command:      "long-task",
		Output:       "partial",
		ExitKnown:    false,
		Aborted:      true,
		Source:       "api",
	}))

	list, err := s.ListExecutions(ctx, conn.ID, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.False(t, list[0].ExitKnown)
	assert.True(t, list[0].Aborted)
	assert.Equal(t, "partial", list[0].Output)
	assert.Equal(t, "api", list[0].Source)
}
