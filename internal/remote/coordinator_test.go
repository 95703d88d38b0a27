package remote

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/halyard-dev/halyard/internal/conflict"
	"github.com/halyard-dev/halyard/pkg/sshutil"
	sshtesting "github.com/halyard-dev/halyard/pkg/sshutil/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActivity struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeActivity) SetActive(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	return nil
}

func testCoordinator(t *testing.T, mock *sshtesting.MockClient, activity ActivityStore) *Coordinator {
	t.Helper()
	dial := func(ctx context.Context, target Target, cred *Credential, timeout time.Duration) (sshutil.SSHClient, error) {
		return mock, nil
	}
	sessions := NewSessionManager(testResolver(t), nil, zerolog.Nop(), WithDialer(dial))
	return NewCoordinator(sessions, NewExecutor(zerolog.Nop()), conflict.NewInspector(zerolog.Nop()), activity, zerolog.Nop())
}

func TestCoordinatorExecute(t *testing.T) {
	mock := sshtesting.NewMockClient("host:22")
	mock.Respond("uptime", sshtesting.CommandResponse{
		Stdout: []byte("up\n"),
		Status: sshutil.ExitStatus{Code: 0, Known: true},
	})
	activity := &fakeActivity{}
	coord := testCoordinator(t, mock, activity)

	result, verdict, err := coord.Execute(context.Background(), ExecutionRequest{
		Target:  Target{ID: "c1", Host: "host", User: "deploy"},
		Command: "uptime",
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, verdict)
	assert.Equal(t, "up\n", result.Output)
	assert.Equal(t, []string{"c1"}, activity.ids)
}

func TestCoordinatorDuplicateSkipsExecution(t *testing.T) {
	mock := sshtesting.NewMockClient("host:22")
	// The probe finds nginx already installed.
	mock.RespondPattern(`^command -v`, sshtesting.CommandResponse{
		Status: sshutil.ExitStatus{Code: 0, Known: true},
	})
	coord := testCoordinator(t, mock, nil)

	result, verdict, err := coord.Execute(context.Background(), ExecutionRequest{
		Target:         Target{ID: "c1", Host: "host", User: "deploy"},
		Command:        "sudo apt install nginx",
		CheckConflicts: true,
	})
	require.NoError(t, err)
	assert.Nil(t, result)
	require.NotNil(t, verdict)
	assert.True(t, verdict.IsDuplicate)
	assert.Equal(t, conflict.KindPackageInstall, verdict.Rule)

	// Only the probe ran; the install command never did.
	commands := mock.Commands()
	require.Len(t, commands, 1)
	assert.Contains(t, commands[0], "command -v")
}

func TestCoordinatorNegativeProbeExecutes(t *testing.T) {
	mock := sshtesting.NewMockClient("host:22")
	mock.RespondPattern(`^command -v`, sshtesting.CommandResponse{
		Status: sshutil.ExitStatus{Code: 1, Known: true},
	})
	mock.RespondPattern(`apt install`, sshtesting.CommandResponse{
		Stdout: []byte("installed\n"),
		Status: sshutil.ExitStatus{Code: 0, Known: true},
	})
	coord := testCoordinator(t, mock, nil)

	result, verdict, err := coord.Execute(context.Background(), ExecutionRequest{
		Target:         Target{ID: "c1", Host: "host", User: "deploy"},
		Command:        "sudo apt install nginx",
		CheckConflicts: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "installed\n", result.Output)
	require.NotNil(t, verdict)
	assert.False(t, verdict.IsDuplicate)
	assert.Len(t, mock.Commands(), 2)
}

func TestCoordinatorProbeFailureProceeds(t *testing.T) {
	mock := sshtesting.NewMockClient("host:22")
	// The probe itself cannot run: degrade to "cannot determine", execute anyway.
	mock.RespondPattern(`^command -v`, sshtesting.CommandResponse{
		Err: stderrors.New("channel open failed"),
	})
	mock.RespondPattern(`apt install`, sshtesting.CommandResponse{
		Stdout: []byte("installed\n"),
		Status: sshutil.ExitStatus{Code: 0, Known: true},
	})
	coord := testCoordinator(t, mock, nil)

	result, verdict, err := coord.Execute(context.Background(), ExecutionRequest{
		Target:         Target{ID: "c1", Host: "host", User: "deploy"},
		Command:        "sudo apt install nginx",
		CheckConflicts: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, verdict)
	assert.Equal(t, "installed\n", result.Output)
}

func TestCoordinatorActivityErrorDoesNotBlock(t *testing.T) {
	mock := sshtesting.NewMockClient("host:22")
	mock.Respond("uptime", sshtesting.CommandResponse{
		Stdout: []byte("up\n"),
		Status: sshutil.ExitStatus{Code: 0, Known: true},
	})
	coord := testCoordinator(t, mock, &fakeActivity{err: stderrors.New("disk full")})

	result, _, err := coord.Execute(context.Background(), ExecutionRequest{
		Target:  Target{ID: "c1", Host: "host", User: "deploy"},
		Command: "uptime",
	})
	require.NoError(t, err)
	assert.Equal(t, "up\n", result.Output)
}

func TestCoordinatorConnectFailure(t *testing.T) {
	dial := func(ctx context.Context, target Target, cred *Credential, timeout time.Duration) (sshutil.SSHClient, error) {
		return nil, stderrors.New("connection refused")
	}
	sessions := NewSessionManager(testResolver(t), nil, zerolog.Nop(), WithDialer(dial))
	activity := &fakeActivity{}
	coord := NewCoordinator(sessions, NewExecutor(zerolog.Nop()), conflict.NewInspector(zerolog.Nop()), activity, zerolog.Nop())

	result, verdict, err := coord.Execute(context.Background(), ExecutionRequest{
		Target:  Target{ID: "c1", Host: "down", User: "deploy"},
		Command: "uptime",
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Nil(t, verdict)
	// A connection that never opened is never marked active.
	assert.Empty(t, activity.ids)
}
