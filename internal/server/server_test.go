package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/halyard-dev/halyard/internal/catalog"
	"github.com/halyard-dev/halyard/internal/conflict"
	"github.com/halyard-dev/halyard/internal/remote"
	"github.com/halyard-dev/halyard/internal/store"
	"github.com/halyard-dev/halyard/internal/stream"
	"github.com/halyard-dev/halyard/pkg/sshutil"
	sshtest "github.com/halyard-dev/halyard/pkg/sshutil/testing"
)

func testKeyPEM(t *testing.T) []byte {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "test")
	require.NoError(t, err)
	return pem.EncodeToMemory(block)
}

type testEnv struct {
	srv    *Server
	store  *store.Store
	mock   *sshtest.MockClient
	connID string
	http   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	conn := &store.Connection{Name: "web-1", Host: "10.0.0.5", Port: 22, Username: "deploy"}
	require.NoError(t, st.CreateConnection(context.Background(), conn))

	mock := sshtest.NewMockClient("10.0.0.5:22")
	resolver := remote.NewAuthResolver(remote.CredentialEnv{ExplicitKey: testKeyPEM(t)}, log)
	sessions := remote.NewSessionManager(resolver, ssh.InsecureIgnoreHostKey(), log,
		remote.WithDialer(func(ctx context.Context, target remote.Target, cred *remote.Credential, timeout time.Duration) (sshutil.SSHClient, error) {
			return mock, nil
		}))
	coord := remote.NewCoordinator(sessions, remote.NewExecutor(log), conflict.NewInspector(log), st, log)

	bcast := stream.NewBroadcaster(log)
	srv := New("127.0.0.1:0", coord, st, bcast, nil, nil, log)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{srv: srv, store: st, mock: mock, connID: conn.ID, http: ts}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.http.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.http.URL + "/api/health")
	require.NoError(t, err)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestConnectionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/connections", map[string]any{
		"name": "db-1", "host": "10.0.0.9", "username": "admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[store.Connection](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 22, created.Port) // default

	resp, err := http.Get(env.http.URL + "/api/connections")
	require.NoError(t, err)
	conns := decode[[]store.Connection](t, resp)
	assert.Len(t, conns, 2)

	resp = env.post(t, "/api/connections/"+created.ID+"/activate", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, env.http.URL+"/api/connections/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateConnectionRejectsMissingFields(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/api/connections", map[string]any{"name": "incomplete"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActivateUnknownConnection(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/api/connections/nope/activate", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecuteStreamsOverWebsocket(t *testing.T) {
	env := newTestEnv(t)
	env.mock.Respond("echo hello", sshtest.CommandResponse{
		Stdout: []byte("hello\n"),
		Status: sshutil.ExitStatus{Code: 0, Known: true},
		Delay:  50 * time.Millisecond,
	})

	resp := env.post(t, "/api/execute", executeRequest{
		ConnectionID: env.connID,
		Command:      "echo hello",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decode[executeResponse](t, resp)
	require.NotEmpty(t, accepted.CommandID)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/commands/" + accepted.CommandID
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	var sawOutput bool
	for {
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame map[string]any
		if err := ws.ReadJSON(&frame); err != nil {
			break
		}
		if data, ok := frame["data"].(string); ok && strings.Contains(data, "hello") {
			sawOutput = true
		}
		if _, done := frame["durationMs"]; done {
			code, ok := frame["exitCode"].(float64)
			require.True(t, ok)
			assert.Equal(t, float64(0), code)
			break
		}
	}
	assert.True(t, sawOutput, "expected to see command output over the websocket")

	// History row lands after the terminal frame.
	assert.Eventually(t, func() bool {
		execs, err := env.store.ListExecutions(context.Background(), env.connID, 10)
		return err == nil && len(execs) == 1 && execs[0].Command == "echo hello"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestExecuteRequiresCommand(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/api/execute", executeRequest{ConnectionID: env.connID})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecuteNoActiveConnection(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/api/execute", executeRequest{Command: "uptime"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecuteMarksConnectionActive(t *testing.T) {
	env := newTestEnv(t)
	env.mock.Respond("uptime", sshtest.CommandResponse{
		Stdout: []byte("up 3 days\n"),
		Status: sshutil.ExitStatus{Code: 0, Known: true},
	})

	resp := env.post(t, "/api/execute", executeRequest{
		ConnectionID: env.connID,
		Command:      "uptime",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	assert.Eventually(t, func() bool {
		conn, err := env.store.GetConnection(context.Background(), env.connID)
		return err == nil && conn.Active
	}, 2*time.Second, 20*time.Millisecond)
}

func TestTranslateWithoutOracle(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/api/translate", translateRequest{Text: "show disk usage"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTemplatesEmptyWithoutCatalog(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.http.URL + "/api/templates")
	require.NoError(t, err)
	templates := decode[[]catalog.Template](t, resp)
	assert.Empty(t, templates)
}

func TestExecuteTemplate(t *testing.T) {
	log := zerolog.Nop()

	dir := t.TempDir()
	catPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catPath, []byte(`
templates:
  - name: disk-usage
    command: df -h {{ path }}
`), 0o644))
	cat, err := catalog.Load(catPath, log)
	require.NoError(t, err)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	conn := &store.Connection{Name: "web-1", Host: "10.0.0.5", Username: "deploy"}
	require.NoError(t, st.CreateConnection(context.Background(), conn))

	mock := sshtest.NewMockClient("10.0.0.5:22")
	mock.Respond("df -h /var", sshtest.CommandResponse{
		Stdout: []byte("/dev/sda1  40G  12G  28G  30% /var\n"),
		Status: sshutil.ExitStatus{Code: 0, Known: true},
	})

	resolver := remote.NewAuthResolver(remote.CredentialEnv{ExplicitKey: testKeyPEM(t)}, log)
	sessions := remote.NewSessionManager(resolver, ssh.InsecureIgnoreHostKey(), log,
		remote.WithDialer(func(ctx context.Context, target remote.Target, cred *remote.Credential, timeout time.Duration) (sshutil.SSHClient, error) {
			return mock, nil
		}))
	coord := remote.NewCoordinator(sessions, remote.NewExecutor(log), conflict.NewInspector(log), st, log)
	srv := New("127.0.0.1:0", coord, st, stream.NewBroadcaster(log), nil, cat, log)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	buf, _ := json.Marshal(executeRequest{
		ConnectionID: conn.ID,
		Template:     "disk-usage",
		Params:       map[string]string{"path": "/var"},
		Source:       "template",
	})
	resp, err := http.Post(ts.URL+"/api/execute", "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	assert.Eventually(t, func() bool {
		execs, err := st.ListExecutions(context.Background(), conn.ID, 10)
		return err == nil && len(execs) == 1 &&
			execs[0].Command == "df -h /var" && execs[0].Source == "template"
	}, 2*time.Second, 20*time.Millisecond)
}
