package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `templates:
  - name: disk-usage
    description: Show disk usage for a path
    command: "df -h {{ path }}"
    params: [path]
  - name: restart-service
    description: Restart a systemd unit
    command: "sudo systemctl restart {{unit}} && systemctl status {{unit}}"
    params: [unit]
    skip_conflict_check: true
  - name: uptime
    description: Host uptime
    command: uptime
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeCatalog(t, sampleCatalog), zerolog.Nop())
	require.NoError(t, err)

	list := c.List()
	require.Len(t, list, 3)
	// File order is preserved.
	assert.Equal(t, "disk-usage", list[0].Name)
	assert.Equal(t, "restart-service", list[1].Name)
	assert.True(t, list[1].SkipConflictCheck)

	tpl, ok := c.Get("uptime")
	require.True(t, ok)
	assert.Equal(t, "uptime", tpl.Command)
	assert.Empty(t, tpl.Params)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLoadMissingFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, c.List())
}

func TestLoadEmptyPath(t *testing.T) {
	c, err := Load("", zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, c.List())
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeCatalog(t, "templates: [unclosed"), zerolog.Nop())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestLoadRejectsIncompleteTemplate(t *testing.T) {
	_, err := Load(writeCatalog(t, "templates:\n  - name: broken\n"), zerolog.Nop())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	dup := `templates:
  - name: uptime
    command: uptime
  - name: uptime
    command: uptime -p
`
	_, err := Load(writeCatalog(t, dup), zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Duplicate")
}

func TestRender(t *testing.T) {
	c, err := Load(writeCatalog(t, sampleCatalog), zerolog.Nop())
	require.NoError(t, err)

	cmd, err := c.Render("disk-usage", map[string]string{"path": "/var"})
	require.NoError(t, err)
	assert.Equal(t, "df -h /var", cmd)

	// The same placeholder can appear more than once.
	cmd, err = c.Render("restart-service", map[string]string{"unit": "nginx"})
	require.NoError(t, err)
	assert.Equal(t, "sudo systemctl restart nginx && systemctl status nginx", cmd)

	// No placeholders, no params needed.
	cmd, err = c.Render("uptime", nil)
	require.NoError(t, err)
	assert.Equal(t, "uptime", cmd)
}

func TestRenderMissingParams(t *testing.T) {
	c, err := Load(writeCatalog(t, sampleCatalog), zerolog.Nop())
	require.NoError(t, err)

	_, err = c.Render("disk-usage", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "path")
}

func TestRenderUnknownTemplate(t *testing.T) {
	c, err := Load(writeCatalog(t, sampleCatalog), zerolog.Nop())
	require.NoError(t, err)

	_, err = c.Render("nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown template")
}

func TestWatchReload(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	c, err := Load(path, zerolog.Nop())
	require.NoError(t, err)

	stop := make(chan struct{})
	defer close(stop)
	require.NoError(t, c.Watch(stop))

	updated := sampleCatalog + `  - name: memory
    description: Free memory
    command: free -m
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	assert.Eventually(t, func() bool {
		_, ok := c.Get("memory")
		return ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatchKeepsLastGoodOnBrokenEdit(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	c, err := Load(path, zerolog.Nop())
	require.NoError(t, err)

	stop := make(chan struct{})
	defer close(stop)
	require.NoError(t, c.Watch(stop))

	require.NoError(t, os.WriteFile(path, []byte("templates: [broken"), 0644))

	// Give the watcher a chance to fire; the old set must survive.
	time.Sleep(300 * time.Millisecond)
	_, ok := c.Get("disk-usage")
	assert.True(t, ok)
	assert.Len(t, c.List(), 3)
}
