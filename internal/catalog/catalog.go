// Package catalog holds the named command templates users can run without
// writing shell themselves. Templates live in a YAML file and are reloaded
// automatically when the file changes.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Template is one catalog entry. Placeholders in Command use {{name}}
// syntax and must be listed in Params.
type Template struct {
	Name              string   `yaml:"name" json:"name"`
	Description       string   `yaml:"description" json:"description"`
	Command           string   `yaml:"command" json:"command"`
	Params            []string `yaml:"params,omitempty" json:"params,omitempty"`
	SkipConflictCheck bool     `yaml:"skip_conflict_check,omitempty" json:"skipConflictCheck,omitempty"`
}

type catalogFile struct {
	Templates []Template `yaml:"templates"`
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Catalog is a reloadable set of templates.
type Catalog struct {
	path string
	log  zerolog.Logger

	mu        sync.RWMutex
	templates map[string]Template
	order     []string
}

// Load reads the catalog file at path. A missing file yields an empty
// catalog (templates are optional).
func Load(path string, log zerolog.Logger) (*Catalog, error) {
	c := &Catalog{
		path:      path,
		log:       log,
		templates: make(map[string]Template),
	}
	if path == "" {
		return c, nil
	}

	if err := c.reload(); err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	return c, nil
}

func (c *Catalog) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid catalog file", "Check the YAML syntax in "+c.path)
	}

	templates := make(map[string]Template, len(file.Templates))
	order := make([]string, 0, len(file.Templates))
	for _, t := range file.Templates {
		if t.Name == "" || t.Command == "" {
			return errors.New(errors.ErrConfig,
				"Catalog template missing name or command",
				"Every template needs both fields in "+c.path)
		}
		if _, dup := templates[t.Name]; dup {
			return errors.New(errors.ErrConfig,
				"Duplicate catalog template: "+t.Name, "")
		}
		templates[t.Name] = t
		order = append(order, t.Name)
	}

	c.mu.Lock()
	c.templates = templates
	c.order = order
	c.mu.Unlock()

	c.log.Debug().Int("templates", len(order)).Str("path", c.path).Msg("catalog loaded")
	return nil
}

// Get returns a template by name.
func (c *Catalog) Get(name string) (Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[name]
	return t, ok
}

// List returns all templates in file order.
func (c *Catalog) List() []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Template, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.templates[name])
	}
	return out
}

// Render substitutes params into the named template's command. Every
// placeholder must be supplied; unknown or missing params are errors, not
// silent blanks in a shell command.
func (c *Catalog) Render(name string, params map[string]string) (string, error) {
	t, ok := c.Get(name)
	if !ok {
		return "", errors.New(errors.ErrConfig,
			"Unknown template: "+name,
			"List available templates with 'halyard templates' or GET /api/templates")
	}

	var missing []string
	rendered := placeholderRe.ReplaceAllStringFunc(t.Command, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		val, ok := params[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		return val
	})

	if len(missing) > 0 {
		return "", errors.New(errors.ErrConfig,
			fmt.Sprintf("Template %s is missing params: %s", name, strings.Join(missing, ", ")),
			"Supply every placeholder value")
	}
	return rendered, nil
}

// Watch reloads the catalog when its file changes, until stop is closed.
// A broken edit keeps the last good catalog in place.
func (c *Catalog) Watch(stop <-chan struct{}) error {
	if c.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors often replace the file, which drops a
	// watch set directly on it.
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != filepath.Base(c.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := c.reload(); err != nil {
					c.log.Warn().Err(err).Msg("catalog reload failed, keeping previous templates")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.log.Warn().Err(err).Msg("catalog watcher error")
			}
		}
	}()

	return nil
}
