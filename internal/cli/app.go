package cli

import (
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/halyard-dev/halyard/internal/catalog"
	"github.com/halyard-dev/halyard/internal/config"
	"github.com/halyard-dev/halyard/internal/conflict"
	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/halyard-dev/halyard/internal/oracle"
	"github.com/halyard-dev/halyard/internal/remote"
	"github.com/halyard-dev/halyard/internal/store"
	"github.com/halyard-dev/halyard/internal/stream"
	"github.com/halyard-dev/halyard/pkg/sshutil"
)

// app holds the wired execution pipeline shared by serve and exec.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *store.Store
	coord    *remote.Coordinator
	bcast    *stream.Broadcaster
	resolver *remote.AuthResolver
	hostKeys ssh.HostKeyCallback
}

// newApp loads config and wires the pipeline. forceJSONLogs switches off the
// console writer regardless of TTY (serve mode).
func newApp(forceJSONLogs bool) (*app, error) {
	cfg, err := config.LoadOrDefault(configFlag)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.Log.Level, forceJSONLogs)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't create data directory "+cfg.DataDir,
			"Check permissions, or point data_dir somewhere writable")
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	env := remote.EnvCredentials()
	if cfg.SSH.KeyFile != "" {
		env.KeyFilePath = cfg.SSH.KeyFile
	}
	resolver := remote.NewAuthResolver(env, log)

	hostKeys, err := sshutil.HostKeyCallback(cfg.SSH.KnownHosts, cfg.SSH.StrictHostKey)
	if err != nil {
		st.Close()
		return nil, err
	}

	sessions := remote.NewSessionManager(resolver, hostKeys, log,
		remote.WithConnectTimeout(cfg.SSH.ConnectTimeout))
	coord := remote.NewCoordinator(sessions, remote.NewExecutor(log),
		conflict.NewInspector(log), st, log)

	return &app{
		cfg:      cfg,
		log:      log,
		store:    st,
		coord:    coord,
		bcast:    stream.NewBroadcaster(log),
		resolver: resolver,
		hostKeys: hostKeys,
	}, nil
}

// Close releases the pipeline's resources: SSH sessions first, then the
// agent connection and the database.
func (a *app) Close() {
	a.coord.Sessions().DisconnectAll()
	a.resolver.Close()
	a.store.Close() //nolint:errcheck // shutdown cleanup
}

// openCatalog loads the configured template catalog, or nil when none is
// configured.
func (a *app) openCatalog() (*catalog.Catalog, error) {
	if a.cfg.Catalog == "" {
		return nil, nil
	}
	return catalog.Load(a.cfg.Catalog, a.log)
}

// oracleClient builds the translation client, or nil when no endpoint is
// configured.
func (a *app) oracleClient() *oracle.Client {
	if a.cfg.Oracle.Endpoint == "" {
		return nil
	}
	return oracle.NewClient(a.cfg.Oracle.Endpoint, a.cfg.OracleToken(), a.cfg.Oracle.Timeout)
}
