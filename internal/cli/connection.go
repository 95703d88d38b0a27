package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/halyard-dev/halyard/internal/remote"
	"github.com/halyard-dev/halyard/internal/setup"
	"github.com/halyard-dev/halyard/internal/store"
	"github.com/halyard-dev/halyard/internal/ui"
	"github.com/halyard-dev/halyard/pkg/sshutil"
)

var (
	connAddHostFlag string
	connAddPortFlag int
	connAddUserFlag string
	connAddActivate bool
	connImportPath  string
	deployKeyFlag   string
)

var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Manage saved connections",
	Long:  `Add, list, remove, and import remote host connections.`,
}

var connectionAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Save a new connection",
	Long: `Save a remote host so commands can target it by name.

Examples:
  halyard connection add web-1 --host 10.0.0.5 --user deploy
  halyard connection add db --host db.example.com --port 2222 --user admin --activate`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if connAddHostFlag == "" || connAddUserFlag == "" {
			return errors.New(errors.ErrConfig,
				"--host and --user are required",
				"Example: halyard connection add web-1 --host 10.0.0.5 --user deploy")
		}

		conn := &store.Connection{
			Name:     args[0],
			Host:     connAddHostFlag,
			Port:     connAddPortFlag,
			Username: connAddUserFlag,
		}
		ctx := context.Background()
		if err := a.store.CreateConnection(ctx, conn); err != nil {
			return err
		}
		if connAddActivate {
			if err := a.store.SetActive(ctx, conn.ID); err != nil {
				return err
			}
		}
		fmt.Printf("%s Saved %s (%s@%s:%d)\n", ui.SymbolSuccess, conn.Name, conn.Username, conn.Host, conn.Port)
		return nil
	},
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		conns, err := a.store.ListConnections(context.Background())
		if err != nil {
			return err
		}
		if len(conns) == 0 {
			fmt.Println("No connections saved. Add one with 'halyard connection add'.")
			return nil
		}

		cols := []ui.TableColumn{
			{Title: "", Width: 2},
			{Title: "NAME", Width: 16},
			{Title: "HOST", Width: 24},
			{Title: "USER", Width: 12},
			{Title: "PORT", Width: 6},
		}
		rows := make([][]string, 0, len(conns))
		for _, c := range conns {
			marker := ""
			if c.Active {
				marker = ui.SymbolSuccess
			}
			rows = append(rows, []string{marker, c.Name, c.Host, c.Username, strconv.Itoa(c.Port)})
		}
		fmt.Println(ui.RenderSimpleTable(cols, rows))
		return nil
	},
}

var connectionRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a saved connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		conn, err := a.store.GetConnectionByName(ctx, args[0])
		if err != nil {
			if stderrors.Is(err, store.ErrNotFound) {
				return errors.New(errors.ErrConfig,
					"No connection named "+args[0],
					"List connections with 'halyard connection list'")
			}
			return err
		}

		a.coord.Sessions().Disconnect(conn.ID)
		if err := a.store.DeleteConnection(ctx, conn.ID); err != nil {
			return err
		}
		fmt.Printf("%s Removed %s\n", ui.SymbolSuccess, conn.Name)
		return nil
	},
}

var connectionImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import hosts from ~/.ssh/config",
	Long: `Import concrete host entries from your SSH config as connections.

Wildcard patterns are skipped. Existing connection names are left alone.

Examples:
  halyard connection import
  halyard connection import --ssh-config /path/to/config`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		var entries []sshutil.SSHHostEntry
		if connImportPath != "" {
			entries, err = sshutil.ParseSSHConfigFile(connImportPath)
		} else {
			entries, err = sshutil.ParseSSHConfig()
		}
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't parse SSH config",
				"Check the file for syntax errors")
		}
		if len(entries) == 0 {
			fmt.Println("No importable hosts found in SSH config.")
			return nil
		}

		ctx := context.Background()
		imported := 0
		for _, e := range entries {
			if _, err := a.store.GetConnectionByName(ctx, e.Alias); err == nil {
				continue // keep the existing record
			}

			host := e.Hostname
			if host == "" {
				host = e.Alias
			}
			port := 22
			if e.Port != "" {
				if p, err := strconv.Atoi(e.Port); err == nil {
					port = p
				}
			}
			conn := &store.Connection{
				Name:     e.Alias,
				Host:     host,
				Port:     port,
				Username: e.User,
			}
			if err := a.store.CreateConnection(ctx, conn); err != nil {
				a.log.Warn().Err(err).Str("alias", e.Alias).Msg("skipping host")
				continue
			}
			fmt.Printf("%s Imported %s (%s)\n", ui.SymbolSuccess, e.Alias, e.Description())
			imported++
		}
		fmt.Printf("Imported %d of %d hosts.\n", imported, len(entries))
		return nil
	},
}

var connectionDeployKeyCmd = &cobra.Command{
	Use:   "deploy-key <name>",
	Short: "Install your public key on a connection's host",
	Long: `Deploy your SSH public key to the remote authorized_keys so future
sessions authenticate without a password.

Uses your preferred local key unless --key points at another .pub file.

Examples:
  halyard connection deploy-key web-1
  halyard connection deploy-key web-1 --key ~/.ssh/id_rsa.pub`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		conn, err := a.store.GetConnectionByName(ctx, args[0])
		if err != nil {
			if stderrors.Is(err, store.ErrNotFound) {
				return errors.New(errors.ErrConfig,
					"No connection named "+args[0],
					"List connections with 'halyard connection list'")
			}
			return err
		}

		pubPath := deployKeyFlag
		if pubPath == "" {
			key := setup.GetPreferredKey()
			if key == nil || !key.HasPublic {
				return errors.New(errors.ErrAuth,
					"No SSH public key found on this machine",
					"Generate one first: ssh-keygen -t ed25519")
			}
			pubPath = key.PublicPath
		}
		pubKey, err := setup.ReadPublicKey(pubPath)
		if err != nil {
			return err
		}

		// Deployment does extra remote writes, so connect with the longer
		// ceiling.
		deployMgr := remote.NewSessionManager(a.resolver, a.hostKeys, a.log,
			remote.WithConnectTimeout(remote.DeployConnectTimeout))
		defer deployMgr.DisconnectAll()

		sess, err := deployMgr.Ensure(ctx, remote.Target{
			ID:   conn.ID,
			Host: conn.Host,
			Port: conn.Port,
			User: conn.Username,
		})
		if err != nil {
			return err
		}

		if err := setup.DeployAuthorizedKey(sess.Client(), pubKey); err != nil {
			return err
		}
		if err := setup.VerifyAccess(sess.Client()); err != nil {
			return err
		}

		fmt.Printf("%s Key deployed to %s\n", ui.SymbolSuccess, conn.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectionCmd)
	connectionCmd.AddCommand(connectionAddCmd)
	connectionCmd.AddCommand(connectionListCmd)
	connectionCmd.AddCommand(connectionRemoveCmd)
	connectionCmd.AddCommand(connectionImportCmd)
	connectionCmd.AddCommand(connectionDeployKeyCmd)

	connectionAddCmd.Flags().StringVar(&connAddHostFlag, "host", "", "host name or IP address")
	connectionAddCmd.Flags().IntVar(&connAddPortFlag, "port", 22, "SSH port")
	connectionAddCmd.Flags().StringVar(&connAddUserFlag, "user", "", "SSH username")
	connectionAddCmd.Flags().BoolVar(&connAddActivate, "activate", false, "make this the active connection")
	connectionImportCmd.Flags().StringVar(&connImportPath, "ssh-config", "", "SSH config file (defaults to ~/.ssh/config)")
	connectionDeployKeyCmd.Flags().StringVar(&deployKeyFlag, "key", "", "public key file to deploy")
}
