package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/halyard-dev/halyard/internal/remote"
	"github.com/halyard-dev/halyard/internal/store"
	"github.com/halyard-dev/halyard/internal/stream"
	"github.com/halyard-dev/halyard/internal/tail"
	"github.com/halyard-dev/halyard/internal/ui"
)

var (
	execConnectionFlag string
	execCheckFlag      bool
	execWatchFlag      bool
	execTemplateFlag   string
	execParamsFlag     map[string]string
)

// execCmd runs a one-shot command through the same pipeline the server uses.
var execCmd = &cobra.Command{
	Use:   "exec [command]",
	Short: "Run a command on a remote host",
	Long: `Execute a command on a saved connection and stream its output.

Uses the active connection unless --connection names another one. With
--check, the command is first inspected for work that's already done
(installed packages, running containers) and skipped if so.

Examples:
  halyard exec "uptime"
  halyard exec --connection web-1 "df -h"
  halyard exec --check "apt install docker -y"
  halyard exec --watch "make test"
  halyard exec --template disk-usage --param path=/var`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && execTemplateFlag == "" {
			return stderrors.New("provide a command or --template")
		}
		if len(args) > 0 && execTemplateFlag != "" {
			return stderrors.New("a command and --template are mutually exclusive")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := execCommand(strings.Join(args, " "))
		if err != nil {
			return err
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func execCommand(command string) (int, error) {
	a, err := newApp(false)
	if err != nil {
		return 1, err
	}
	defer a.Close()

	source := "manual"
	if execTemplateFlag != "" {
		command, err = renderTemplateCommand(a)
		if err != nil {
			return 1, err
		}
		source = "template"
	}

	conn, err := pickConnection(a, execConnectionFlag)
	if err != nil {
		return 1, err
	}
	target := remote.Target{ID: conn.ID, Host: conn.Host, Port: conn.Port, User: conn.Username}

	if execWatchFlag && ui.IsTerminal() {
		return execWatch(a, target, conn, command, source)
	}
	return execPlain(a, target, conn, command, source)
}

// renderTemplateCommand expands --template/--param into a shell command. A
// template marked trusted opts out of the conflict check.
func renderTemplateCommand(a *app) (string, error) {
	cat, err := a.openCatalog()
	if err != nil {
		return "", err
	}
	if cat == nil {
		return "", errors.New(errors.ErrConfig,
			"No template catalog configured",
			"Set 'catalog' in the config to a templates YAML file")
	}

	command, err := cat.Render(execTemplateFlag, execParamsFlag)
	if err != nil {
		return "", err
	}
	if t, ok := cat.Get(execTemplateFlag); ok && t.SkipConflictCheck {
		execCheckFlag = false
	}
	return command, nil
}

// execPlain streams output straight to the terminal.
func execPlain(a *app, target remote.Target, conn *store.Connection, command, source string) (int, error) {
	sink := func(ch remote.Chunk) {
		if ch.Kind == remote.ChunkStderr {
			os.Stderr.Write(ch.Data) //nolint:errcheck // terminal write
			return
		}
		os.Stdout.Write(ch.Data) //nolint:errcheck // terminal write
	}

	result, verdict, err := a.coord.Execute(context.Background(), remote.ExecutionRequest{
		Target:         target,
		Command:        command,
		CheckConflicts: execCheckFlag,
		Sink:           sink,
	})

	if verdict != nil && verdict.IsDuplicate {
		fmt.Println(ui.RenderDuplicate(verdict.Message, verdict.Suggestions))
		return 0, nil
	}
	if err != nil && result == nil {
		return 1, err
	}

	recordHistory(a, conn.ID, command, source, result)

	fmt.Println(ui.RenderResult(result.ExitCode, result.ExitKnown, result.Failed, result.Aborted, result.Duration))
	if hint := remote.DiagnoseResult(command, result); hint != nil {
		fmt.Fprintln(os.Stderr, hint.Error())
	}

	switch {
	case result.Aborted:
		return 1, err
	case !result.ExitKnown:
		return 1, nil
	default:
		return result.ExitCode, nil
	}
}

// execWatch runs the command behind the broadcaster and tails it in a TUI.
func execWatch(a *app, target remote.Target, conn *store.Connection, command, source string) (int, error) {
	commandID := uuid.New().String()
	sub := a.bcast.Subscribe(commandID)
	defer a.bcast.Unsubscribe(commandID, sub)

	go func() {
		sink := func(ch remote.Chunk) {
			a.bcast.Publish(stream.Chunk{
				CommandID: commandID,
				ChunkType: string(ch.Kind),
				Data:      string(ch.Data),
			})
		}
		result, verdict, err := a.coord.Execute(context.Background(), remote.ExecutionRequest{
			Target:         target,
			Command:        command,
			CheckConflicts: execCheckFlag,
			Sink:           sink,
		})

		term := stream.Terminal{CommandID: commandID}
		switch {
		case verdict != nil && verdict.IsDuplicate:
			term.Message = verdict.Message
		case err != nil && result == nil:
			term.Aborted = true
			term.Message = err.Error()
		default:
			if result.ExitKnown {
				code := result.ExitCode
				term.ExitCode = &code
			}
			term.DurationMs = result.Duration.Milliseconds()
			term.Aborted = result.Aborted
			if err != nil {
				term.Message = err.Error()
			}
			recordHistory(a, conn.ID, command, source, result)
		}
		a.bcast.PublishTerminal(term)
	}()

	model, err := tail.Run(command, conn.Name, sub)
	if err != nil {
		return 1, err
	}
	if code := model.ExitCode(); code > 0 {
		return code, nil
	}
	return 0, nil
}

func recordHistory(a *app, connectionID, command, source string, result *remote.ExecutionResult) {
	exec := &store.Execution{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		Command:      command,
		Output:       result.Output,
		ExitCode:     result.ExitCode,
		ExitKnown:    result.ExitKnown,
		Aborted:      result.Aborted,
		DurationMs:   result.Duration.Milliseconds(),
		Source:       source,
	}
	if err := a.store.InsertExecution(context.Background(), exec); err != nil {
		a.log.Warn().Err(err).Msg("couldn't record execution history")
	}
}

// pickConnection resolves the target connection: by name when given,
// otherwise the active one.
func pickConnection(a *app, name string) (*store.Connection, error) {
	ctx := context.Background()
	if name != "" {
		conn, err := a.store.GetConnectionByName(ctx, name)
		if err != nil {
			if stderrors.Is(err, store.ErrNotFound) {
				return nil, errors.New(errors.ErrConfig,
					"No connection named "+name,
					"List connections with 'halyard connection list'")
			}
			return nil, err
		}
		return conn, nil
	}

	conns, err := a.store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range conns {
		if conns[i].Active {
			return &conns[i], nil
		}
	}
	return nil, errors.New(errors.ErrConfig,
		"No active connection",
		"Add one with 'halyard connection add' or pass --connection")
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVarP(&execConnectionFlag, "connection", "c", "", "connection name (defaults to the active one)")
	execCmd.Flags().BoolVar(&execCheckFlag, "check", false, "skip the command if its work is already done")
	execCmd.Flags().BoolVar(&execWatchFlag, "watch", false, "tail output in an interactive view")
	execCmd.Flags().StringVar(&execTemplateFlag, "template", "", "run a catalog template instead of a literal command")
	execCmd.Flags().StringToStringVar(&execParamsFlag, "param", nil, "template parameter as key=value (repeatable)")
}
