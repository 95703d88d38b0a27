// Package cli implements the halyard command-line interface.
//
// The package is organized around Cobra commands, with each command
// delegating to the shared pipeline in internal/remote for the actual
// work. The general structure separates:
//
//   - Command definitions (cobra.Command instances)
//   - Pipeline wiring (the app type: config, store, session manager,
//     coordinator, broadcaster)
//   - Implementation details (in other internal packages)
//
// # Command Structure
//
// The root command is "halyard" with subcommands for different operations:
//
//	halyard serve                       - Start the HTTP/WebSocket API
//	halyard exec [command]              - Run a one-shot remote command
//	halyard connection add|list|remove  - Manage saved connections
//	halyard connection import           - Import hosts from ~/.ssh/config
//	halyard connection deploy-key       - Install a public key remotely
//	halyard init                        - Create .halyard.yaml config
//	halyard version                     - Print version information
//
// # Pipeline Wiring
//
// newApp loads the config and builds the execution pipeline once per
// invocation: credential resolver, session manager, executor, conflict
// inspector, coordinator, and broadcaster. serve hands the pipeline to the
// HTTP server; exec drives it directly. The app must be closed to drain
// SSH sessions and the database handle.
//
// # Flag Handling
//
// Global flags (--config, --verbose, --no-color) are defined on the root
// command and available to all subcommands. Command-specific flags like
// --connection and --check are defined on individual commands.
package cli
