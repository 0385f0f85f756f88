// Package cmds implements the debugify command line.
package cmds

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctagard/debugify/internal/adapters"
	"github.com/ctagard/debugify/internal/config"
	"github.com/ctagard/debugify/internal/logflags"
	"github.com/ctagard/debugify/internal/mcp"
	"github.com/ctagard/debugify/internal/version"
)

var (
	// configPath is the path to the debugify configuration file.
	configPath string
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of layers that should produce debug output.
	logOutput string

	// mode overrides the configured capability mode for serve.
	mode string

	// run flags
	adapterName  string
	programArgs  string
	breakpoints  []string
	stopOnEntry  bool
	launchConfig string
	launchJSON   string
	workingDir   string

	checkUpdates bool
)

const debugifyLongDesc = `debugify drives native debuggers (Delve, lldb-dap, GDB) through the
Debug Adapter Protocol and exposes the session as Model Context Protocol tools.

Pass flags to the program you are debugging with --args, e.g.:

	debugify run ./bin/server --args "--port 8080" --break main.go:42`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "debugify",
		Short:         "debugify is a debugger session controller.",
		Long:          debugifyLongDesc,
		SilenceUsage: true,
	}

	rootCommand.PersistentFlags().StringVar(&configPath, "config", "", "Path to a configuration file (JSON, or YAML/TOML by .yaml/.toml extension).")
	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging on stderr.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of layers that should produce debug output: session, dap, pump, mcp.`)

	// 'serve' subcommand.
	serveCommand := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio.",
		Long: `Run the Model Context Protocol server on stdin/stdout.

In readonly mode only inspection tools are registered. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: serveCmd,
	}
	serveCommand.Flags().StringVar(&mode, "mode", "", "Capability mode: 'readonly' or 'full' (default from configuration).")
	rootCommand.AddCommand(serveCommand)

	// 'run' subcommand.
	runCommand := &cobra.Command{
		Use:   "run [program]",
		Short: "Launch a program under the debugger and report what it does.",
		Long: `Launch a program under the debugger, print its state changes and output,
print the current thread's stack at every stop and continue, and finish with
the exit status.

The program may be omitted when --launch-config names a launch.json entry.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCmd,
	}
	runCommand.Flags().StringVar(&adapterName, "adapter", "", "Debug adapter: delve, lldb or gdb (default: delve).")
	runCommand.Flags().StringVar(&programArgs, "args", "", "Arguments passed to the program, as one shell-style string.")
	runCommand.Flags().StringArrayVarP(&breakpoints, "break", "b", nil, "Set a breakpoint at file:line. May be repeated.")
	runCommand.Flags().BoolVar(&stopOnEntry, "stop-on-entry", false, "Stop at the program entry point.")
	runCommand.Flags().StringVar(&launchConfig, "launch-config", "", "Name of a .vscode/launch.json configuration to run.")
	runCommand.Flags().StringVar(&launchJSON, "launch-json", "", "Path to launch.json (discovered from the working directory by default).")
	runCommand.Flags().StringVar(&workingDir, "wd", "", "Working directory for running the program.")
	rootCommand.AddCommand(runCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			if !checkUpdates {
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			info, err := version.CheckForUpdates(ctx, "")
			if err != nil {
				return err
			}
			if msg := info.UpdateMessage(); msg != "" {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			return nil
		},
	}
	versionCommand.Flags().BoolVar(&checkUpdates, "check", false, "Check GitHub for a newer release.")
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

// setup loads the configuration and configures logging from it and the flags.
func setup() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	enabled := log || cfg.Log.Enabled
	layers := logOutput
	if layers == "" && enabled {
		layers = cfg.Log.Layers
	}
	if err := logflags.Setup(enabled, layers); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	switch mode {
	case "":
	case string(config.ModeReadOnly), string(config.ModeFull):
		cfg.Mode = config.CapabilityMode(mode)
	default:
		return fmt.Errorf("invalid mode %q: must be 'readonly' or 'full'", mode)
	}

	server := mcp.NewServer(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		server.Close()
		os.Exit(0)
	}()

	err = server.ServeStdio()
	server.Close()
	return err
}

func runCmd(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if !cfg.CanLaunch() {
		return fmt.Errorf("launching programs is disabled by the configuration")
	}

	opts := runOptions{
		adapter:      adapterName,
		args:         programArgs,
		breakpoints:  breakpoints,
		stopOnEntry:  stopOnEntry,
		launchConfig: launchConfig,
		launchJSON:   launchJSON,
		cwd:          workingDir,
	}
	if len(args) > 0 {
		opts.program = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := newRunner(adapters.NewRegistry(cfg).Backend(cfg.RequestTimeout.Std()), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	status, err := r.run(ctx, opts)
	if err != nil {
		return err
	}
	if status != 0 {
		return &ExitError{Status: status}
	}
	return nil
}

// ExitError carries a non-zero debuggee exit status out of `debugify run`.
type ExitError struct {
	Status int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("program exited with status %d", e.Status)
}
