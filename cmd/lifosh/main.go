package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	kongcompletion "github.com/jotaen/kong-completion"
	"github.com/riywo/loginshell"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Context is the shared state every subcommand's Run method receives.
type Context struct {
	AppBaseDir string
	LogFile    string
	LogLevel   string
}

// CLI is the root command set: an in-browser virtual operating system's
// front door, mirroring the shape of a lightweight-sandbox manager's CLI
// (one persistent daemon, one or more interactive sessions, a handful of
// utility subcommands) generalized from "manage containers" to "run a
// virtual OS".
type CLI struct {
	LogFile    string `default:"" placeholder:"<log-file-path>" help:"location of log file (leave empty for a random tmp/ path)"`
	LogLevel   string `default:"info" placeholder:"<debug|info|warn|error>" help:"the logging level (debug, info, warn, error)"`
	AppBaseDir string `default:"" placeholder:"<dir>" help:"directory holding the daemon's socket, lock file, and host key. Leave unset to use '~/.lifosh'"`

	Repl    ReplCmd    `cmd:"" help:"start an interactive shell session"`
	Run     RunCmd     `cmd:"" help:"run a script file non-interactively"`
	Daemon  DaemonCmd  `cmd:"" help:"start, stop, restart, or check the background daemon"`
	Version VersionCmd `cmd:"" help:"print version information about this command"`
	Doc     DocCmd     `cmd:"" help:"print complete command help formatted as markdown"`
}

func (c *CLI) initSlog(cctx *kong.Context) {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logFile := c.LogFile
	if strings.HasPrefix(cctx.Command(), "daemon") && logFile != "" {
		logFile += "-daemon"
	}
	if logFile == "" {
		tmp, err := os.CreateTemp("", "lifosh-log")
		if err != nil {
			panic(err)
		}
		logFile = tmp.Name()
		tmp.Close()
	} else if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		panic(err)
	}

	// the daemon outlives any one CLI invocation, so its log file is
	// rotated rather than left to grow forever.
	writer := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
	}

	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	slog.Info("slog initialized")
}

const description = "An in-browser virtual operating system: an in-memory filesystem, a POSIX-ish shell, and a Node-compatible script runtime."

func appHomeDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}
	appDir := filepath.Join(homeDir, ".lifosh")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return "", fmt.Errorf("error creating app directory: %w", err)
	}
	return appDir, nil
}

func main() {
	var cli CLI

	parser := kong.Must(&cli,
		kong.Configuration(kongyaml.Loader, ".lifosh.yml", "~/.lifosh.yml"),
		kong.Description(description))
	kongcompletion.Register(parser)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	cli.initSlog(ctx)

	appBaseDir := cli.AppBaseDir
	if appBaseDir == "" {
		appBaseDir, err = appHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "unable to get application home directory: %v\n", err)
			os.Exit(1)
		}
	}
	slog.Info("main", "appBaseDir", appBaseDir)

	if shellPath, err := loginshell.Shell(); err == nil {
		if os.Getenv("SHELL") == "" {
			os.Setenv("SHELL", shellPath)
		}
	}

	err = ctx.Run(&Context{
		AppBaseDir: appBaseDir,
		LogFile:    cli.LogFile,
		LogLevel:   cli.LogLevel,
	})
	ctx.FatalIfErrorf(err)
}
