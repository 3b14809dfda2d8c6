package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/target/harvestd/config"
	"github.com/target/harvestd/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader
	// open connects what a command needs. Tests replace it.
	open openFunc
}

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
		In:     os.Stdin,
		open:   openInfrastructure,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrate,
		},
		"run-pass": {
			name:        "run-pass",
			description: "Run one harvest pass: schedule, reconcile and dispatch",
			run:         runPass,
		},
		"create-job": {
			name:        "create-job",
			description: "Create a New harvest job for a source",
			run:         runCreateJob,
		},
		"reindex-source": {
			name:        "reindex-source",
			description: "Rebuild the search document of a source",
			run:         runReindexSource,
		},
		"reindex-all": {
			name:        "reindex-all",
			description: "Rebuild the search documents of every active source",
			run:         runReindexAll,
		},
		"clear-source": {
			name:        "clear-source",
			description: "Delete every dataset, object and job a source produced",
			run:         runClearSource,
		},
		"clear-index": {
			name:        "clear-index",
			description: "Remove a source's documents from the search index",
			run:         runClearIndex,
		},
		"import-objects": {
			name:        "import-objects",
			description: "Run the import stage again for stored harvest objects",
			run:         runImportObjects,
		},
		"harvesters": {
			name:        "harvesters",
			description: "List registered harvesters",
			run:         runHarvesters,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: harvestd-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}
