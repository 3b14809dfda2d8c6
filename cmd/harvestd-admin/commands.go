package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/harvestd/internal/domain/model"
	"github.com/target/harvestd/internal/service"
)

var (
	errSourceRequired    = errors.New("-source is required")
	errQueueUnavailable  = errors.New("harvest passes need a configured queue")
	errAborted           = errors.New("aborted")
	errImportFilterEmpty = errors.New("one of -source, -object or -package is required")
)

func runMigrate(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	timeout := fs.Duration("timeout", 5*time.Minute, "maximum time to wait for migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	migrateCtx := *cmdCtx
	migrateCtx.Ctx = ctx
	return withServices(&migrateCtx, openOptions{MigrateOnly: true}, func(s *adminServices) error {
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return writeln(cmdCtx.Out, "migrations applied")
	})
}

func runPass(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("run-pass", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	sourceID := fs.String("source", "", "restrict the pass to one source")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cmdCtx, openOptions{NeedQueue: true}, func(s *adminServices) error {
		if s.Passes == nil {
			return errQueueUnavailable
		}
		res, err := s.Passes.RunPass(cmdCtx.Ctx, strings.TrimSpace(*sourceID))
		if encErr := writeJSON(cmdCtx.Out, res); encErr != nil {
			return errors.Join(err, encErr)
		}
		return err
	})
}

func runCreateJob(cmdCtx *commandContext, args []string) error {
	sourceID, err := parseSourceFlag("create-job", cmdCtx.Out, args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, openOptions{}, func(s *adminServices) error {
		job, err := s.Jobs.CreateJob(cmdCtx.Ctx, sourceID)
		if err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		return writeJSON(cmdCtx.Out, job)
	})
}

func runReindexSource(cmdCtx *commandContext, args []string) error {
	sourceID, err := parseSourceFlag("reindex-source", cmdCtx.Out, args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, openOptions{}, func(s *adminServices) error {
		if err := s.Reindex.ReindexSource(cmdCtx.Ctx, sourceID, false); err != nil {
			return fmt.Errorf("reindex source %s: %w", sourceID, err)
		}
		return writef(cmdCtx.Out, "reindexed source %s\n", sourceID)
	})
}

func runReindexAll(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("reindex-all", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withServices(cmdCtx, openOptions{}, func(s *adminServices) error {
		res, err := s.Reindex.ReindexAllSources(cmdCtx.Ctx)
		if err != nil {
			return fmt.Errorf("reindex sources: %w", err)
		}
		return writeJSON(cmdCtx.Out, res)
	})
}

func runClearSource(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("clear-source", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	sourceID := fs.String("source", "", "source ID (required)")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := strings.TrimSpace(*sourceID)
	if id == "" {
		return errSourceRequired
	}
	if !*yes {
		ok, err := confirmAction(cmdCtx, fmt.Sprintf("Delete all datasets, objects and jobs of source %s?", id))
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}

	return withServices(cmdCtx, openOptions{}, func(s *adminServices) error {
		res, err := s.Admin.ClearSource(cmdCtx.Ctx, id)
		if err != nil {
			return fmt.Errorf("clear source %s: %w", id, err)
		}
		return writeJSON(cmdCtx.Out, map[string]any{"source_id": id, "steps": res.Steps})
	})
}

func runClearIndex(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("clear-index", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	sourceID := fs.String("source", "", "source ID (required)")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := strings.TrimSpace(*sourceID)
	if id == "" {
		return errSourceRequired
	}
	if !*yes {
		ok, err := confirmAction(cmdCtx, fmt.Sprintf("Remove the search documents of source %s?", id))
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}

	return withServices(cmdCtx, openOptions{}, func(s *adminServices) error {
		if err := s.Admin.ClearSourceIndex(cmdCtx.Ctx, id); err != nil {
			return fmt.Errorf("clear index of source %s: %w", id, err)
		}
		return writef(cmdCtx.Out, "cleared index of source %s\n", id)
	})
}

func runImportObjects(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("import-objects", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	sourceID := fs.String("source", "", "import the current objects of a source")
	objectID := fs.String("object", "", "import one harvest object")
	packageID := fs.String("package", "", "import the current object of a dataset")
	segments := fs.String("segments", "", "only objects whose md5(id) starts with one of these hex characters")
	force := fs.Bool("force", false, "import even when content has not changed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := service.ImportRequest{
		ObjectImportFilter: model.ObjectImportFilter{
			SourceID:  strings.TrimSpace(*sourceID),
			ObjectID:  strings.TrimSpace(*objectID),
			PackageID: strings.TrimSpace(*packageID),
			Segments:  strings.TrimSpace(*segments),
		},
		Force: *force,
	}
	if req.Empty() {
		return errImportFilterEmpty
	}

	return withServices(cmdCtx, openOptions{}, func(s *adminServices) error {
		res, err := s.Admin.ImportObjects(cmdCtx.Ctx, req)
		if err != nil {
			return fmt.Errorf("import objects: %w", err)
		}
		return writeJSON(cmdCtx.Out, res)
	})
}

func runHarvesters(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("harvesters", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withServices(cmdCtx, openOptions{}, func(s *adminServices) error {
		infos := s.Harvesters.List()
		if len(infos) == 0 {
			return writeln(cmdCtx.Out, "no harvesters registered")
		}
		tw := tabwriter.NewWriter(cmdCtx.Out, 0, 4, 2, ' ', 0)
		if err := writeln(tw, "NAME\tTITLE\tDESCRIPTION"); err != nil {
			return err
		}
		for _, info := range infos {
			if err := writef(tw, "%s\t%s\t%s\n", info.Name, info.Title, info.Description); err != nil {
				return err
			}
		}
		return tw.Flush()
	})
}

func parseSourceFlag(name string, out io.Writer, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	sourceID := fs.String("source", "", "source ID (required)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	id := strings.TrimSpace(*sourceID)
	if id == "" {
		return "", errSourceRequired
	}
	return id, nil
}

func confirmAction(cmdCtx *commandContext, prompt string) (bool, error) {
	if err := writef(cmdCtx.Out, "%s [y/N]: ", prompt); err != nil {
		return false, err
	}
	reader := bufio.NewReader(cmdCtx.In)
	answer, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
