// Package main is the docpipe ops CLI: submit documents, poll job status,
// and poison runaway jobs, straight against the job store and the broker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/docpipe/docpipe/internal/artifact"
	"github.com/docpipe/docpipe/internal/config"
	"github.com/docpipe/docpipe/internal/pipeline"
	"github.com/docpipe/docpipe/internal/queue"
	"github.com/docpipe/docpipe/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "path to an env file loaded before configuration",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "docpipe",
		Usage: "operate the document processing pipeline",
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "submit a document file and enqueue its ingest task",
				ArgsUsage: "<file>",
				Flags:     []cli.Flag{envFlag},
				Action:    submitAction,
			},
			{
				Name:      "status",
				Usage:     "show a job's record",
				ArgsUsage: "<job-id>",
				Flags:     []cli.Flag{envFlag},
				Action:    statusAction,
			},
			{
				Name:  "list",
				Usage: "list jobs, newest first",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{Name: "status", Usage: "filter by status"},
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: listAction,
			},
			{
				Name:      "poison",
				Usage:     "flag a job so workers skip its remaining tasks",
				ArgsUsage: "<job-id>",
				Flags:     []cli.Flag{envFlag},
				Action:    poisonAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// appContext bundles the connections every command needs.
type appContext struct {
	svc    *pipeline.Service
	closer func()
}

func newAppContext(ctx context.Context, envFile string) (*appContext, error) {
	_ = godotenv.Load(envFile)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	broker, err := queue.NewRedisQueue(cfg.Redis.URL, cfg.Worker.VisibilityTimeout)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create redis queue: %w", err)
	}

	var artifacts artifact.Store
	switch cfg.Artifact.Backend {
	case "filesystem":
		artifacts, err = artifact.NewFSStore(cfg.Artifact.Dir)
		if err != nil {
			pool.Close()
			broker.Close()
			return nil, fmt.Errorf("create artifact store: %w", err)
		}
	default:
		artifacts = artifact.NewPostgresStore(pool)
	}

	return &appContext{
		svc: pipeline.NewService(store.NewPostgresStore(pool), broker, artifacts),
		closer: func() {
			broker.Close()
			pool.Close()
		},
	}, nil
}

func (a *appContext) Close() { a.closer() }

func submitAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: docpipe submit <file>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	app, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	job, err := app.svc.Submit(ctx, data)
	if err != nil {
		return err
	}
	return printJSON(job)
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseJobID(cmd)
	if err != nil {
		return err
	}

	app, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	job, err := app.svc.Get(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(job)
}

func listAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	jobs, total, err := app.svc.List(ctx, store.ListFilter{
		Status: cmd.String("status"),
		Page:   cmd.Int("page"),
		Limit:  cmd.Int("limit"),
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"jobs": jobs, "total": total})
}

func poisonAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseJobID(cmd)
	if err != nil {
		return err
	}

	app, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.svc.Poison(ctx, id); err != nil {
		return err
	}
	fmt.Printf("job %s poisoned\n", id)
	return nil
}

func parseJobID(cmd *cli.Command) (uuid.UUID, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return uuid.Nil, fmt.Errorf("a job ID argument is required")
	}
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job ID %q: %w", arg, err)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
