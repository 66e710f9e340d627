package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odyssey-erp/odyssey-campus/cmd/campusctl/cli"
	"github.com/odyssey-erp/odyssey-campus/internal/app"
	"github.com/odyssey-erp/odyssey-campus/jobs"
)

const usage = `usage: campusctl <command> [flags]

commands:
  jobs trigger <sync-status|reconcile> [-election ID] [-repair]
  jobs stats [-scheduled N]
  reconcile [-election ID | -status active|completed] [-repair] [-json]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	switch args[0] {
	case "jobs":
		return runJobs(ctx, cfg, args[1:], stdout, stderr)
	case "reconcile":
		return runReconcile(ctx, cfg, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	client := cli.NewJobsCLI(cfg.RedisAddr)
	defer client.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "jobs trigger: task name required")
			return 2
		}
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(stderr)
		election := fs.String("election", "", "election id (reconcile only)")
		repair := fs.Bool("repair", false, "rewrite drifted counters (reconcile only)")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		info, err := client.Trigger(ctx, args[1], jobs.ReconcilePayload{ElectionID: *election, Repair: *repair})
		if err != nil {
			fmt.Fprintf(stderr, "trigger %s: %v\n", args[1], err)
			return 1
		}
		fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		fs := flag.NewFlagSet("jobs stats", flag.ContinueOnError)
		fs.SetOutput(stderr)
		scheduled := fs.Int("scheduled", 0, "also list up to N scheduled tasks")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		stats, err := client.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "inspect queue: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
		if *scheduled > 0 {
			tasks, err := client.ListScheduled(ctx, *scheduled)
			if err != nil {
				fmt.Fprintf(stderr, "list scheduled: %v\n", err)
				return 1
			}
			for _, t := range tasks {
				fmt.Fprintf(stdout, "%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
			}
		}
		return 0
	default:
		fmt.Fprintf(stderr, "unknown jobs command %q\n", args[0])
		return 2
	}
}

func runReconcile(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.ReconcileOptions{Stdout: stdout, Stderr: stderr}
	fs.StringVar(&opts.ElectionID, "election", "", "reconcile a single election")
	fs.StringVar(&opts.Status, "status", "active", "reconcile every election in this status")
	fs.BoolVar(&opts.Repair, "repair", false, "rewrite drifted counters")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cfg.StoreDriver == app.StoreDriverMemory {
		fmt.Fprintln(stderr, "reconcile needs STORE_DRIVER=postgres")
		return 1
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svcs, err := app.BuildServices(ctx, cfg, logger, app.ServicesOptions{})
	if err != nil {
		fmt.Fprintf(stderr, "build services: %v\n", err)
		return 1
	}
	defer svcs.Close(logger)
	return cli.ReconcileCommand(ctx, svcs.Elections, opts)
}
