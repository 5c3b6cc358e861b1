// Command leadctl runs one-off operator tasks against the lead store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spacesedan/leadscout/internal/bootstrap"
	"github.com/spacesedan/leadscout/internal/enrichment"
	"github.com/spacesedan/leadscout/internal/models"
)

type command struct {
	usage string
	run   func(ctx context.Context, app *bootstrap.App, args []string) error
}

var commands = map[string]command{
	"migrate":   {"migrate", migrate},
	"replay":    {"replay -user ID -watch ID -file item.json", replay},
	"extract":   {"extract -user ID -text DESCRIPTION", extract},
	"suggest":   {"suggest -user ID [-n 10] [-exclude a,b]", suggest},
	"usage":     {"usage [-user ID]", usage},
	"reconcile": {"reconcile [-window 24h] [-limit 500]", reconcile},
	"watch":     {"watch -user ID -subreddit NAME -keywords a,b [-exclude c] [-types post,comment]", createWatch},
	"pause":     {"pause -watch ID", setWatch(false)},
	"resume":    {"resume -watch ID", setWatch(true)},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		printUsage()
		os.Exit(2)
	}

	cfg, err := bootstrap.Init()
	if err != nil {
		slog.Error("[LeadCtl] Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("[LeadCtl] Failed to connect storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer app.Close()

	if err := cmd.run(ctx, app, os.Args[2:]); err != nil {
		slog.Error("[LeadCtl] Command failed",
			slog.String("command", os.Args[1]),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: leadctl <command> [flags]")
	for _, c := range commands {
		fmt.Fprintln(os.Stderr, "  leadctl "+c.usage)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrate(ctx context.Context, app *bootstrap.App, _ []string) error {
	m, ok := app.Repo.(interface{ Migrate(context.Context) error })
	if !ok {
		return fmt.Errorf("storage backend %q has no schema", app.Config.StorageBackend)
	}
	if err := m.Migrate(ctx); err != nil {
		return err
	}
	if app.Pgmq != nil && app.Config.QueueBackend == "pgmq" {
		if err := app.Pgmq.Create(ctx, app.Config.PgmqEnrichmentName); err != nil {
			return err
		}
	}
	slog.Info("[LeadCtl] Schema is up to date")
	return nil
}

// replay pushes a single content item through scoring, quota and the gate on
// behalf of a user, skipping keyword matching.
func replay(ctx context.Context, app *bootstrap.App, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	userID := fs.String("user", "", "user id")
	watchID := fs.String("watch", "", "watch id the lead is attributed to")
	file := fs.String("file", "", "JSON file holding the content item")
	_ = fs.Parse(args)
	if *userID == "" || *file == "" {
		return fmt.Errorf("-user and -file are required")
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var item models.ContentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return fmt.Errorf("decode %s: %w", *file, err)
	}

	processor, err := app.Processor(ctx)
	if err != nil {
		return err
	}
	res := processor.Replay(ctx, *userID, *watchID, item)
	if res.Err != nil {
		return res.Err
	}
	return printJSON(map[string]any{
		"outcome": res.Outcome,
		"lead_id": res.LeadID,
		"score":   res.Score,
		"reason":  res.Reason,
	})
}

func extract(ctx context.Context, app *bootstrap.App, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	userID := fs.String("user", "", "user id")
	text := fs.String("text", "", "free-text business description")
	_ = fs.Parse(args)
	if *userID == "" || *text == "" {
		return fmt.Errorf("-user and -text are required")
	}

	adv, err := app.Advisor(ctx)
	if err != nil {
		return err
	}
	profile, err := adv.ExtractBusinessInfo(ctx, *userID, *text)
	if err != nil {
		return err
	}
	return printJSON(profile)
}

func suggest(ctx context.Context, app *bootstrap.App, args []string) error {
	fs := flag.NewFlagSet("suggest", flag.ExitOnError)
	userID := fs.String("user", "", "user id")
	n := fs.Int("n", 10, "number of suggestions")
	exclude := fs.String("exclude", "", "comma separated subreddits to leave out")
	_ = fs.Parse(args)
	if *userID == "" {
		return fmt.Errorf("-user is required")
	}

	adv, err := app.Advisor(ctx)
	if err != nil {
		return err
	}
	names, err := adv.SuggestSubreddits(ctx, *userID, *n, splitList(*exclude))
	if err != nil {
		return err
	}
	return printJSON(names)
}

// usage prints today's AI spend for a user, or across all users when -user is empty.
func usage(ctx context.Context, app *bootstrap.App, args []string) error {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	userID := fs.String("user", "", "user id")
	_ = fs.Parse(args)

	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	spend, err := app.Usage.SpendSince(ctx, *userID, startOfDay)
	if err != nil {
		return err
	}
	return printJSON(spend)
}

func reconcile(ctx context.Context, app *bootstrap.App, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	window := fs.Duration("window", app.Config.ReconcileWindow, "how far back to look for leads")
	limit := fs.Int("limit", 500, "max leads per run")
	_ = fs.Parse(args)

	dispatcher, err := app.Dispatcher(ctx)
	if err != nil {
		return err
	}
	sent, err := dispatcher.Reconcile(ctx, *window, *limit)
	if err != nil {
		return err
	}

	queue, err := app.EnrichmentQueue(ctx, false)
	if err != nil {
		return err
	}
	requeued, err := enrichment.NewSweeper(app.Repo, queue, app.Config.EnrichStaleAfter).Sweep(ctx)
	if err != nil {
		return err
	}
	slog.Info("[LeadCtl] Reconcile complete",
		slog.Int("notifications_sent", sent),
		slog.Int("enrichments_requeued", requeued))
	return nil
}

func createWatch(ctx context.Context, app *bootstrap.App, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	userID := fs.String("user", "", "user id")
	subreddit := fs.String("subreddit", "", "subreddit to watch")
	keywords := fs.String("keywords", "", "comma separated keywords")
	exclude := fs.String("exclude", "", "comma separated exclude keywords")
	types := fs.String("types", "post,comment", "content types to watch")
	account := fs.String("account", "", "source account")
	_ = fs.Parse(args)

	w := models.Watch{
		ID:              uuid.NewString(),
		UserID:          *userID,
		Subreddit:       *subreddit,
		Keywords:        splitList(*keywords),
		ExcludeKeywords: splitList(*exclude),
		Status:          models.WatchActive,
		SourceAccount:   *account,
	}
	for _, t := range splitList(*types) {
		w.ContentTypes = append(w.ContentTypes, models.ContentType(t))
	}
	if err := app.WatchService().Create(ctx, &w); err != nil {
		return err
	}
	return printJSON(w)
}

func setWatch(active bool) func(ctx context.Context, app *bootstrap.App, args []string) error {
	return func(ctx context.Context, app *bootstrap.App, args []string) error {
		fs := flag.NewFlagSet("watch-status", flag.ExitOnError)
		id := fs.String("watch", "", "watch id")
		_ = fs.Parse(args)
		if *id == "" {
			return fmt.Errorf("-watch is required")
		}
		svc := app.WatchService()
		if active {
			return svc.Resume(ctx, *id)
		}
		return svc.Pause(ctx, *id)
	}
}
