// Package main runs the October automation jobs: forwarding new posts that
// mention the app to a Slack channel, and mailing the invitation with its
// inline banner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"october-automation/chat"
	"october-automation/config"
	"october-automation/email"
	"october-automation/poll"
	"october-automation/search"
	"october-automation/server"
	"october-automation/storage"
)

const usage = `usage: october-automation <command> [flags]

commands:
  poll    search once and notify new posts
  serve   run the HTTP trigger and optional schedule
  invite  send the invitation email to every recipient
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("Command failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("no command given")
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath := fs.String("config", "", "path to YAML config file")
	var dryRun, seed *bool
	switch args[0] {
	case "poll":
		dryRun = fs.Bool("dry-run", false, "log notifications instead of posting them")
		seed = fs.Bool("seed", false, "record posts without notifying when the record is empty")
	case "invite":
		dryRun = fs.Bool("dry-run", false, "log emails instead of sending them")
	case "serve":
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if seed != nil && *seed {
		cfg.Poll.Seed = true
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	switch args[0] {
	case "poll":
		return runPoll(ctx, cfg, *dryRun, logger)
	case "serve":
		return runServe(ctx, cfg, logger)
	default:
		return runInvite(ctx, cfg, *dryRun, logger)
	}
}

// newMonitor wires the search client, notifier and store. The caller closes
// the returned store.
func newMonitor(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (*poll.Monitor, storage.RecordStore, error) {
	if err := cfg.ValidatePoll(dryRun); err != nil {
		return nil, nil, fmt.Errorf("invalid poll config: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	searcher := search.New(httpClient, cfg.Twitter.BaseURL, cfg.Twitter.BearerToken, logger)

	style := chat.Style{
		Username: cfg.Slack.Username,
		Channel:  cfg.Slack.Channel,
		IconURL:  cfg.Slack.IconURL,
	}
	var n poll.Notifier
	if dryRun {
		logger.Info("Dry run: notifications are logged, not posted")
		n = chat.NewMockNotifier(style, logger)
	} else {
		n = chat.NewWebhook(httpClient, cfg.Slack.WebhookURL, style, logger)
	}

	m := poll.New(searcher, store, n, logger,
		poll.WithPageSize(cfg.Poll.PageSize),
		poll.WithSeed(cfg.Poll.Seed),
		poll.WithDryRun(dryRun))
	return m, store, nil
}

func closeStore(store storage.RecordStore, logger *slog.Logger) {
	if err := store.Close(); err != nil {
		logger.Warn("Failed to close store", "error", err)
	}
}

func runPoll(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) error {
	m, store, err := newMonitor(ctx, cfg, dryRun, logger)
	if err != nil {
		return err
	}
	defer closeStore(store, logger)

	_, err = m.Run(ctx, cfg.Poll.Query)
	return err
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m, store, err := newMonitor(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer closeStore(store, logger)

	srv := server.New(&server.Config{
		Poller: m,
		Query:  cfg.Poll.Query,
		Logger: logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Port)
	})
	if cfg.Poll.Schedule != "" {
		g.Go(func() error {
			return m.Schedule(gctx, cfg.Poll.Schedule, cfg.Poll.Query)
		})
	}
	return g.Wait()
}

func runInvite(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) error {
	if err := cfg.ValidateMail(dryRun); err != nil {
		return fmt.Errorf("invalid mail config: %w", err)
	}

	asset, err := email.LoadAsset(cfg.Mail.AssetPath, cfg.Mail.ContentID)
	if err != nil {
		return err
	}

	body := email.InvitationBody(cfg.Mail.ContentID, cfg.Mail.InviteURL)
	if cfg.Mail.BodyPath != "" {
		data, err := os.ReadFile(cfg.Mail.BodyPath)
		if err != nil {
			return fmt.Errorf("read mail body: %w", err)
		}
		body = string(data)
	}

	provider, err := newProvider(ctx, cfg, dryRun, logger)
	if err != nil {
		return err
	}

	sender := email.New(provider, logger,
		email.Address{Email: cfg.Mail.From, Name: cfg.Mail.FromName},
		cfg.Mail.Subject, body)

	results, err := sender.Send(ctx, cfg.Mail.Recipients, asset)
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info("Invitations finished",
		"recipients", len(cfg.Mail.Recipients),
		"attempted", len(results),
		"failed", failed)
	return err
}

func newProvider(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (email.Provider, error) {
	if dryRun {
		logger.Info("Dry run: emails are logged, not sent")
		return email.NewMockProvider(logger), nil
	}
	switch strings.ToLower(cfg.Mail.Provider) {
	case "gmail":
		svc, err := gmail.NewService(ctx, option.WithCredentialsJSON([]byte(cfg.Mail.CredentialsJSON)))
		if err != nil {
			return nil, fmt.Errorf("create gmail service: %w", err)
		}
		return email.NewGmailProvider(svc, logger), nil
	default:
		return email.NewSendGridProvider(cfg.Mail.SendGridAPIKey, cfg.Mail.SendGridBaseURL, logger), nil
	}
}
