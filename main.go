// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bogrum/meetpoll-slackbot/cliparse"
	"github.com/bogrum/meetpoll-slackbot/db"
	"github.com/bogrum/meetpoll-slackbot/events"
	"github.com/bogrum/meetpoll-slackbot/feeds"
	"github.com/bogrum/meetpoll-slackbot/mailer"
	"github.com/bogrum/meetpoll-slackbot/onboarding"
	"github.com/bogrum/meetpoll-slackbot/outreach"
	"github.com/bogrum/meetpoll-slackbot/polls"
	"github.com/bogrum/meetpoll-slackbot/schedule"
)

func main() {
	// Missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	database, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.CreateSchema(database); err != nil {
		slog.Error("failed to create schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready", "type", cfg.DatabaseType, "url", cfg.DatabaseURL)

	// SMTP is optional; without it the email steps log and skip.
	var smtp *mailer.Mailer
	if cfg.SMTPHost != "" {
		smtp = mailer.New(mailer.Config{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			User:       cfg.SMTPUser,
			Pass:       cfg.SMTPPass,
			InviteLink: cfg.InviteLink,
		})
	} else {
		slog.Warn("SMTP not configured, email delivery disabled")
	}

	// The messaging, registration-source and directory collaborators
	// are injected by the deployment wrapper; the engine runs without
	// them, skipping the steps they would serve.
	var messenger interface {
		polls.Messenger
		events.Messenger
		onboarding.Messenger
		feeds.Messenger
	}
	var rowSource onboarding.RowSource
	var directory onboarding.Directory
	var contactSource outreach.ContactSource

	pollSvc := polls.NewService(database, messenger)
	eventSvc := events.NewService(database, messenger)

	var welcomeMailer onboarding.WelcomeMailer
	var outreachMailer outreach.Mailer
	if smtp != nil {
		welcomeMailer = smtp
		outreachMailer = smtp
	}

	onboardSvc := onboarding.NewService(database, rowSource, directory, welcomeMailer, messenger, onboarding.Config{
		WelcomeMethod: cfg.WelcomeMethod,
		Cutoff:        cfg.OnboardCutoff(),
		GroupEmail:    cfg.GroupEmail,
		SuperAdmin:    cfg.SuperAdmin,
	})

	outreachSvc := outreach.NewService(database, contactSource, outreachMailer, messenger, outreach.Config{
		Delay:         cfg.OutreachDelay,
		ProgressEvery: cfg.OutreachProgressEvery,
		NotifyChannel: cfg.NotifyChannel,
	})

	feedSvc := feeds.NewService(database, feeds.NewRSSFetcher(30*time.Second), messenger, feeds.Config{
		Sources:  cfg.FeedSources,
		Keywords: cfg.FeedKeywords,
		Channel:  cfg.FeedChannel,
		DailyCap: cfg.FeedDailyCap,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := schedule.NewRegistry()
	mustRegister(registry, "poll-closer", "@every 1m", func() {
		if err := pollSvc.CloseExpired(); err != nil {
			slog.Error("poll closer failed", "error", err)
		}
	})
	mustRegister(registry, "event-reminders", "@every 5m", func() {
		if err := eventSvc.SendReminders(); err != nil {
			slog.Error("event reminders failed", "error", err)
		}
	})
	mustRegister(registry, "event-closer", "@every 10m", func() {
		if err := eventSvc.ClosePast(); err != nil {
			slog.Error("event closer failed", "error", err)
		}
	})
	mustRegister(registry, "onboarding-sync", "@every 1h", func() {
		if _, err := onboardSvc.Run(); err != nil {
			slog.Error("onboarding sync failed", "error", err)
		}
	})
	mustRegister(registry, "outreach-sender", "@every 1m", func() {
		if err := outreachSvc.RunPending(ctx); err != nil {
			slog.Error("outreach sender failed", "error", err)
		}
	})
	mustRegister(registry, "feed-refresh", "0 9,17 * * *", func() {
		if _, err := feedSvc.Refresh(); err != nil {
			slog.Error("feed refresh failed", "error", err)
		}
	})
	if err := registry.RegisterDailyWindow("feed-publisher", cfg.FeedWindowStart, cfg.FeedWindowEnd, func() {
		if err := feedSvc.PublishNext(); err != nil {
			slog.Error("feed publisher failed", "error", err)
		}
	}); err != nil {
		slog.Error("failed to register job", "job", "feed-publisher", "error", err)
		os.Exit(1)
	}

	registry.Start()

	<-ctx.Done()
	slog.Info("shutting down")
	registry.Stop()
}

func mustRegister(r *schedule.Registry, name, spec string, fn func()) {
	if err := r.Register(name, spec, fn); err != nil {
		slog.Error("failed to register job", "job", name, "error", err)
		os.Exit(1)
	}
}
