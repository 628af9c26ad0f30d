package cliparse

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default RSS sources and relevance keywords, overridable via env.
var (
	defaultFeedSources = []string{
		"https://jobrxiv.org/feed/?post_type=job_listing",
		"https://opportunitydesk.org/feed/",
	}
	defaultFeedKeywords = []string{
		"bioinformatics", "computational biology", "genomics",
		"transcriptomics", "proteomics", "metagenomics", "biostatistics",
		"sequencing", "systems biology", "computational genomics", "omics",
		"ngs", "rna-seq", "single-cell", "structural biology",
		"molecular biology", "machine learning",
	}
)

type Config struct {
	DatabaseURL  string
	DatabaseType string // sqlite or postgres

	// Onboarding
	WelcomeMethod    string // email, slack_dm, or both
	OnboardAfterDate string // YYYY-MM-DD; rows first seen before this are skipped
	SuperAdmin       string // user id allowed to manage onboard admins
	InviteLink       string // workspace invite link embedded in welcome emails
	GroupEmail       string // directory group; empty disables the group-add step

	// SMTP (empty host disables email sending)
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string

	// Channels for bot-initiated posts
	NotifyChannel string // outreach progress notifications
	FeedChannel   string // feed item announcements

	// Outreach pacing
	OutreachDelay         time.Duration
	OutreachProgressEvery int

	// Feed ingestion and publishing
	FeedSources     []string
	FeedKeywords    []string
	FeedDailyCap    int
	FeedWindowStart int // hour, local time
	FeedWindowEnd   int
}

// ParseFlags validates flags and fills defaults from the environment
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("meetpoll", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL or sqlite path")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&cfg.WelcomeMethod, "welcome", "", "Welcome method (email, slack_dm, both)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "./meetpoll.db"
	}
	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, errors.New("DATABASE_TYPE must be sqlite or postgres")
	}

	if cfg.WelcomeMethod == "" {
		cfg.WelcomeMethod = os.Getenv("WELCOME_METHOD")
		if cfg.WelcomeMethod == "" {
			cfg.WelcomeMethod = "email"
		}
	}
	switch cfg.WelcomeMethod {
	case "email", "slack_dm", "both":
	default:
		return Config{}, errors.New("WELCOME_METHOD must be email, slack_dm, or both")
	}

	cfg.OnboardAfterDate = os.Getenv("ONBOARD_AFTER_DATE")
	if cfg.OnboardAfterDate != "" {
		if _, err := time.Parse("2006-01-02", cfg.OnboardAfterDate); err != nil {
			return Config{}, errors.New("ONBOARD_AFTER_DATE must be YYYY-MM-DD")
		}
	}
	cfg.SuperAdmin = os.Getenv("ONBOARD_SUPER_ADMIN")
	cfg.InviteLink = os.Getenv("SLACK_INVITE_LINK")
	cfg.GroupEmail = os.Getenv("GOOGLE_GROUP_EMAIL")

	cfg.SMTPHost = envOr("SMTP_HOST", "")
	cfg.SMTPPort = envInt("SMTP_PORT", 587)
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASSWORD")

	cfg.NotifyChannel = os.Getenv("NOTIFY_CHANNEL")
	cfg.FeedChannel = os.Getenv("FEED_CHANNEL")

	cfg.OutreachDelay = time.Duration(envInt("OUTREACH_DELAY_SECONDS", 5)) * time.Second
	cfg.OutreachProgressEvery = envInt("OUTREACH_PROGRESS_EVERY", 10)

	cfg.FeedSources = envList("FEED_SOURCES", defaultFeedSources)
	cfg.FeedKeywords = envList("FEED_KEYWORDS", defaultFeedKeywords)
	cfg.FeedDailyCap = envInt("FEED_DAILY_CAP", 5)
	cfg.FeedWindowStart = envInt("FEED_WINDOW_START", 10)
	cfg.FeedWindowEnd = envInt("FEED_WINDOW_END", 18)
	if cfg.FeedWindowEnd <= cfg.FeedWindowStart {
		return Config{}, errors.New("FEED_WINDOW_END must be after FEED_WINDOW_START")
	}

	return cfg, nil
}

// OnboardCutoff returns the configured cutoff date, or zero if unset.
func (c Config) OnboardCutoff() time.Time {
	if c.OnboardAfterDate == "" {
		return time.Time{}
	}
	t, _ := time.Parse("2006-01-02", c.OnboardAfterDate)
	return t
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
