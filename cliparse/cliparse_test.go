// cliparse/cliparse_test.go
package cliparse

import (
	"os"
	"testing"
	"time"
)

func TestParseFlags_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DatabaseURL != "./meetpoll.db" {
		t.Errorf("expected default sqlite path, got %s", cfg.DatabaseURL)
	}
	if cfg.DatabaseType != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.DatabaseType)
	}
	if cfg.WelcomeMethod != "email" {
		t.Errorf("expected welcome method email, got %s", cfg.WelcomeMethod)
	}
	if cfg.OutreachDelay != 5*time.Second {
		t.Errorf("expected 5s outreach delay, got %v", cfg.OutreachDelay)
	}
	if cfg.FeedDailyCap != 5 {
		t.Errorf("expected feed cap 5, got %d", cfg.FeedDailyCap)
	}
	if cfg.FeedWindowStart != 10 || cfg.FeedWindowEnd != 18 {
		t.Errorf("expected window 10-18, got %d-%d", cfg.FeedWindowStart, cfg.FeedWindowEnd)
	}
	if len(cfg.FeedSources) == 0 || len(cfg.FeedKeywords) == 0 {
		t.Error("expected default feed sources and keywords")
	}
}

func TestParseFlags_EnvVars(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://test")
	os.Setenv("DATABASE_TYPE", "postgres")
	os.Setenv("WELCOME_METHOD", "both")
	os.Setenv("FEED_SOURCES", "https://a/feed, https://b/feed")
	os.Setenv("OUTREACH_DELAY_SECONDS", "2")
	defer os.Clearenv()

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DatabaseURL != "postgres://test" {
		t.Errorf("expected env database url, got %s", cfg.DatabaseURL)
	}
	if cfg.DatabaseType != "postgres" {
		t.Errorf("expected postgres, got %s", cfg.DatabaseType)
	}
	if cfg.WelcomeMethod != "both" {
		t.Errorf("expected welcome both, got %s", cfg.WelcomeMethod)
	}
	if len(cfg.FeedSources) != 2 || cfg.FeedSources[1] != "https://b/feed" {
		t.Errorf("expected 2 trimmed feed sources, got %v", cfg.FeedSources)
	}
	if cfg.OutreachDelay != 2*time.Second {
		t.Errorf("expected 2s delay, got %v", cfg.OutreachDelay)
	}
}

func TestParseFlags_CLIOverridesEnv(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://env")
	os.Setenv("WELCOME_METHOD", "email")
	defer os.Clearenv()

	cfg, err := ParseFlags([]string{"-d", "file:test.db", "-t", "sqlite", "-welcome", "slack_dm"})
	if err != nil {
		t.Fatal(err)
	}

	// CLI should override env
	if cfg.DatabaseURL != "file:test.db" {
		t.Errorf("CLI should override env: expected file:test.db, got %s", cfg.DatabaseURL)
	}
	if cfg.WelcomeMethod != "slack_dm" {
		t.Errorf("CLI should override env: expected slack_dm, got %s", cfg.WelcomeMethod)
	}
}

func TestParseFlags_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad database type", map[string]string{"DATABASE_TYPE": "oracle"}},
		{"bad welcome method", map[string]string{"WELCOME_METHOD": "carrier_pigeon"}},
		{"bad cutoff date", map[string]string{"ONBOARD_AFTER_DATE": "June 1st"}},
		{"inverted feed window", map[string]string{"FEED_WINDOW_START": "18", "FEED_WINDOW_END": "10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			defer os.Clearenv()

			if _, err := ParseFlags([]string{}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestOnboardCutoff(t *testing.T) {
	os.Clearenv()
	os.Setenv("ONBOARD_AFTER_DATE", "2025-06-01")
	defer os.Clearenv()

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.OnboardCutoff().Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, cfg.OnboardCutoff())
	}

	if !(Config{}).OnboardCutoff().IsZero() {
		t.Error("expected zero cutoff when unset")
	}
}
