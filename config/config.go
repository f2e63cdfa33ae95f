// Package config loads settings from an optional .env file, an optional YAML
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"october-automation/pkg/notifier"
	"october-automation/storage"
)

// Defaults carried over from the original scripts.
const (
	DefaultQuery     = "october.app"
	DefaultChannel   = "#twitter"
	DefaultUsername  = "Twitter"
	DefaultIconURL   = "https://cdn2.iconfinder.com/data/icons/metro-uinvert-dock/256/Twitter_NEW.png"
	DefaultFrom      = "team@october.news"
	DefaultFromName  = "Team October"
	DefaultSubject   = "Your Invitation to October"
	DefaultAsset     = "october.jpg"
	DefaultContentID = "banner"
	DefaultRecord    = "tweets.json"
	DefaultPort      = "8080"
)

// Poll configures the search-and-notify flow.
type Poll struct {
	Query    string `yaml:"query"`
	Schedule string `yaml:"schedule"`
	PageSize int    `yaml:"page_size"`
	Seed     bool   `yaml:"seed"`
}

// Twitter holds search API credentials.
type Twitter struct {
	BearerToken string `yaml:"bearer_token"`
	BaseURL     string `yaml:"base_url"`
}

// Slack configures the incoming webhook.
type Slack struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
	IconURL    string `yaml:"icon_url"`
}

// Mail configures the invitation mailer.
type Mail struct {
	Provider        string               `yaml:"provider"`
	SendGridAPIKey  string               `yaml:"sendgrid_api_key"`
	SendGridBaseURL string               `yaml:"sendgrid_base_url"`
	CredentialsJSON string               `yaml:"google_credentials_json"`
	From            string               `yaml:"from"`
	FromName        string               `yaml:"from_name"`
	Subject         string               `yaml:"subject"`
	AssetPath       string               `yaml:"asset_path"`
	ContentID       string               `yaml:"content_id"`
	BodyPath        string               `yaml:"body_path"`
	InviteURL       string               `yaml:"invite_url"`
	Recipients      []notifier.Recipient `yaml:"recipients"`
}

// Server configures the HTTP trigger.
type Server struct {
	Port string `yaml:"port"`
}

// Config is the full application configuration.
type Config struct {
	Poll     Poll           `yaml:"poll"`
	Twitter  Twitter        `yaml:"twitter"`
	Slack    Slack          `yaml:"slack"`
	Storage  storage.Config `yaml:"storage"`
	Mail     Mail           `yaml:"mail"`
	Server   Server         `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Poll: Poll{Query: DefaultQuery},
		Slack: Slack{
			Channel:  DefaultChannel,
			Username: DefaultUsername,
			IconURL:  DefaultIconURL,
		},
		Storage: storage.Config{
			Driver:   "file",
			Path:     DefaultRecord,
			Object:   DefaultRecord,
			RedisKey: "october:seen_posts",
		},
		Mail: Mail{
			Provider:  "sendgrid",
			From:      DefaultFrom,
			FromName:  DefaultFromName,
			Subject:   DefaultSubject,
			AssetPath: DefaultAsset,
			ContentID: DefaultContentID,
		},
		Server:   Server{Port: DefaultPort},
		LogLevel: "info",
	}
}

// Load builds the configuration. A missing .env file is ignored; path may be
// empty to skip the YAML file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overrideFromEnv() error {
	setString(&c.Poll.Query, "SEARCH_QUERY")
	setString(&c.Poll.Schedule, "POLL_SCHEDULE")
	setString(&c.Twitter.BearerToken, "TWITTER_BEARER_TOKEN")
	setString(&c.Slack.WebhookURL, "SLACK_WEBHOOK_URL")
	setString(&c.Slack.Channel, "SLACK_CHANNEL")
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.Path, "STORAGE_PATH")
	setString(&c.Storage.Bucket, "STORAGE_BUCKET")
	setString(&c.Storage.RedisAddr, "REDIS_ADDR")
	setString(&c.Storage.RedisPassword, "REDIS_PASSWORD")
	setString(&c.Mail.Provider, "MAIL_PROVIDER")
	setString(&c.Mail.SendGridAPIKey, "SENDGRID_API_KEY")
	setString(&c.Mail.CredentialsJSON, "GOOGLE_CREDENTIALS_JSON")
	setString(&c.Mail.From, "MAIL_FROM")
	setString(&c.Mail.AssetPath, "INVITE_ASSET")
	setString(&c.Server.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("MAIL_RECIPIENTS"); v != "" {
		c.Mail.Recipients = ParseRecipients(v)
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		c.Storage.RedisDB = db
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// ParseRecipients splits a comma-separated address list. Blank entries are
// dropped; order and duplicates are kept.
func ParseRecipients(s string) []notifier.Recipient {
	var out []notifier.Recipient
	for _, part := range strings.Split(s, ",") {
		if email := strings.TrimSpace(part); email != "" {
			out = append(out, notifier.Recipient{Email: email})
		}
	}
	return out
}

// ValidatePoll checks the settings the poll flow needs.
func (c *Config) ValidatePoll(dryRun bool) error {
	var errs []error
	if strings.TrimSpace(c.Poll.Query) == "" {
		errs = append(errs, errors.New("poll.query is required"))
	}
	if c.Twitter.BearerToken == "" {
		errs = append(errs, errors.New("TWITTER_BEARER_TOKEN is required"))
	}
	if !dryRun && c.Slack.WebhookURL == "" {
		errs = append(errs, errors.New("SLACK_WEBHOOK_URL is required"))
	}
	return errors.Join(errs...)
}

// ValidateMail checks the settings the invite flow needs.
func (c *Config) ValidateMail(dryRun bool) error {
	var errs []error
	if len(c.Mail.Recipients) == 0 {
		errs = append(errs, errors.New("mail.recipients is empty"))
	}
	if c.Mail.AssetPath == "" {
		errs = append(errs, errors.New("mail.asset_path is required"))
	}
	if !dryRun {
		switch strings.ToLower(c.Mail.Provider) {
		case "sendgrid":
			if c.Mail.SendGridAPIKey == "" {
				errs = append(errs, errors.New("SENDGRID_API_KEY is required"))
			}
		case "gmail":
			if c.Mail.CredentialsJSON == "" {
				errs = append(errs, errors.New("GOOGLE_CREDENTIALS_JSON is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown mail provider %q", c.Mail.Provider))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
