package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// MaxArchives is the number of historical archives merged ahead of current data.
const MaxArchives = 2

type Config struct {
	Addr       string
	CORSOrigin string

	// Sheet source
	SheetCSVURL   string
	SpreadsheetID string
	SheetName     string
	UserAgent     string
	FetchTimeout  time.Duration
	FetchAttempts int
	FetchBackoff  time.Duration

	// Local data
	DataDir           string
	CurrentRawFile    string
	CurrentParsedFile string
	Archives          []ArchiveConfig

	// Merge cache and sync schedule
	MergeCacheTTL time.Duration
	SyncInterval  time.Duration
	SyncOnStart   bool
	SyncLockTTL   time.Duration

	// Metrics columns
	AgentColumn  string
	RatingColumn string
	DateColumn   string

	// Optional backends; empty disables them
	DatabaseURL    string
	RedisURL       string
	MeiliURL       string
	MeiliMasterKey string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3Prefix       string
	S3UseTLS       bool

	// SMTP Configuration
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	AlertEmails  []string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
}

type ArchiveConfig struct {
	Label string `toml:"label"`
	File  string `toml:"file"`
}

// fileConfig is the optional TOML file named by REVIEWDASH_CONFIG.
type fileConfig struct {
	Data struct {
		Dir           string `toml:"dir"`
		CurrentRaw    string `toml:"current_raw"`
		CurrentParsed string `toml:"current_parsed"`
	} `toml:"data"`
	Archives []ArchiveConfig `toml:"archives"`
}

// Load reads .env (when present), then the environment, then the optional TOML
// file. Environment variables win over the TOML file for scalar settings.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:       getenv("API_ADDR", ":8787"),
		CORSOrigin: getenv("REVIEWDASH_CORS_ORIGIN", "*"),

		SheetCSVURL:   getenv("SHEET_CSV_URL", ""),
		SpreadsheetID: getenv("SPREADSHEET_ID", ""),
		SheetName:     getenv("SHEET_NAME", ""),
		UserAgent:     getenv("REVIEWDASH_USER_AGENT", "reviewdash-sync/1.0"),
		FetchTimeout:  getenvDuration("FETCH_TIMEOUT_MS", 30*time.Second),
		FetchAttempts: getenvInt("FETCH_MAX_ATTEMPTS", 3),
		FetchBackoff:  getenvDuration("FETCH_BACKOFF_MS", 2*time.Second),

		DataDir:           getenv("REVIEWDASH_DATA_DIR", "./data"),
		CurrentRawFile:    getenv("CURRENT_RAW_FILE", "sheet-data.json"),
		CurrentParsedFile: getenv("CURRENT_PARSED_FILE", "sheet-data-parsed.json"),

		MergeCacheTTL: getenvDuration("MERGE_CACHE_TTL_MS", 10*time.Second),
		SyncInterval:  getenvDuration("SYNC_INTERVAL_MS", 24*time.Hour),
		SyncOnStart:   getenvBool("SYNC_ON_START", false),
		SyncLockTTL:   getenvDuration("SYNC_LOCK_TTL_MS", 5*time.Minute),

		AgentColumn:  getenv("REVIEW_AGENT_COLUMN", "Agent"),
		RatingColumn: getenv("REVIEW_RATING_COLUMN", "Rating"),
		DateColumn:   getenv("REVIEW_DATE_COLUMN", "Date"),

		DatabaseURL:    getenv("DATABASE_URL", ""),
		RedisURL:       getenv("REDIS_URL", ""),
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		S3Endpoint:     getenv("S3_ENDPOINT", ""),
		S3AccessKey:    getenv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getenv("S3_SECRET_KEY", ""),
		S3Bucket:       getenv("S3_BUCKET", "reviewdash-snapshots"),
		S3Region:       getenv("S3_REGION", "us-east-1"),
		S3Prefix:       getenv("S3_PREFIX", "snapshots"),
		S3UseTLS:       getenvBool("S3_USE_TLS", true),

		// SMTP - empty by default, alerts disabled if not configured
		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "Review Dashboard"),
		AlertEmails:  getenvList("ALERT_EMAILS"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),
		LogFile:   getenv("LOG_FILE", ""),
	}

	for i := 1; i <= MaxArchives; i++ {
		file := getenv(fmt.Sprintf("ARCHIVE_%d_FILE", i), "")
		if file == "" {
			continue
		}
		cfg.Archives = append(cfg.Archives, ArchiveConfig{
			Label: getenv(fmt.Sprintf("ARCHIVE_%d_LABEL", i), fmt.Sprintf("Archive %d", i)),
			File:  file,
		})
	}

	if path := getenv("REVIEWDASH_CONFIG", ""); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if cfg.SheetCSVURL == "" && cfg.SpreadsheetID != "" {
		cfg.SheetCSVURL = PublishedCSVURL(cfg.SpreadsheetID, cfg.SheetName)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Data.Dir != "" && os.Getenv("REVIEWDASH_DATA_DIR") == "" {
		cfg.DataDir = fc.Data.Dir
	}
	if fc.Data.CurrentRaw != "" && os.Getenv("CURRENT_RAW_FILE") == "" {
		cfg.CurrentRawFile = fc.Data.CurrentRaw
	}
	if fc.Data.CurrentParsed != "" && os.Getenv("CURRENT_PARSED_FILE") == "" {
		cfg.CurrentParsedFile = fc.Data.CurrentParsed
	}
	if len(fc.Archives) > 0 && len(cfg.Archives) == 0 {
		for i, archive := range fc.Archives {
			if archive.Label == "" {
				archive.Label = fmt.Sprintf("Archive %d", i+1)
			}
			cfg.Archives = append(cfg.Archives, archive)
		}
	}
	return nil
}

// Validate rejects settings the sync pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if len(c.Archives) > MaxArchives {
		errs = append(errs, fmt.Errorf("at most %d archives are supported, got %d", MaxArchives, len(c.Archives)))
	}
	for i, archive := range c.Archives {
		if strings.TrimSpace(archive.File) == "" {
			errs = append(errs, fmt.Errorf("archive %d has no file", i+1))
		}
	}
	if c.FetchAttempts < 1 {
		errs = append(errs, fmt.Errorf("FETCH_MAX_ATTEMPTS must be at least 1"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT_MS must be positive"))
	}
	if c.MergeCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("MERGE_CACHE_TTL_MS must be positive"))
	}
	if c.SheetCSVURL != "" {
		if u, err := url.Parse(c.SheetCSVURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("SHEET_CSV_URL must be an http(s) URL"))
		}
	}
	return errors.Join(errs...)
}

// ArchiveFile returns the file of the i-th archive (1-based) or "".
func (c Config) ArchiveFile(i int) string {
	if i < 1 || i > len(c.Archives) {
		return ""
	}
	return c.Archives[i-1].File
}

// ArchiveLabel returns the label of the i-th archive (1-based) or "".
func (c Config) ArchiveLabel(i int) string {
	if i < 1 || i > len(c.Archives) {
		return ""
	}
	return c.Archives[i-1].Label
}

// PublishedCSVURL is the public CSV export of a sheet tab. It needs the sheet to
// be shared or published; no credentials are sent.
func PublishedCSVURL(spreadsheetID, sheetName string) string {
	u := url.URL{
		Scheme: "https",
		Host:   "docs.google.com",
		Path:   "/spreadsheets/d/" + spreadsheetID + "/gviz/tq",
	}
	q := url.Values{}
	q.Set("tqx", "out:csv")
	if sheetName != "" {
		q.Set("sheet", sheetName)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvDuration reads a millisecond count.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
