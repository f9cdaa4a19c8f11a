package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DBFile        string
	APIAddr       string
	AdminAddr     string
	AdminUser     string
	AdminPassword string
	BaseURL       string
	UploadsPath   string

	LogLevel string
	LogFile  string

	TokenExpiry    time.Duration
	RememberExpiry time.Duration

	GeminiAPIKey   string
	GeminiEndpoint string
	TextModel      string
	SpeechModel    string
	Voice          string
	AIRate         float64
	AIBurst        int
	HistoryWindow  int

	ReadReceiptDelay time.Duration
	AcceptDelay      time.Duration

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
}

// fileConfig mirrors the optional TOML file. Durations are strings ("2s").
type fileConfig struct {
	DBFile        string `toml:"db_file"`
	APIAddr       string `toml:"api_addr"`
	AdminAddr     string `toml:"admin_addr"`
	AdminUser     string `toml:"admin_user"`
	AdminPassword string `toml:"admin_password"`
	BaseURL       string `toml:"base_url"`
	UploadsPath   string `toml:"uploads_path"`
	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`

	TokenExpiry    string `toml:"token_expiry"`
	RememberExpiry string `toml:"remember_expiry"`

	Gemini struct {
		APIKey        string  `toml:"api_key"`
		Endpoint      string  `toml:"endpoint"`
		TextModel     string  `toml:"text_model"`
		SpeechModel   string  `toml:"speech_model"`
		Voice         string  `toml:"voice"`
		Rate          float64 `toml:"rate"`
		Burst         int     `toml:"burst"`
		HistoryWindow int     `toml:"history_window"`
	} `toml:"gemini"`

	Simulation struct {
		ReadReceiptDelay string `toml:"read_receipt_delay"`
		AcceptDelay      string `toml:"accept_delay"`
	} `toml:"simulation"`

	Push struct {
		PublicKey  string `toml:"vapid_public_key"`
		PrivateKey string `toml:"vapid_private_key"`
		Subscriber string `toml:"subscriber"`
	} `toml:"push"`
}

// Load builds the configuration from defaults, then the TOML file at path
// (if path is not empty), then environment variables.
func Load(path string, cliMode bool) (*Config, error) {
	defaults := map[string]string{
		"CONNECTIFYR_DB":        "connectifyr.db",
		"API_ADDR":              "localhost:8080",
		"ADMIN_ADDR":            "localhost:8081",
		"ADMIN_USER":            "admin",
		"BASE_URL":              "http://localhost:8080",
		"UPLOADS_PATH":          "uploads",
		"LOG_LEVEL":             "info",
		"TOKEN_EXPIRY":          "12h",
		"REMEMBER_EXPIRY":       "720h",
		"GEMINI_ENDPOINT":       "https://generativelanguage.googleapis.com/v1beta",
		"GEMINI_TEXT_MODEL":     "gemini-3-flash-preview",
		"GEMINI_SPEECH_MODEL":   "gemini-2.5-flash-preview-tts",
		"GEMINI_VOICE":          "Kore",
		"GEMINI_RATE":           "1",
		"GEMINI_BURST":          "3",
		"GEMINI_HISTORY_WINDOW": "6",
		"READ_RECEIPT_DELAY":    "2s",
		"ACCEPT_DELAY":          "5s",
		"VAPID_SUBSCRIBER":      "mailto:admin@connectifyr.local",
	}

	if path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		fc.overlay(defaults)
	}

	cfg := &Config{
		DBFile:          getEnv("CONNECTIFYR_DB", defaults["CONNECTIFYR_DB"]),
		APIAddr:         getEnv("API_ADDR", defaults["API_ADDR"]),
		AdminAddr:       getEnv("ADMIN_ADDR", defaults["ADMIN_ADDR"]),
		AdminUser:       getEnv("ADMIN_USER", defaults["ADMIN_USER"]),
		AdminPassword:   getEnv("ADMIN_PASSWORD", defaults["ADMIN_PASSWORD"]),
		BaseURL:         getEnv("BASE_URL", defaults["BASE_URL"]),
		UploadsPath:     getEnv("UPLOADS_PATH", defaults["UPLOADS_PATH"]),
		LogLevel:        getEnv("LOG_LEVEL", defaults["LOG_LEVEL"]),
		LogFile:         getEnv("LOG_FILE", defaults["LOG_FILE"]),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", defaults["GEMINI_API_KEY"]),
		GeminiEndpoint:  getEnv("GEMINI_ENDPOINT", defaults["GEMINI_ENDPOINT"]),
		TextModel:       getEnv("GEMINI_TEXT_MODEL", defaults["GEMINI_TEXT_MODEL"]),
		SpeechModel:     getEnv("GEMINI_SPEECH_MODEL", defaults["GEMINI_SPEECH_MODEL"]),
		Voice:           getEnv("GEMINI_VOICE", defaults["GEMINI_VOICE"]),
		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", defaults["VAPID_PUBLIC_KEY"]),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", defaults["VAPID_PRIVATE_KEY"]),
		VAPIDSubscriber: getEnv("VAPID_SUBSCRIBER", defaults["VAPID_SUBSCRIBER"]),
	}

	var errs []error
	cfg.TokenExpiry = parseDuration("TOKEN_EXPIRY", defaults, &errs)
	cfg.RememberExpiry = parseDuration("REMEMBER_EXPIRY", defaults, &errs)
	cfg.ReadReceiptDelay = parseDuration("READ_RECEIPT_DELAY", defaults, &errs)
	cfg.AcceptDelay = parseDuration("ACCEPT_DELAY", defaults, &errs)
	cfg.HistoryWindow = parseInt("GEMINI_HISTORY_WINDOW", defaults, &errs)
	cfg.AIBurst = parseInt("GEMINI_BURST", defaults, &errs)

	rate, err := strconv.ParseFloat(getEnv("GEMINI_RATE", defaults["GEMINI_RATE"]), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("GEMINI_RATE: %w", err))
	}
	cfg.AIRate = rate

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AdminPassword == "" && !cliMode {
		return fmt.Errorf("ADMIN_PASSWORD is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if c.RememberExpiry < c.TokenExpiry {
		return fmt.Errorf("REMEMBER_EXPIRY must not be shorter than TOKEN_EXPIRY")
	}

	if c.ReadReceiptDelay < 0 || c.AcceptDelay < 0 {
		return fmt.Errorf("simulation delays must not be negative")
	}

	if c.HistoryWindow < 0 {
		return fmt.Errorf("GEMINI_HISTORY_WINDOW must not be negative")
	}

	if c.AIRate <= 0 || c.AIBurst <= 0 {
		return fmt.Errorf("GEMINI_RATE and GEMINI_BURST must be greater than 0")
	}

	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}

// AIEnabled reports whether an API key for the AI contact is configured.
func (c *Config) AIEnabled() bool {
	return c.GeminiAPIKey != ""
}

// PushEnabled reports whether web push keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (fc *fileConfig) overlay(defaults map[string]string) {
	set := func(key, value string) {
		if value != "" {
			defaults[key] = value
		}
	}
	set("CONNECTIFYR_DB", fc.DBFile)
	set("API_ADDR", fc.APIAddr)
	set("ADMIN_ADDR", fc.AdminAddr)
	set("ADMIN_USER", fc.AdminUser)
	set("ADMIN_PASSWORD", fc.AdminPassword)
	set("BASE_URL", fc.BaseURL)
	set("UPLOADS_PATH", fc.UploadsPath)
	set("LOG_LEVEL", fc.LogLevel)
	set("LOG_FILE", fc.LogFile)
	set("TOKEN_EXPIRY", fc.TokenExpiry)
	set("REMEMBER_EXPIRY", fc.RememberExpiry)
	set("GEMINI_API_KEY", fc.Gemini.APIKey)
	set("GEMINI_ENDPOINT", fc.Gemini.Endpoint)
	set("GEMINI_TEXT_MODEL", fc.Gemini.TextModel)
	set("GEMINI_SPEECH_MODEL", fc.Gemini.SpeechModel)
	set("GEMINI_VOICE", fc.Gemini.Voice)
	if fc.Gemini.Rate > 0 {
		set("GEMINI_RATE", strconv.FormatFloat(fc.Gemini.Rate, 'f', -1, 64))
	}
	if fc.Gemini.Burst > 0 {
		set("GEMINI_BURST", strconv.Itoa(fc.Gemini.Burst))
	}
	if fc.Gemini.HistoryWindow > 0 {
		set("GEMINI_HISTORY_WINDOW", strconv.Itoa(fc.Gemini.HistoryWindow))
	}
	set("READ_RECEIPT_DELAY", fc.Simulation.ReadReceiptDelay)
	set("ACCEPT_DELAY", fc.Simulation.AcceptDelay)
	set("VAPID_PUBLIC_KEY", fc.Push.PublicKey)
	set("VAPID_PRIVATE_KEY", fc.Push.PrivateKey)
	set("VAPID_SUBSCRIBER", fc.Push.Subscriber)
}

func parseDuration(key string, defaults map[string]string, errs *[]error) time.Duration {
	d, err := time.ParseDuration(getEnv(key, defaults[key]))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return d
}

func parseInt(key string, defaults map[string]string, errs *[]error) int {
	n, err := strconv.Atoi(getEnv(key, defaults[key]))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return n
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
