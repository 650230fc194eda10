// Package config provides YAML + environment configuration for the ad-queue server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSheetsRange covers the five tracking columns: name, size, wallet, time, tx.
const DefaultSheetsRange = "Sheet1!A:E"

// Destination backends for uploaded videos.
const (
	BackendDrive = "drive"
	BackendGCS   = "gcs"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Google service account, Drive and Sheets
	Google GoogleConfig `yaml:"google"`

	// Solana payment settings
	Solana SolanaConfig `yaml:"solana"`

	// Submission ledger
	Ledger LedgerConfig `yaml:"ledger"`

	// Operator alerts
	Notify NotifyConfig `yaml:"notify"`

	// Advanced options
	Advanced AdvancedConfig `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bindAddress"`
	EnableCORS   bool   `yaml:"enableCors"`
	AllowOrigins string `yaml:"allowOrigins"`
	// ReadHeaderTimeout bounds only the request headers. ReadTimeout
	// covers the whole body, so it stays 0 unless sized for BodyLimit.
	ReadHeaderTimeout int    `yaml:"readHeaderTimeoutSeconds"`
	ReadTimeout       int    `yaml:"readTimeoutSeconds"`
	WriteTimeout      int    `yaml:"writeTimeoutSeconds"`
	IdleTimeout       int    `yaml:"idleTimeoutSeconds"`
	BodyLimit         string `yaml:"bodyLimit"`
}

// GoogleConfig holds the service account and the upload destinations.
// The private key is stored the way hosting dashboards hand it out: with
// literal "\n" sequences instead of newlines.
type GoogleConfig struct {
	ServiceAccountEmail      string `yaml:"serviceAccountEmail"`
	ServiceAccountPrivateKey string `yaml:"serviceAccountPrivateKey"`
	DriveParentFolderID      string `yaml:"driveParentFolderId"`
	SheetsSpreadsheetID      string `yaml:"sheetsSpreadsheetId"`
	SheetsRange              string `yaml:"sheetsRange"`
	Backend                  string `yaml:"backend"`
	GCSBucket                string `yaml:"gcsBucket"`
}

// SolanaConfig contains the payment mint, treasury and RPC endpoint.
type SolanaConfig struct {
	RPCEndpoint     string `yaml:"rpcEndpoint"`
	MintAddress     string `yaml:"mintAddress"`
	TreasuryAddress string `yaml:"treasuryAddress"`
}

// LedgerConfig selects where submission records are kept. An empty Path
// keeps them in memory for the process lifetime.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig enables operator alerts in a Telegram chat when both
// fields are set.
type NotifyConfig struct {
	TelegramBotToken string `yaml:"telegramBotToken"`
	TelegramChatID   int64  `yaml:"telegramChatId"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel               string `yaml:"logLevel"`
	EnableRequestLogging   bool   `yaml:"enableRequestLogging"`
	JobRetentionMinutes    int    `yaml:"jobRetentionMinutes"`
	CleanupIntervalMinutes int    `yaml:"cleanupIntervalMinutes"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:              8089,
			BindAddress:       "0.0.0.0",
			EnableCORS:        true,
			AllowOrigins:      "*",
			ReadHeaderTimeout: 30,
			ReadTimeout:       0,
			WriteTimeout:      0,
			IdleTimeout:       120,
			BodyLimit:         "1100M",
		},
		Google: GoogleConfig{
			SheetsRange: DefaultSheetsRange,
			Backend:     BackendDrive,
		},
		Solana: SolanaConfig{
			RPCEndpoint: "https://api.mainnet-beta.solana.com",
		},
		Advanced: AdvancedConfig{
			LogLevel:               "info",
			EnableRequestLogging:   true,
			JobRetentionMinutes:    60,
			CleanupIntervalMinutes: 5,
		},
	}
}

// LoadConfig loads configuration from an optional YAML file, then a .env file
// next to it (if any), then the process environment.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults + environment only
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// .env never overrides variables already present in the environment
	envFile := ".env"
	if configPath != "" {
		envFile = filepath.Join(filepath.Dir(configPath), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	config.applyEnvironmentOverrides()

	if configPath != "" {
		config.resolvePaths(filepath.Dir(configPath))
	}

	if config.Google.SheetsRange == "" {
		config.Google.SheetsRange = DefaultSheetsRange
	}
	if config.Google.Backend == "" {
		config.Google.Backend = BackendDrive
	}

	return config, nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	overrideString(&c.Google.ServiceAccountEmail, "GOOGLE_SERVICE_ACCOUNT_EMAIL")
	overrideString(&c.Google.ServiceAccountPrivateKey, "GOOGLE_SERVICE_ACCOUNT_PRIVATE_KEY")
	overrideString(&c.Google.DriveParentFolderID, "DRIVE_PARENT_FOLDER_ID")
	overrideString(&c.Google.SheetsSpreadsheetID, "SHEETS_SPREADSHEET_ID")
	overrideString(&c.Google.SheetsRange, "SHEETS_RANGE")
	overrideString(&c.Google.Backend, "UPLOAD_BACKEND")
	overrideString(&c.Google.GCSBucket, "GCS_BUCKET")

	overrideString(&c.Solana.RPCEndpoint, "SOLANA_RPC_URL")
	// NEXT_PUBLIC_* names are what the web frontend is deployed with
	overrideString(&c.Solana.MintAddress, "NEXT_PUBLIC_VIEWS_MINT")
	overrideString(&c.Solana.MintAddress, "VIEWS_MINT")
	overrideString(&c.Solana.TreasuryAddress, "NEXT_PUBLIC_TREASURY")
	overrideString(&c.Solana.TreasuryAddress, "TREASURY_ADDRESS")

	overrideString(&c.Ledger.Path, "LEDGER_PATH")

	overrideString(&c.Notify.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	if id := os.Getenv("TELEGRAM_CHAT_ID"); id != "" {
		if v, err := strconv.ParseInt(id, 10, 64); err == nil {
			c.Notify.TelegramChatID = v
		}
	}
	overrideString(&c.Advanced.LogLevel, "LOG_LEVEL")
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Ledger.Path != "" && !filepath.IsAbs(c.Ledger.Path) {
		c.Ledger.Path = filepath.Join(configDir, c.Ledger.Path)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// HasCredentials reports whether the three settings every upload needs are present.
func (g GoogleConfig) HasCredentials() bool {
	return g.ServiceAccountEmail != "" && g.ServiceAccountPrivateKey != "" && g.DriveParentFolderID != ""
}

// PrivateKeyPEM returns the service account key with escaped newlines restored.
func (g GoogleConfig) PrivateKeyPEM() []byte {
	return []byte(strings.ReplaceAll(g.ServiceAccountPrivateKey, `\n`, "\n"))
}

// Validate checks that the mint and treasury are usable public keys.
func (s SolanaConfig) Validate() error {
	if s.RPCEndpoint == "" {
		return errors.New("solana: rpcEndpoint is required")
	}
	if _, err := solana.PublicKeyFromBase58(s.MintAddress); err != nil {
		return fmt.Errorf("solana: invalid mint address %q: %w", s.MintAddress, err)
	}
	if _, err := solana.PublicKeyFromBase58(s.TreasuryAddress); err != nil {
		return fmt.Errorf("solana: invalid treasury address %q: %w", s.TreasuryAddress, err)
	}
	return nil
}

// Enabled reports whether Telegram alerts are configured.
func (n NotifyConfig) Enabled() bool {
	return n.TelegramBotToken != "" && n.TelegramChatID != 0
}

// SheetTitle returns the sheet name part of the configured A1 range,
// e.g. "Sheet1" for "Sheet1!A:E".
func (g GoogleConfig) SheetTitle() string {
	r := g.SheetsRange
	if r == "" {
		r = DefaultSheetsRange
	}
	title, _, found := strings.Cut(r, "!")
	if !found {
		return "Sheet1"
	}
	return strings.Trim(title, "'")
}
