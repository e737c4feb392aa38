// Package config loads meme-minter settings from an optional YAML file and the
// environment. Environment variables always win over file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Chain      ChainConfig      `yaml:"chain"`
	AssetStore AssetStoreConfig `yaml:"asset_store"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Gas        GasConfig        `yaml:"gas"`
	Results    ResultsConfig    `yaml:"results"`
	Journal    JournalConfig    `yaml:"journal"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Session    SessionConfig    `yaml:"session"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
	Perf       PerfConfig       `yaml:"perf"`
}

type ChainConfig struct {
	RPCURL          string `yaml:"rpc_url"`
	ChainID         int64  `yaml:"chain_id"`
	PrivateKey      string `yaml:"-"`
	MinterAddress   string `yaml:"minter_address"`
	MarketAddress   string `yaml:"market_address"`
	ExplorerURL     string `yaml:"explorer_url"`
	ListingLookback uint64 `yaml:"listing_lookback_blocks"`
}

type AssetStoreConfig struct {
	Backend      string        `yaml:"backend"` // "pinata" | "blob"
	PinataJWT    string        `yaml:"-"`
	PinataKey    string        `yaml:"-"`
	PinataSecret string        `yaml:"-"`
	PinataURL    string        `yaml:"pinata_url"`
	GatewayURL   string        `yaml:"gateway_url"`
	BucketURL    string        `yaml:"bucket_url"`
	Collection   string        `yaml:"collection"`
	Timeout      time.Duration `yaml:"timeout"`
}

type PipelineConfig struct {
	AssetDir          string        `yaml:"asset_dir"`
	MaxAssets         int           `yaml:"max_assets"`
	DefaultPrice      string        `yaml:"default_price"`
	AutoList          bool          `yaml:"auto_list"`
	FinalizeDelay     time.Duration `yaml:"finalize_delay"`
	InterAssetDelay   time.Duration `yaml:"inter_asset_delay"`
	VerifyMaxAttempts int           `yaml:"verify_max_attempts"`
	VerifyDelay       time.Duration `yaml:"verify_delay"`
	VerifyBackoff     string        `yaml:"verify_backoff"` // "fixed" | "exponential"
	ReceiptTimeout    time.Duration `yaml:"receipt_timeout"`
	ReceiptPoll       time.Duration `yaml:"receipt_poll"`
	ExternalURL       string        `yaml:"external_url"`
}

type GasConfig struct {
	MintLimit     uint64 `yaml:"mint_limit"`
	ApprovalLimit uint64 `yaml:"approval_limit"`
	ListLimit     uint64 `yaml:"list_limit"`
}

type ResultsConfig struct {
	BucketURL string `yaml:"bucket_url"`
	Prefix    string `yaml:"prefix"`
	Compress  bool   `yaml:"compress"`
	Parquet   bool   `yaml:"parquet"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"`
}

type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

type SessionConfig struct {
	Backend       string `yaml:"backend"` // "memory" | "file" | "redis"
	File          string `yaml:"file"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redis_db"`
	ID            string `yaml:"id"`
}

type AuditConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Dir      string `yaml:"dir"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type PerfConfig struct {
	UploadWorkers int `yaml:"upload_workers"`
}

// MissingError lists every required variable that was not set.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Vars, ", ")
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Chain: ChainConfig{
			ListingLookback: 50000,
		},
		AssetStore: AssetStoreConfig{
			Backend:    "pinata",
			PinataURL:  "https://api.pinata.cloud",
			GatewayURL: "https://gateway.pinata.cloud",
			Collection: "viral-memes",
			Timeout:    60 * time.Second,
		},
		Pipeline: PipelineConfig{
			AssetDir:          "./assets",
			MaxAssets:         3,
			DefaultPrice:      "0.01",
			AutoList:          true,
			FinalizeDelay:     15 * time.Second,
			InterAssetDelay:   8 * time.Second,
			VerifyMaxAttempts: 3,
			VerifyDelay:       10 * time.Second,
			VerifyBackoff:     "fixed",
			ReceiptTimeout:    2 * time.Minute,
			ReceiptPoll:       2 * time.Second,
		},
		Gas: GasConfig{
			MintLimit:     500000,
			ApprovalLimit: 100000,
			ListLimit:     300000,
		},
		Results: ResultsConfig{
			BucketURL: "file://./results",
			Prefix:    "runs/",
		},
		Journal: JournalConfig{
			Dir: ".meme-minter/journal",
		},
		Session: SessionConfig{
			Backend: "file",
			File:    ".meme-minter/session.json",
			ID:      "default",
		},
		Audit: AuditConfig{
			Dir: ".meme-minter/audit",
		},
		Metrics: MetricsConfig{
			Addr:      ":9090",
			Namespace: "meme_minter",
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Perf: PerfConfig{
			UploadWorkers: 1,
		},
	}
}

// Load returns defaults overlaid by the YAML file at path (skipped when path is
// empty) and then by the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var p envParser

	p.setStr(&c.Chain.RPCURL, "RPC_URL", "SEI_RPC")
	p.setInt64(&c.Chain.ChainID, "CHAIN_ID")
	p.setStr(&c.Chain.PrivateKey, "PRIVATE_KEY")
	p.setStr(&c.Chain.MinterAddress, "MEME_MINTER_ADDRESS")
	p.setStr(&c.Chain.MarketAddress, "MEME_SALE_ADDRESS")
	p.setStr(&c.Chain.ExplorerURL, "EXPLORER_URL")
	p.setUint64(&c.Chain.ListingLookback, "LISTING_LOOKBACK_BLOCKS")

	p.setStr(&c.AssetStore.Backend, "ASSET_STORE")
	p.setStr(&c.AssetStore.PinataJWT, "PINATA_JWT")
	p.setStr(&c.AssetStore.PinataKey, "PINATA_API_KEY")
	p.setStr(&c.AssetStore.PinataSecret, "PINATA_SECRET_API_KEY")
	p.setStr(&c.AssetStore.PinataURL, "PINATA_BASE_URL")
	p.setStr(&c.AssetStore.GatewayURL, "IPFS_GATEWAY")
	p.setStr(&c.AssetStore.BucketURL, "ASSET_BUCKET_URL")
	p.setStr(&c.AssetStore.Collection, "ASSET_COLLECTION")

	p.setStr(&c.Pipeline.AssetDir, "ASSET_DIR")
	p.setInt(&c.Pipeline.MaxAssets, "MAX_NFT_IMAGES")
	p.setStr(&c.Pipeline.DefaultPrice, "DEFAULT_NFT_PRICE")
	p.setBool(&c.Pipeline.AutoList, "AUTO_LIST")
	p.setDuration(&c.Pipeline.FinalizeDelay, "FINALIZE_DELAY")
	p.setDuration(&c.Pipeline.InterAssetDelay, "INTER_ASSET_DELAY")
	p.setInt(&c.Pipeline.VerifyMaxAttempts, "VERIFY_MAX_ATTEMPTS")
	p.setDuration(&c.Pipeline.VerifyDelay, "VERIFY_DELAY")
	p.setStr(&c.Pipeline.VerifyBackoff, "VERIFY_BACKOFF")
	p.setDuration(&c.Pipeline.ReceiptTimeout, "RECEIPT_TIMEOUT")
	p.setDuration(&c.Pipeline.ReceiptPoll, "RECEIPT_POLL")
	p.setStr(&c.Pipeline.ExternalURL, "EXTERNAL_URL")

	p.setUint64(&c.Gas.MintLimit, "MINT_GAS_LIMIT")
	p.setUint64(&c.Gas.ApprovalLimit, "APPROVAL_GAS_LIMIT")
	p.setUint64(&c.Gas.ListLimit, "LIST_GAS_LIMIT")

	p.setStr(&c.Results.BucketURL, "RESULTS_BUCKET_URL")
	p.setStr(&c.Results.Prefix, "RESULTS_PREFIX")
	p.setBool(&c.Results.Compress, "RESULTS_COMPRESS")
	p.setBool(&c.Results.Parquet, "RESULTS_PARQUET")

	p.setStr(&c.Journal.Dir, "JOURNAL_DIR")
	p.setStr(&c.Catalog.PostgresDSN, "CATALOG_DSN")

	p.setStr(&c.Session.Backend, "SESSION_BACKEND")
	p.setStr(&c.Session.File, "SESSION_FILE")
	p.setStr(&c.Session.RedisAddr, "REDIS_ADDR")
	p.setStr(&c.Session.RedisPassword, "REDIS_PASSWORD")
	p.setInt(&c.Session.RedisDB, "REDIS_DB")
	p.setStr(&c.Session.ID, "SESSION_ID")

	p.setBool(&c.Audit.Enabled, "AUDIT_ENABLED")
	p.setStr(&c.Audit.Endpoint, "AUDIT_ENDPOINT")
	p.setStr(&c.Audit.Dir, "AUDIT_DIR")

	p.setBool(&c.Metrics.Enabled, "METRICS_ENABLED")
	p.setStr(&c.Metrics.Addr, "METRICS_ADDR")
	p.setStr(&c.Metrics.Namespace, "METRICS_NAMESPACE")

	p.setStr(&c.Log.Format, "LOG_FORMAT")
	p.setStr(&c.Log.Level, "LOG_LEVEL")

	p.setInt(&c.Perf.UploadWorkers, "UPLOAD_WORKERS")

	return errors.Join(p.errs...)
}

// RequireChain reports the chain variables needed to sign and send
// transactions.
func (c Config) RequireChain() error {
	var missing []string
	if c.Chain.PrivateKey == "" {
		missing = append(missing, "PRIVATE_KEY")
	}
	if c.Chain.MinterAddress == "" {
		missing = append(missing, "MEME_MINTER_ADDRESS")
	}
	if c.Chain.MarketAddress == "" {
		missing = append(missing, "MEME_SALE_ADDRESS")
	}
	if c.Chain.RPCURL == "" {
		missing = append(missing, "RPC_URL")
	}
	if c.Chain.ChainID == 0 {
		missing = append(missing, "CHAIN_ID")
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	return nil
}

// RequireAssetStore reports the variables needed by the selected asset store.
func (c Config) RequireAssetStore() error {
	var missing []string
	switch c.AssetStore.Backend {
	case "pinata":
		if c.AssetStore.PinataJWT == "" {
			if c.AssetStore.PinataKey == "" {
				missing = append(missing, "PINATA_API_KEY")
			}
			if c.AssetStore.PinataSecret == "" {
				missing = append(missing, "PINATA_SECRET_API_KEY")
			}
			if len(missing) > 0 {
				missing = append([]string{"PINATA_JWT"}, missing...)
			}
		}
	case "blob":
		if c.AssetStore.BucketURL == "" {
			missing = append(missing, "ASSET_BUCKET_URL")
		}
	default:
		return fmt.Errorf("unknown asset store backend %q", c.AssetStore.Backend)
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	return nil
}

// Validate checks everything a minting run needs. All missing variables are
// reported in a single *MissingError.
func (c Config) Validate() error {
	var missing []string
	var errs []error

	for _, check := range []func() error{c.RequireChain, c.RequireAssetStore} {
		err := check()
		var me *MissingError
		switch {
		case err == nil:
		case errors.As(err, &me):
			missing = append(missing, me.Vars...)
		default:
			errs = append(errs, err)
		}
	}

	if c.Pipeline.VerifyMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("VERIFY_MAX_ATTEMPTS must be >= 1, got %d", c.Pipeline.VerifyMaxAttempts))
	}
	switch c.Pipeline.VerifyBackoff {
	case "fixed", "exponential":
	default:
		errs = append(errs, fmt.Errorf("VERIFY_BACKOFF must be fixed or exponential, got %q", c.Pipeline.VerifyBackoff))
	}
	if c.Perf.UploadWorkers < 1 {
		errs = append(errs, fmt.Errorf("UPLOAD_WORKERS must be >= 1, got %d", c.Perf.UploadWorkers))
	}
	switch c.Session.Backend {
	case "memory", "file", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.Session.Backend))
	}

	if len(missing) > 0 {
		errs = append([]error{&MissingError{Vars: missing}}, errs...)
	}
	return errors.Join(errs...)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// envParser applies set environment variables onto config fields and collects
// parse failures so they are all reported at once.
type envParser struct {
	errs []error
}

// lookup returns the first set key, so aliases can follow the canonical name.
func (p *envParser) lookup(keys ...string) (string, string, bool) {
	for _, k := range keys {
		if v := getenvDefault(k, ""); v != "" {
			return k, v, true
		}
	}
	return "", "", false
}

func (p *envParser) setStr(dst *string, keys ...string) {
	if _, v, ok := p.lookup(keys...); ok {
		*dst = v
	}
}

func (p *envParser) setInt(dst *int, key string) {
	if _, v, ok := p.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
}

func (p *envParser) setInt64(dst *int64, key string) {
	if _, v, ok := p.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
}

func (p *envParser) setUint64(dst *uint64, key string) {
	if _, v, ok := p.lookup(key); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: invalid unsigned integer %q", key, v))
			return
		}
		*dst = n
	}
}

func (p *envParser) setBool(dst *bool, key string) {
	if _, v, ok := p.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
			return
		}
		*dst = b
	}
}

func (p *envParser) setDuration(dst *time.Duration, key string) {
	if _, v, ok := p.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return
		}
		*dst = d
	}
}
