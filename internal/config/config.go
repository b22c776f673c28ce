package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/d4rkfella/vaulted/internal/notify"
	"github.com/d4rkfella/vaulted/internal/util"
	"github.com/d4rkfella/vaulted/pkg/endpoint"
	"github.com/d4rkfella/vaulted/pkg/registry"
)

// Setting keys. Each one is also read from the upper-cased environment
// variable of the same name, e.g. vault_addr from VAULT_ADDR.
const (
	KeyAddr          = "vault_addr"
	KeyPrefix        = "vault_prefix"
	KeyToken         = "vault_token"
	KeyCACert        = "vault_cacert"
	KeyClientCert    = "vault_client_cert"
	KeyClientKey     = "vault_client_key"
	KeySkipVerify    = "vault_skip_verify"
	KeyTLSServerName = "vault_tls_server_name"
	KeyTimeout       = "vault_timeout"
	KeyProxyHost     = "vault_proxy_host"
	KeyProxyPort     = "vault_proxy_port"
	KeyProxyUser     = "vault_proxy_user"
	KeyProxyPass     = "vault_proxy_pass"
	KeyCatalog       = "vault_catalog"
	KeyBackupDir     = "vault_backup_dir"
	KeyDebug         = "vault_debug"
	KeyLogLevel      = "log_level"

	// Discrete host settings, used only when vault_addr is unset.
	KeyHost = "vault_host"
	KeyPort = "vault_port"
	KeySSL  = "vault_ssl"

	KeyS3Bucket       = "s3_bucket"
	KeyS3Region       = "s3_region"
	KeyS3Endpoint     = "s3_endpoint"
	KeyS3AccessKey    = "s3_access_key"
	KeyS3SecretKey    = "s3_secret_key"
	KeyS3SessionToken = "s3_session_token"
	KeyS3Prefix       = "s3_prefix"
	KeyRetention      = "retention_period"
	KeySecureDelete   = "secure_delete"
	KeyMemoryRatio    = "memory_limit_ratio"

	KeyPushoverAPIKey  = "pushover_api_key"
	KeyPushoverUserKey = "pushover_user_key"
)

// ErrInvalid is wrapped by every validation failure of Load.
var ErrInvalid = errors.New("invalid configuration")

// Provider is the read side of a settings source. *viper.Viper satisfies it.
type Provider interface {
	Get(key string) any
	GetString(key string) string
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
	Set(key string, value any)
}

var _ Provider = (*viper.Viper)(nil)

// NewProvider returns a viper instance reading the environment and, when
// file is not empty, a YAML config file.
func NewProvider(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", util.SanitizePath(file), err)
		}
		log.Debug().Str("component", "config").Str("file", util.SanitizePath(file)).Msg("Config file loaded")
	}
	return v, nil
}

// SetDefaults registers the default of every optional setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPrefix, registry.DefaultVersion)
	v.SetDefault(KeyTimeout, 60*time.Second)
	v.SetDefault(KeyPort, 8200)
	v.SetDefault(KeySSL, true)
	v.SetDefault(KeyBackupDir, ".")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyS3Region, "us-east-1")
	v.SetDefault(KeyRetention, 7*24*time.Hour)
	v.SetDefault(KeyMemoryRatio, 0.85)
}

// S3 holds the optional backup upload settings. An empty Bucket disables
// uploads.
type S3 struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	SessionToken string
	Prefix       string
	Retention    time.Duration
}

// Enabled reports whether a bucket is configured.
func (s S3) Enabled() bool { return s.Bucket != "" }

// Config is the validated client configuration.
type Config struct {
	Address   string
	Version   string
	Token     string
	Timeout   time.Duration
	TLS       endpoint.TLSOptions
	Proxy     endpoint.ProxyOptions
	Catalog   string
	BackupDir string
	LogLevel  string

	MemoryLimitRatio float64
	SecureDelete     bool
	S3               S3
	Notify           notify.Config
}

// Load reads and validates the configuration held by p.
func Load(p Provider) (*Config, error) {
	addr, err := address(p)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Address:   addr,
		Version:   strings.Trim(p.GetString(KeyPrefix), "/"),
		Token:     p.GetString(KeyToken),
		Timeout:   p.GetDuration(KeyTimeout),
		Catalog:   p.GetString(KeyCatalog),
		BackupDir: p.GetString(KeyBackupDir),
		LogLevel:  strings.ToLower(p.GetString(KeyLogLevel)),
		TLS: endpoint.TLSOptions{
			CACert:     p.GetString(KeyCACert),
			ClientCert: p.GetString(KeyClientCert),
			ClientKey:  p.GetString(KeyClientKey),
			ServerName: p.GetString(KeyTLSServerName),
			Insecure:   p.GetBool(KeySkipVerify),
		},
		Proxy: endpoint.ProxyOptions{
			Host:     p.GetString(KeyProxyHost),
			Username: p.GetString(KeyProxyUser),
			Password: p.GetString(KeyProxyPass),
		},
		SecureDelete: p.GetBool(KeySecureDelete),
		S3: S3{
			Bucket:       p.GetString(KeyS3Bucket),
			Region:       p.GetString(KeyS3Region),
			Endpoint:     p.GetString(KeyS3Endpoint),
			AccessKey:    p.GetString(KeyS3AccessKey),
			SecretKey:    p.GetString(KeyS3SecretKey),
			SessionToken: p.GetString(KeyS3SessionToken),
			Prefix:       p.GetString(KeyS3Prefix),
			Retention:    p.GetDuration(KeyRetention),
		},
		Notify: notify.Config{
			APIKey:  p.GetString(KeyPushoverAPIKey),
			UserKey: p.GetString(KeyPushoverUserKey),
		},
	}
	if p.GetBool(KeyDebug) {
		cfg.LogLevel = "debug"
	}
	if cfg.Version == "" {
		cfg.Version = registry.DefaultVersion
	}

	if raw := p.GetString(KeyMemoryRatio); raw != "" {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q is not a number", ErrInvalid, KeyMemoryRatio, raw)
		}
		cfg.MemoryLimitRatio = ratio
	}
	if cfg.MemoryLimitRatio <= 0 || cfg.MemoryLimitRatio > 1 {
		return nil, fmt.Errorf("%w: %s must be in (0, 1], got %v", ErrInvalid, KeyMemoryRatio, cfg.MemoryLimitRatio)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive, got %v", ErrInvalid, KeyTimeout, cfg.Timeout)
	}

	if raw := p.GetString(KeyProxyPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%w: %s %q is not a valid port", ErrInvalid, KeyProxyPort, raw)
		}
		cfg.Proxy.Port = port
	}

	if (cfg.TLS.ClientCert == "") != (cfg.TLS.ClientKey == "") {
		return nil, fmt.Errorf("%w: %s and %s must be set together", ErrInvalid, KeyClientCert, KeyClientKey)
	}

	if (cfg.Notify.APIKey == "") != (cfg.Notify.UserKey == "") {
		return nil, fmt.Errorf("%w: %s and %s must be set together", ErrInvalid, KeyPushoverAPIKey, KeyPushoverUserKey)
	}

	if cfg.S3.Enabled() && cfg.S3.Retention <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive, got %v", ErrInvalid, KeyRetention, cfg.S3.Retention)
	}

	return cfg, nil
}

// address resolves the server address from vault_addr, falling back to the
// discrete host, port and ssl settings.
func address(p Provider) (string, error) {
	addr := strings.TrimRight(p.GetString(KeyAddr), "/")
	if addr == "" {
		host := p.GetString(KeyHost)
		if host == "" {
			return "", fmt.Errorf("%w: %s is required", ErrInvalid, KeyAddr)
		}
		scheme := "http"
		if p.GetBool(KeySSL) {
			scheme = "https"
		}
		addr = scheme + "://" + net.JoinHostPort(host, p.GetString(KeyPort))
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		return "", fmt.Errorf("%w: %s must start with http:// or https://, got %s", ErrInvalid, KeyAddr, util.RedactURL(addr))
	}
	return addr, nil
}

// LogLoaded reports the loaded settings. Call it once the logger is set up
// at c.LogLevel.
func (c *Config) LogLoaded() {
	log.Info().Str("component", "config").Msg("Configuration loaded")
	log.Debug().
		Str("component", "config").
		Str("address", util.RedactURL(c.Address)).
		Str("version", c.Version).
		Str("token", util.RedactKey(c.Token)).
		Dur("timeout", c.Timeout).
		Bool("tls_insecure", c.TLS.Insecure).
		Bool("proxy", c.Proxy.Enabled()).
		Str("catalog", util.SanitizePath(c.Catalog)).
		Str("backup_dir", util.SanitizePath(c.BackupDir)).
		Str("log_level", c.LogLevel).
		Str("s3_bucket", c.S3.Bucket).
		Str("s3_endpoint", util.RedactURL(c.S3.Endpoint)).
		Dur("retention", c.S3.Retention).
		Bool("notifications", c.Notify.Enabled()).
		Msg("Loaded configuration details (debug)")
}

// Connection returns the settings shared by every endpoint.
func (c *Config) Connection() endpoint.Defaults {
	return endpoint.Defaults{Timeout: c.Timeout, TLS: c.TLS, Proxy: c.Proxy}
}

// APIClient builds the HTTP transport for the registry. Retries are left
// to callers and the client carries no token of its own; tokens travel in
// each request's headers.
func (c *Config) APIClient() (*api.Client, error) {
	transport := cleanhttp.DefaultPooledTransport()
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	if c.Proxy.Enabled() {
		transport.Proxy = http.ProxyURL(c.Proxy.URL())
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = c.Address
	apiCfg.Timeout = c.Timeout
	apiCfg.MaxRetries = 0
	apiCfg.HttpClient = &http.Client{
		Transport: transport,
		Timeout:   c.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	if err := apiCfg.ConfigureTLS(&api.TLSConfig{
		CACert:        c.TLS.CACert,
		ClientCert:    c.TLS.ClientCert,
		ClientKey:     c.TLS.ClientKey,
		TLSServerName: c.TLS.ServerName,
		Insecure:      c.TLS.Insecure,
	}); err != nil {
		return nil, fmt.Errorf("configure tls: %w", err)
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}
	client.ClearToken()
	return client, nil
}

// RegistryOptions binds transport to the configured address.
func (c *Config) RegistryOptions(transport endpoint.Transport) registry.Options {
	return registry.Options{
		Address:   c.Address,
		Version:   c.Version,
		Defaults:  c.Connection(),
		Transport: transport,
	}
}

// Registry builds the API client and loads the configured catalog, or the
// embedded default one.
func (c *Config) Registry() (*registry.Registry, error) {
	client, err := c.APIClient()
	if err != nil {
		return nil, endpoint.NewConfigurationError("", "build transport", err)
	}
	return registry.LoadFile(c.Catalog, c.RegistryOptions(client))
}
