package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/d4rkfella/vaulted/internal/backup"
	"github.com/d4rkfella/vaulted/internal/config"
	"github.com/d4rkfella/vaulted/internal/logging"
	"github.com/d4rkfella/vaulted/internal/util"
	"github.com/d4rkfella/vaulted/pkg/session"
)

var (
	cfgFile   string
	configErr error

	// cfg is loaded by the root pre-run hook before any command runs.
	cfg *config.Config
)

// Requirement annotations checked before a command runs.
const (
	requiresAnnotation = "vaulted/requires"
	needsToken         = "token"
	needsS3            = "s3"
)

var rootCmd = &cobra.Command{
	Use:               "vaulted",
	Short:             "Catalog-driven Vault API client",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	rootCmd.PrintErrln(err.Error())
	return ExitCode(err)
}

// flagKeys maps persistent flags to their setting keys.
var flagKeys = map[string]string{
	"address":         config.KeyAddr,
	"prefix":          config.KeyPrefix,
	"token":           config.KeyToken,
	"timeout":         config.KeyTimeout,
	"ca-cert":         config.KeyCACert,
	"tls-skip-verify": config.KeySkipVerify,
	"catalog":         config.KeyCatalog,
	"backup-dir":      config.KeyBackupDir,
	"log-level":       config.KeyLogLevel,
	"s3-bucket":       config.KeyS3Bucket,
	"s3-region":       config.KeyS3Region,
	"s3-endpoint":     config.KeyS3Endpoint,
	"s3-access-key":   config.KeyS3AccessKey,
	"s3-secret-key":   config.KeyS3SecretKey,
	"s3-prefix":       config.KeyS3Prefix,

	"pushover-api-key":  config.KeyPushoverAPIKey,
	"pushover-user-key": config.KeyPushoverUserKey,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (YAML)")

	pf.StringP("address", "a", "", "Vault server address (VAULT_ADDR)")
	pf.String("prefix", "", "API version prefix (VAULT_PREFIX, default v1)")
	pf.StringP("token", "t", "", "Vault token (VAULT_TOKEN)")
	pf.Duration("timeout", 0, "request timeout (VAULT_TIMEOUT, default 60s)")
	pf.String("ca-cert", "", "CA certificate file (VAULT_CACERT)")
	pf.Bool("tls-skip-verify", false, "skip TLS verification (VAULT_SKIP_VERIFY)")
	pf.String("catalog", "", "endpoint catalog file; the built-in catalog is used when empty (VAULT_CATALOG)")
	pf.String("backup-dir", "", "directory holding the credential snapshot (VAULT_BACKUP_DIR)")
	pf.String("log-level", "", "log level (LOG_LEVEL)")

	pf.String("s3-bucket", "", "S3 bucket for snapshot uploads (S3_BUCKET)")
	pf.String("s3-region", "", "S3 region (S3_REGION)")
	pf.String("s3-endpoint", "", "S3-compatible endpoint URL (S3_ENDPOINT)")
	pf.String("s3-access-key", "", "S3 access key (S3_ACCESS_KEY)")
	pf.String("s3-secret-key", "", "S3 secret key (S3_SECRET_KEY)")
	pf.String("s3-prefix", "", "key prefix for uploads (S3_PREFIX)")

	pf.String("pushover-api-key", "", "Pushover application token for backup reports (PUSHOVER_API_KEY)")
	pf.String("pushover-user-key", "", "Pushover user key for backup reports (PUSHOVER_USER_KEY)")
}

// initConfig wires defaults, environment, flags and the config file into
// the global viper instance.
func initConfig() {
	config.SetDefaults(viper.GetViper())
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			_ = viper.BindPFlag(key, f)
		}
	})

	configErr = nil
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			configErr = fmt.Errorf("read config file %s: %w", util.SanitizePath(cfgFile), err)
		}
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	if !cmd.HasParent() || cmd.Name() == "help" {
		return nil
	}
	if configErr != nil {
		return configErr
	}
	if verr := validateConfig(viper.GetViper(), requirements(cmd)); verr != nil {
		return verr
	}
	c, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	logging.Init(c.LogLevel)
	c.LogLoaded()
	cfg = c
	return nil
}

func requirements(cmd *cobra.Command) map[string]bool {
	out := map[string]bool{}
	for _, r := range strings.Split(cmd.Annotations[requiresAnnotation], ",") {
		if r = strings.TrimSpace(r); r != "" {
			out[r] = true
		}
	}
	return out
}

func requires(reqs ...string) map[string]string {
	return map[string]string{requiresAnnotation: strings.Join(reqs, ",")}
}

// newSession binds a session to the configured server. Without a
// configured token the session picks up the credentials saved in the
// backup directory, if any.
func newSession() (*session.Session, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	s := session.New(reg, cfg.Token)
	s.Retry.MaxDelay = min(s.Retry.MaxDelay, cfg.Timeout)

	if cfg.Token == "" {
		if snap, err := backup.Load(cfg.BackupDir); err == nil {
			snap.Apply(s)
			snap.Zero()
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("component", "cli").Err(err).Msg("Ignoring unreadable snapshot")
		}
	}
	return s, nil
}

// registerMounts lists the server's secrets engines and adds the endpoint
// sets of their backend types to s. Sessions without a token are left as is.
func registerMounts(ctx context.Context, s *session.Session) error {
	if s.Token() == "" {
		return nil
	}
	if _, err := s.Mounts(ctx); err != nil {
		return err
	}
	return s.RegisterMounts()
}
