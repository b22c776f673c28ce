package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/d4rkfella/vaulted/internal/backup"
	"github.com/d4rkfella/vaulted/internal/config"
	"github.com/d4rkfella/vaulted/internal/notify"
	"github.com/d4rkfella/vaulted/internal/s3"
)

var (
	removeLocal   bool
	restoreKey    string
	restoreUnseal bool
)

// newStore opens the configured bucket.
var newStore = func(ctx context.Context, c config.S3) (backup.Store, error) {
	client, err := s3.NewClient(ctx, s3.Config{
		AccessKey:       c.AccessKey,
		SecretAccessKey: c.SecretKey,
		SessionToken:    c.SessionToken,
		Region:          c.Region,
		Bucket:          c.Bucket,
		Endpoint:        c.Endpoint,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

type notifier interface {
	Notify(ctx context.Context, r notify.Report) error
}

var newNotifier = func(c notify.Config) (notifier, error) {
	client, err := notify.NewClient(c)
	if err != nil || client == nil {
		return nil, err
	}
	return client, nil
}

// report sends the outcome of op when notifications are configured. A
// failed notification is only logged.
func report(ctx context.Context, op notify.Operation, start time.Time, size int64, details map[string]string, opErr error) {
	n, err := newNotifier(cfg.Notify)
	if err == nil && n != nil {
		err = n.Notify(ctx, notify.Report{
			Op:        op,
			Err:       opErr,
			Duration:  time.Since(start),
			SizeBytes: size,
			Details:   details,
		})
	}
	if err != nil {
		log.Warn().Str("component", "notify").Err(err).Msg("Notification failed")
	}
}

func newSink(cmd *cobra.Command) (*backup.Sink, error) {
	store, err := newStore(cmd.Context(), cfg.S3)
	if err != nil {
		return nil, err
	}
	return backup.NewSink(store, cfg.S3.Prefix, cfg.S3.Retention), nil
}

var backupCmd = &cobra.Command{
	Use:         "backup",
	Short:       "Upload the saved credentials to S3 and prune old uploads",
	Args:        cobra.NoArgs,
	Annotations: requires(needsS3),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		details := map[string]string{"Bucket": cfg.S3.Bucket}
		var size int64
		err := runBackup(cmd, details, &size)
		report(cmd.Context(), notify.OpBackup, start, size, details, err)
		return err
	},
}

func runBackup(cmd *cobra.Command, details map[string]string, size *int64) error {
	local := backup.Path(cfg.BackupDir)
	if _, err := backup.Load(cfg.BackupDir); err != nil {
		return err
	}
	if fi, err := os.Stat(local); err == nil {
		*size = fi.Size()
	}
	sink, err := newSink(cmd)
	if err != nil {
		return err
	}

	key, err := sink.Upload(cmd.Context(), local, removeLocal, cfg.SecureDelete)
	if err != nil {
		return err
	}
	details["Key"] = key
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Uploaded s3://%s/%s\n", cfg.S3.Bucket, key)

	pruned, err := sink.Prune(cmd.Context())
	if err != nil {
		return err
	}
	if pruned > 0 {
		details["Pruned"] = fmt.Sprint(pruned)
		fmt.Fprintf(out, "Pruned %d snapshot(s) older than %s\n", pruned, cfg.S3.Retention)
	}
	return nil
}

var restoreCmd = &cobra.Command{
	Use:         "restore",
	Short:       "Download saved credentials from S3 into the backup directory",
	Args:        cobra.NoArgs,
	Annotations: requires(needsS3),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		details := map[string]string{"Bucket": cfg.S3.Bucket}
		err := runRestore(cmd, details)
		report(cmd.Context(), notify.OpRestore, start, 0, details, err)
		return err
	},
}

func runRestore(cmd *cobra.Command, details map[string]string) error {
	sink, err := newSink(cmd)
	if err != nil {
		return err
	}
	snap, err := sink.Fetch(cmd.Context(), restoreKey)
	if err != nil {
		return err
	}
	defer snap.Zero()

	path, err := backup.Save(cfg.BackupDir, snap)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Credentials restored to %s\n", path)

	if !restoreUnseal {
		return nil
	}
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.Close()
	snap.Apply(s)
	st, err := s.Unseal(cmd.Context())
	if err != nil {
		return err
	}
	details["Unsealed"] = "true"
	return printStatus(out, st)
}

func init() {
	rootCmd.AddCommand(backupCmd, restoreCmd)

	backupCmd.Flags().BoolVar(&removeLocal, "remove-local", false, "delete the local snapshot after a successful upload")
	restoreCmd.Flags().StringVar(&restoreKey, "key", "", "object key to restore; defaults to the newest upload")
	restoreCmd.Flags().BoolVar(&restoreUnseal, "unseal", false, "unseal the server with the restored key shares")
}
