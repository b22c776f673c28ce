package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/d4rkfella/vaulted/internal/backup"
	"github.com/d4rkfella/vaulted/internal/util"
	"github.com/d4rkfella/vaulted/pkg/session"
)

var (
	waitReady bool

	initShares    int
	initThreshold int
	initNoSave    bool
	initShowKeys  bool

	unsealKeys []string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the seal status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()

		var st session.Status
		if waitReady {
			st, err = s.WaitReady(cmd.Context())
		} else {
			st, err = s.Status(cmd.Context())
		}
		if err != nil {
			return err
		}
		return printStatus(cmd.OutOrStdout(), st)
	},
}

func printStatus(out io.Writer, st session.Status) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Initialized\t%t\n", st.Initialized)
	fmt.Fprintf(w, "Sealed\t%t\n", st.Sealed)
	fmt.Fprintf(w, "Key Shares\t%d\n", st.N)
	fmt.Fprintf(w, "Threshold\t%d\n", st.T)
	if st.Sealed {
		fmt.Fprintf(w, "Unseal Progress\t%d/%d\n", st.Progress, st.T)
	}
	if st.Version != "" {
		fmt.Fprintf(w, "Version\t%s\n", st.Version)
	}
	if st.ClusterName != "" {
		fmt.Fprintf(w, "Cluster Name\t%s\n", st.ClusterName)
	}
	return w.Flush()
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the server and save the resulting credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if initThreshold < 1 || initThreshold > initShares {
			return fmt.Errorf("threshold must be between 1 and %d, got %d", initShares, initThreshold)
		}

		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := s.Init(cmd.Context(), initShares, initThreshold)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Initialized with %d key shares and a threshold of %d\n", initShares, initThreshold)
		if initShowKeys {
			for i, k := range res.Keys {
				fmt.Fprintf(out, "Unseal Key %d: %s\n", i+1, k)
			}
			fmt.Fprintf(out, "Root Token: %s\n", res.RootToken)
		} else {
			fmt.Fprintf(out, "Root Token: %s\n", util.RedactKey(res.RootToken))
		}

		if initNoSave {
			return nil
		}
		snap, err := backup.FromSession(s, cfg.Address)
		if err != nil {
			return err
		}
		defer snap.Zero()
		path, err := backup.Save(cfg.BackupDir, snap)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Credentials saved to %s\n", path)

		if cfg.S3.Enabled() {
			sink, err := newSink(cmd)
			if err != nil {
				return err
			}
			key, err := sink.Upload(cmd.Context(), path, false, false)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Credentials uploaded to s3://%s/%s\n", cfg.S3.Bucket, key)
		}
		return nil
	},
}

var unsealCmd = &cobra.Command{
	Use:   "unseal",
	Short: "Unseal the server with the given or saved key shares",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if len(unsealKeys) > 0 {
			s.SetKeys(unsealKeys)
		}
		st, err := s.Unseal(cmd.Context())
		if err != nil {
			if errors.Is(err, session.ErrStillSealed) {
				_ = printStatus(cmd.OutOrStdout(), st)
			}
			return err
		}
		return printStatus(cmd.OutOrStdout(), st)
	},
}

var sealCmd = &cobra.Command{
	Use:         "seal",
	Short:       "Seal the server",
	Args:        cobra.NoArgs,
	Annotations: requires(needsToken),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Seal(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Sealed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, initCmd, unsealCmd, sealCmd)

	statusCmd.Flags().BoolVar(&waitReady, "wait", false, "poll until the server is initialized and unsealed")

	initCmd.Flags().IntVar(&initShares, "shares", 5, "number of key shares")
	initCmd.Flags().IntVar(&initThreshold, "threshold", 3, "key shares needed to unseal")
	initCmd.Flags().BoolVar(&initNoSave, "no-save", false, "do not save the credentials to the backup directory")
	initCmd.Flags().BoolVar(&initShowKeys, "show-keys", false, "print the key shares and root token")

	unsealCmd.Flags().StringArrayVarP(&unsealKeys, "key", "k", nil, "key share to submit, repeatable; defaults to the saved shares")
}
