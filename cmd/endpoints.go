package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

var showBackends bool

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List the endpoints of the loaded catalog",
	Long: `List the endpoints of the loaded catalog.

With a token, the server's mounts are read first so the endpoints of mounted
backends (transit, pki, consul) are listed under their mount paths.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()
		if !showBackends {
			if err := registerMounts(cmd.Context(), s); err != nil {
				log.Warn().Str("component", "cli").Err(err).Msg("Mounts unavailable, listing catalog endpoints only")
			}
		}
		reg := s.Registry()

		out := cmd.OutOrStdout()
		if showBackends {
			backends := reg.Backends()
			sort.Strings(backends)
			for _, b := range backends {
				fmt.Fprintln(out, b)
			}
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, name := range reg.Names() {
			e, err := reg.Get(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\n", name, verbList(e))
		}
		return w.Flush()
	},
}

func verbList(e *endpoint.Endpoint) string {
	var parts []string
	for _, v := range e.Verbs() {
		spec, _ := e.Spec(v)
		s := v.String()
		if req := spec.RequiredParams(); len(req) > 0 {
			s += "(" + strings.Join(req, ",") + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func init() {
	rootCmd.AddCommand(endpointsCmd)
	endpointsCmd.Flags().BoolVar(&showBackends, "backends", false, "list the mountable backend types instead")
}
