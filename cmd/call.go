package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

var callOpts struct {
	id       string
	data     []string
	query    []string
	override bool
	require  string
	noAuth   bool
}

var callCmd = &cobra.Command{
	Use:   "call <endpoint> <verb>",
	Short: "Call a catalog endpoint",
	Long: `Call a catalog endpoint with the given verb and print the decoded response.

Body values are given as key=value pairs. Dotted keys build nested objects and
values that parse as JSON keep their type:

  vaulted call secret/:id PUT --id foo --data value=bar
  vaulted call transit/keys/:id POST --id app --data type=aes256-gcm96
  vaulted call sys/audit/:id PUT --id file --data type=file --data options.file_path=/var/log/audit.log`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		verb, err := endpoint.ParseVerb(args[1])
		if err != nil {
			return &endpoint.UnsupportedVerbError{Endpoint: args[0], Verb: endpoint.Verb(strings.ToUpper(args[1]))}
		}
		req, err := buildRequest()
		if err != nil {
			return err
		}

		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if !callOpts.noAuth {
			req = req.Authenticated(s.Token())
		}

		e, err := s.Endpoint(args[0])
		if errors.Is(err, endpoint.ErrLookup) && s.Token() != "" {
			// Backend endpoints only exist once their mounts are known.
			if merr := registerMounts(cmd.Context(), s); merr != nil {
				log.Debug().Str("component", "cli").Err(merr).Msg("Could not refresh mounts")
			} else {
				e, err = s.Endpoint(args[0])
			}
		}
		if err != nil {
			return err
		}
		resp, err := e.Call(cmd.Context(), verb, req)
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

func buildRequest() (endpoint.Request, error) {
	req := endpoint.Request{
		ID:           callOpts.id,
		Override:     callOpts.override,
		RequiredPath: callOpts.require,
	}
	if len(callOpts.data) > 0 {
		body, err := parseData(callOpts.data)
		if err != nil {
			return req, err
		}
		req.Body = body
	}
	if len(callOpts.query) > 0 {
		req.Query = url.Values{}
		for _, kv := range callOpts.query {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return req, fmt.Errorf("invalid --query %q: want key=value", kv)
			}
			req.Query.Add(k, v)
		}
	}
	return req, nil
}

// parseData turns key=value pairs into a request body. Dotted keys nest.
func parseData(pairs []string) (map[string]any, error) {
	body := map[string]any{}
	for _, kv := range pairs {
		k, raw, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --data %q: want key=value", kv)
		}

		var v any = raw
		var decoded any
		if json.Unmarshal([]byte(raw), &decoded) == nil {
			v = decoded
		}

		parts := strings.Split(k, ".")
		cur := body
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = v
	}
	return body, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	rootCmd.AddCommand(callCmd)

	f := callCmd.Flags()
	f.StringVar(&callOpts.id, "id", "", "value for the :id placeholder")
	f.StringArrayVarP(&callOpts.data, "data", "d", nil, "body value as key=value, repeatable")
	f.StringArrayVarP(&callOpts.query, "query", "q", nil, "query parameter as key=value, repeatable")
	f.BoolVar(&callOpts.override, "override", false, "skip the required-parameter check")
	f.StringVar(&callOpts.require, "require", "", "dotted body path that must be set for this call")
	f.BoolVar(&callOpts.noAuth, "no-auth", false, "send the request without a token")
}
