// cmd/prompt-switcher/commands.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"prompt-switcher/internal/prompts"
	"prompt-switcher/pkg/registry"

	"github.com/spf13/cobra"
)

func newOptimizeCmd(configPath *string) *cobra.Command {
	var agent string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "optimize [--agent ID] TEXT...",
		Short: "Wrap TEXT into a prompt template and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), appOptions{configPath: *configPath})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			var agentID *prompts.ID
			if cmd.Flags().Changed("agent") {
				id := parseAgentID(agent)
				agentID = &id
			}

			result, err := a.svc.Optimize(cmd.Context(), strings.Join(args, " "), agentID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, result)
			}
			if result.Agent != nil {
				note := ""
				if result.Fallback {
					note = ", fallback"
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "# %s (id %s, %s%s)\n", result.Agent.Name, result.Agent.ID, result.Mode, note)
			}
			fmt.Fprintln(out, result.OptimizedText)
			return nil
		},
	}
	cmd.Flags().StringVarP(&agent, "agent", "a", "", "template id to use instead of automatic routing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func newAgentsCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the active prompt templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), appOptions{configPath: *configPath})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			agents, err := a.svc.ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"agents": agents})
			}
			return writeAgentsTable(cmd.OutOrStdout(), agents)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a prompt template file (JSON or YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := registry.LoadTemplates(args[0])
			if err != nil {
				return err
			}
			store, err := prompts.Build(records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d templates ok (fingerprint %s)\n", args[0], store.Len(), store.Fingerprint())
			return nil
		},
	}
}

// parseAgentID reads integers as numeric ids and anything else as a string id.
func parseAgentID(s string) prompts.ID {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return prompts.IntID(n)
	}
	return prompts.StringID(s)
}

func writeAgentsTable(w io.Writer, agents []prompts.Metadata) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
	for _, agent := range agents {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", agent.ID, agent.Name, agent.Description)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
