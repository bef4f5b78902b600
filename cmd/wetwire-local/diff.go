package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/config"
	"github.com/lex00/wetwire-aws-local/internal/differ"
)

func newDiffCmd() *cobra.Command {
	var (
		outputFormat    string
		ignoreStackPath bool
		parameters      []string
	)

	cmd := &cobra.Command{
		Use:   "diff <template1> <template2>",
		Short: "Compare the routing tables of two templates",
		Long: `Diff builds the routing table of each template and reports routes that were
added, removed or changed, plus API level settings (stage, CORS, binary media).

Examples:
    wetwire-local diff template.yaml template.new.yaml
    wetwire-local diff a.yaml b.yaml --format json
    wetwire-local diff a.yaml b.yaml --ignore-stack-path`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := config.ParsePairs(parameters)
			if err != nil {
				return fmt.Errorf("%s: %w", config.KeyParameterOverrides, err)
			}
			log, err := newLogger(cmd)
			if err != nil {
				return err
			}
			result, err := differ.CompareFiles(args[0], args[1], differ.Options{
				IgnoreStackPath: ignoreStackPath,
				Parameters:      params,
				Logger:          log,
			})
			if err != nil {
				return err
			}
			return outputDiff(cmd.OutOrStdout(), result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&ignoreStackPath, "ignore-stack-path", false, "Ignore which nested stack a route comes from")
	cmd.Flags().StringArrayVar(&parameters, config.KeyParameterOverrides, nil, "Template parameter override as Name=Value (repeatable)")

	return cmd
}

func outputDiff(w io.Writer, result *differ.Result, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(struct {
			Diff    wetwire.RouteDiff   `json:"diff"`
			Summary wetwire.DiffSummary `json:"summary"`
		}{result.Diff, result.Summary}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		if result.Empty() {
			fmt.Fprintln(w, "No differences.")
			return nil
		}
		for _, e := range result.Diff.Added {
			fmt.Fprintf(w, "+ %s %s\n", e.Route, firstChange(e.Changes))
		}
		for _, e := range result.Diff.Removed {
			fmt.Fprintf(w, "- %s %s\n", e.Route, firstChange(e.Changes))
		}
		for _, e := range result.Diff.Modified {
			fmt.Fprintf(w, "~ %s\n", e.Route)
			for _, c := range e.Changes {
				fmt.Fprintf(w, "    %s\n", c)
			}
		}
		fmt.Fprintf(w, "\n%d added, %d removed, %d modified\n",
			result.Summary.Added, result.Summary.Removed, result.Summary.Modified)

	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}

func firstChange(changes []string) string {
	if len(changes) == 0 {
		return ""
	}
	return changes[0]
}
