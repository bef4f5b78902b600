package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lex00/wetwire-aws-local/internal/graph"
)

func newGraphCmd() *cobra.Command {
	var (
		tf                 templateFlags
		outputFormat       string
		includeAuthorizers bool
		clusterByStack     bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Generate a DOT graph of routes and functions",
		Long: `Generate a DOT or Mermaid format graph showing which function serves each route.

The output can be rendered with Graphviz:
    wetwire-local graph -t template.yaml | dot -Tpng -o routes.png

Or used in GitHub markdown (Mermaid format):
    wetwire-local graph -t template.yaml -f mermaid

Examples:
    wetwire-local graph -t template.yaml
    wetwire-local graph -t template.yaml -a       # include authorizers
    wetwire-local graph -t template.yaml -c       # cluster by nested stack`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var graphFormat graph.Format
			switch outputFormat {
			case "dot":
				graphFormat = graph.FormatDOT
			case "mermaid":
				graphFormat = graph.FormatMermaid
			default:
				return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", outputFormat)
			}

			log, err := newLogger(cmd)
			if err != nil {
				return err
			}
			provider, err := tf.load(log)
			if err != nil {
				return err
			}
			api := provider.Api()
			if len(api.Routes()) == 0 {
				return fmt.Errorf("no routes found in %s", tf.template)
			}

			gen := &graph.Generator{
				Format:             graphFormat,
				IncludeAuthorizers: includeAuthorizers,
				ClusterByStack:     clusterByStack,
			}
			return gen.Generate(api, cmd.OutOrStdout())
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVarP(&includeAuthorizers, "include-authorizers", "a", false, "Include authorizer nodes in the graph")
	cmd.Flags().BoolVarP(&clusterByStack, "cluster", "c", false, "Cluster functions by nested stack")

	return cmd
}
