package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	wetwire "github.com/lex00/wetwire-aws-local"
)

func newRoutesCmd() *cobra.Command {
	var (
		tf           templateFlags
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the routing table built from a template",
		Long: `Routes builds the routing table start-api would serve and prints one line
per method and path.

Examples:
    wetwire-local routes -t template.yaml
    wetwire-local routes -t template.yaml --format json
    wetwire-local routes -t template.yaml --parameter-overrides Stage=dev`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cmd)
			if err != nil {
				return err
			}
			provider, err := tf.load(log)
			if err != nil {
				return err
			}
			return outputRoutes(cmd.OutOrStdout(), routesResult(provider.Api()), outputFormat)
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text, json or yaml")

	return cmd
}

func routesResult(api *wetwire.Api) wetwire.RoutesResult {
	return wetwire.RoutesResult{
		Routes:           api.Entries(),
		StageName:        api.StageName(),
		BinaryMediaTypes: api.BinaryMediaTypes(),
		Cors:             api.Cors(),
	}
}

func outputRoutes(w io.Writer, result wetwire.RoutesResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "yaml":
		data, err := yaml.Marshal(result)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(data))

	case "text":
		if len(result.Routes) == 0 {
			fmt.Fprintln(w, "No routes found.")
			return nil
		}

		fmt.Fprintf(w, "Routes (%d):\n\n", len(result.Routes))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, r := range result.Routes {
			extra := []string{r.EventType}
			if r.PayloadFormatVersion != "" {
				extra = append(extra, "payload "+r.PayloadFormatVersion)
			}
			if r.Authorizer != "" {
				extra = append(extra, "auth "+r.Authorizer)
			}
			if r.StackPath != "" {
				extra = append(extra, "stack "+r.StackPath)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", r.Method, r.Path, r.Function, strings.Join(extra, ", "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	return nil
}
