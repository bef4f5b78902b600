package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/config"
	"github.com/lex00/wetwire-aws-local/internal/validation"
)

var errValidationFailed = errors.New("validation failed")

// newValidateCmd creates the "validate" subcommand for checking a template can be served.
func newValidateCmd() *cobra.Command {
	var (
		tf           templateFlags
		outputFormat string
		skipLint     bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Lint a template and build its routing table",
		Long: `Validate checks that a template can be served by start-api.

Checks performed:
  - cfn-lint: CloudFormation template rules
  - Route build: API resources, function events and Swagger bodies resolve to routes

Examples:
    wetwire-local validate -t template.yaml
    wetwire-local validate -t template.yaml --format json
    wetwire-local validate -t template.yaml --skip-lint`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := config.ParsePairs(tf.parameters)
			if err != nil {
				return fmt.Errorf("%s: %w", config.KeyParameterOverrides, err)
			}
			result, err := validation.ValidateTemplate(tf.template, validation.Options{
				Parameters: params,
				SkipLint:   skipLint,
			})
			if err != nil {
				return err
			}
			return outputValidateResult(cmd.OutOrStdout(), result.Summary(), outputFormat)
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&skipLint, "skip-lint", false, "Only build the routing table")

	return cmd
}

func outputValidateResult(w io.Writer, result wetwire.ValidateResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		if result.Success {
			fmt.Fprintf(w, "Validation passed: %d routes OK\n", result.Routes)
			for _, warnMsg := range result.Warnings {
				fmt.Fprintf(w, "  WARNING: %s\n", warnMsg)
			}
			return nil
		}

		fmt.Fprintln(w, "Validation FAILED:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(w, "  ERROR: %s\n", errMsg)
		}
		for _, warnMsg := range result.Warnings {
			fmt.Fprintf(w, "  WARNING: %s\n", warnMsg)
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	if !result.Success {
		return errValidationFailed
	}
	return nil
}
