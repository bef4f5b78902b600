// Command wetwire-local serves API Gateway routes declared in a CloudFormation
// or SAM template on the local machine, invoking Lambda functions through a
// local endpoint.
//
// Usage:
//
//	wetwire-local start-api -t template.yaml    Serve the API on 127.0.0.1:3000
//	wetwire-local routes -t template.yaml       Print the routing table
//	wetwire-local graph -t template.yaml        Print a route diagram
//	wetwire-local validate -t template.yaml     Lint the template and build routes
//	wetwire-local diff old.yaml new.yaml        Compare two routing tables
//	wetwire-local version                       Show version
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lex00/wetwire-aws-local/internal/apiprovider"
	"github.com/lex00/wetwire-aws-local/internal/config"
	"github.com/lex00/wetwire-aws-local/internal/logging"
	"github.com/lex00/wetwire-aws-local/internal/stack"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wetwire-local",
		Short: "Run API Gateway and Lambda locally",
		Long: `wetwire-local emulates API Gateway in front of Lambda functions.

Routes are read from a CloudFormation or SAM template (REST APIs, HTTP APIs,
Swagger/OpenAPI bodies and function events). Each request is turned into the
event API Gateway would send, the function is invoked, and its proxy response
is returned:

    wetwire-local start-api -t template.yaml --lambda-endpoint http://127.0.0.1:3001`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String(config.KeyLogLevel, "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String(config.KeyLogFormat, "text", "Log format: text or json")

	rootCmd.AddCommand(
		newStartAPICmd(),
		newRoutesCmd(),
		newGraphCmd(),
		newValidateCmd(),
		newDiffCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wetwire-local %s\n", getVersion())
		},
	}
}

// newLogger builds a logger from the persistent log flags.
func newLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	level, _ := cmd.Flags().GetString(config.KeyLogLevel)
	format, _ := cmd.Flags().GetString(config.KeyLogFormat)
	return logging.New(cmd.ErrOrStderr(), level, format)
}

// templateFlags are the template inputs shared by the read-only commands.
type templateFlags struct {
	template   string
	parameters []string
}

func (f *templateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.template, config.KeyTemplate, "t", "template.yaml", "Path to the CloudFormation or SAM template")
	cmd.Flags().StringArrayVar(&f.parameters, config.KeyParameterOverrides, nil, "Template parameter override as Name=Value (repeatable)")
}

func (f *templateFlags) load(log logrus.FieldLogger) (*apiprovider.Provider, error) {
	params, err := config.ParsePairs(f.parameters)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.KeyParameterOverrides, err)
	}
	return apiprovider.Load(f.template, stack.Options{Parameters: params, Logger: log}, apiprovider.Options{Logger: log})
}
