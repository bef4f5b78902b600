package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/apiprovider"
	"github.com/lex00/wetwire-aws-local/internal/config"
	"github.com/lex00/wetwire-aws-local/internal/gateway"
	"github.com/lex00/wetwire-aws-local/internal/invoke"
	"github.com/lex00/wetwire-aws-local/internal/logging"
	"github.com/lex00/wetwire-aws-local/internal/stack"
)

// newStartAPICmd creates the "start-api" subcommand that serves the template's routes.
func newStartAPICmd() *cobra.Command {
	var (
		configFile string
		debounce   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start-api",
		Short: "Serve the template's API routes locally",
		Long: `Start-api builds the routing table from a template and serves it over HTTP.

Functions are invoked through one of three runners:
  - sdk:  the Lambda Invoke API of a local endpoint (default http://127.0.0.1:3001)
  - rie:  one Runtime Interface Emulator URL per function
  - exec: one local command per function, receiving the event on stdin

Every flag can also be set in a YAML config file (--config) or through
WETWIRE_LOCAL_* environment variables, e.g. WETWIRE_LOCAL_PORT=8080.

Examples:
    wetwire-local start-api -t template.yaml
    wetwire-local start-api -t template.yaml --runner rie --rie-endpoints HelloFunction=http://127.0.0.1:9000
    wetwire-local start-api --runner exec --exec-commands "HelloFunction=go run ./functions/hello"
    wetwire-local start-api --watch --debug-port 5858`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := config.New()
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			log, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runStartAPI(ctx, cfg, debounce, log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "YAML config file")
	f.StringP(config.KeyTemplate, "t", "template.yaml", "Path to the CloudFormation or SAM template")
	f.String(config.KeyHost, "127.0.0.1", "Address to listen on")
	f.IntP(config.KeyPort, "p", 3000, "Port to listen on")
	f.String(config.KeyRunner, config.RunnerSDK, "Function runner: sdk, rie or exec")
	f.String(config.KeyLambdaEndpoint, "http://127.0.0.1:3001", "Lambda endpoint for the sdk runner")
	f.String(config.KeyRegion, "us-east-1", "AWS region reported to functions")
	f.StringArray(config.KeyRIEEndpoints, nil, "Function=URL for the rie runner (repeatable)")
	f.StringArray(config.KeyExecCommands, nil, "Function=command for the exec runner (repeatable)")
	f.String(config.KeyExecDir, "", "Working directory of exec runner commands")
	f.IntP(config.KeyDebugPort, "d", 0, "Debugger port; serves one request at a time when set")
	f.StringArray(config.KeyParameterOverrides, nil, "Template parameter override as Name=Value (repeatable)")
	f.Bool(config.KeyWatch, false, "Reload routes when the template changes")
	f.String(config.KeyStageName, "", "Override the stage name found in the template")
	f.Float64(config.KeyThrottleRate, 0, "Requests per second across all routes before answering 429 (0 disables)")
	f.Int(config.KeyThrottleBurst, 0, "Throttling burst size (defaults to the rate)")
	f.String(config.KeyEnvFile, "", "Dotenv file loaded into the environment before configuration")
	f.DurationVar(&debounce, "debounce", 500*time.Millisecond, "Debounce duration for template changes")

	return cmd
}

// runStartAPI serves until ctx is cancelled.
func runStartAPI(ctx context.Context, cfg *config.Config, debounce time.Duration, log *logrus.Logger) error {
	srv, err := newServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	srv.logMounts()

	if cfg.Watch {
		dir := filepath.Dir(cfg.Template)
		go func() {
			if err := watchTemplates(ctx, dir, debounce, srv.reload, log); err != nil {
				log.WithError(err).Error("template watch stopped")
			}
		}()
	}

	return srv.svc.ListenAndServe(ctx, cfg.Addr())
}

// server ties the gateway to the template it was built from.
type server struct {
	cfg *config.Config
	svc *gateway.Service
	log logrus.FieldLogger
}

func newServer(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*server, error) {
	api, err := loadApi(cfg, log)
	if err != nil {
		return nil, err
	}
	runner, err := newRunner(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	svc := gateway.NewService(api, invoke.NewSerialized(runner), gateway.Options{
		Logger:         log,
		LogSink:        os.Stderr,
		SingleThreaded: cfg.SingleThreaded(),
		Port:           cfg.Port,
		ThrottleRate:   cfg.ThrottleRate,
		ThrottleBurst:  cfg.ThrottleBurst,
	})
	if cfg.SingleThreaded() {
		log.WithField("debug_port", cfg.DebugPort).Info("debugging enabled, requests are served one at a time")
	}
	return &server{cfg: cfg, svc: svc, log: log}, nil
}

func loadApi(cfg *config.Config, log logrus.FieldLogger) (*wetwire.Api, error) {
	provider, err := apiprovider.Load(cfg.Template,
		stack.Options{Parameters: cfg.ParameterOverrides, Region: cfg.Region, Logger: log},
		apiprovider.Options{Logger: log, StageName: cfg.StageName})
	if err != nil {
		return nil, fmt.Errorf("building routes from %s: %w", cfg.Template, err)
	}
	return provider.Api(), nil
}

func newRunner(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (invoke.Runner, error) {
	switch cfg.Runner {
	case config.RunnerRIE:
		return invoke.NewRIERunner(cfg.RIEEndpoints, log), nil
	case config.RunnerExec:
		return invoke.NewExecRunner(invoke.ExecOptions{
			Commands: cfg.ExecCommands,
			Dir:      cfg.ExecDir,
			Region:   cfg.Region,
			Logger:   log,
		}), nil
	case config.RunnerSDK:
		runner, err := invoke.NewSDKRunner(ctx, invoke.SDKOptions{
			Endpoint: cfg.LambdaEndpoint,
			Region:   cfg.Region,
			Logger:   log,
		})
		if err != nil {
			return nil, err
		}
		return runner, nil
	}
	return nil, fmt.Errorf("unknown runner %q", cfg.Runner)
}

// reload rebuilds the routing table. On failure the current table keeps serving.
func (s *server) reload() {
	api, err := loadApi(s.cfg, s.log)
	if err != nil {
		s.log.WithError(err).Error("template reload failed, keeping the current routes")
		return
	}
	s.svc.Reload(api)
}

func (s *server) logMounts() {
	api := s.svc.Api()
	base := "http://" + s.cfg.Addr()
	routes := api.Routes()
	if len(routes) == 0 {
		s.log.Warn("no routes found in the template")
	}
	for _, r := range routes {
		s.log.Infof("Mounting %s at %s%s [%s]", r.FunctionName, base, r.Path, strings.Join(r.Methods, ", "))
	}
}
