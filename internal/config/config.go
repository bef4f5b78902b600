// Package config loads start-api settings from flags, WETWIRE_LOCAL_*
// environment variables and an optional YAML config file.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read.
const EnvPrefix = "WETWIRE_LOCAL"

// Keys.
const (
	KeyTemplate           = "template"
	KeyHost               = "host"
	KeyPort               = "port"
	KeyRunner             = "runner"
	KeyLambdaEndpoint     = "lambda-endpoint"
	KeyRegion             = "region"
	KeyRIEEndpoints       = "rie-endpoints"
	KeyExecCommands       = "exec-commands"
	KeyExecDir            = "exec-dir"
	KeyDebugPort          = "debug-port"
	KeyParameterOverrides = "parameter-overrides"
	KeyLogLevel           = "log-level"
	KeyLogFormat          = "log-format"
	KeyWatch              = "watch"
	KeyStageName          = "stage-name"
	KeyThrottleRate       = "throttle-rate"
	KeyThrottleBurst      = "throttle-burst"
	KeyEnvFile            = "env-file"
)

// Runner names.
const (
	RunnerSDK  = "sdk"
	RunnerRIE  = "rie"
	RunnerExec = "exec"
)

// Config is the resolved start-api configuration.
type Config struct {
	Template       string
	Host           string
	Port           int
	Runner         string
	LambdaEndpoint string
	Region         string
	// RIEEndpoints maps function logical ids to Runtime Interface Emulator URLs.
	RIEEndpoints map[string]string
	// ExecCommands maps function logical ids to shell commands.
	ExecCommands map[string]string
	ExecDir      string
	// DebugPort enables single-threaded mode when non-zero.
	DebugPort          int
	ParameterOverrides map[string]string
	LogLevel           string
	LogFormat          string
	Watch              bool
	StageName          string
	// ThrottleRate limits requests per second across all routes. Zero disables it.
	ThrottleRate  float64
	ThrottleBurst int
	EnvFile       string
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyTemplate, "template.yaml")
	v.SetDefault(KeyHost, "127.0.0.1")
	v.SetDefault(KeyPort, 3000)
	v.SetDefault(KeyRunner, RunnerSDK)
	v.SetDefault(KeyLambdaEndpoint, "http://127.0.0.1:3001")
	v.SetDefault(KeyRegion, "us-east-1")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	return v
}

// BindFlags binds every flag in fs whose name is a config key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || !isKey(f.Name) {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})
	return err
}

func isKey(name string) bool {
	switch name {
	case KeyTemplate, KeyHost, KeyPort, KeyRunner, KeyLambdaEndpoint,
		KeyRegion, KeyRIEEndpoints, KeyExecCommands, KeyExecDir, KeyDebugPort,
		KeyParameterOverrides, KeyLogLevel, KeyLogFormat, KeyWatch, KeyStageName,
		KeyThrottleRate, KeyThrottleBurst, KeyEnvFile:
		return true
	}
	return false
}

// Load reads configFile when set and resolves the configuration. Variables
// from the env-file are added to the process environment first; variables
// already set win. Functions run by the exec runner inherit them.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	envFile := v.GetString(KeyEnvFile)
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("reading env file: %w", err)
		}
	}

	cfg := &Config{
		Template:       v.GetString(KeyTemplate),
		Host:           v.GetString(KeyHost),
		Port:           v.GetInt(KeyPort),
		Runner:         strings.ToLower(v.GetString(KeyRunner)),
		LambdaEndpoint: v.GetString(KeyLambdaEndpoint),
		Region:         v.GetString(KeyRegion),
		ExecDir:        v.GetString(KeyExecDir),
		DebugPort:      v.GetInt(KeyDebugPort),
		LogLevel:       v.GetString(KeyLogLevel),
		LogFormat:      v.GetString(KeyLogFormat),
		Watch:          v.GetBool(KeyWatch),
		StageName:      v.GetString(KeyStageName),
		ThrottleRate:   v.GetFloat64(KeyThrottleRate),
		ThrottleBurst:  v.GetInt(KeyThrottleBurst),
		EnvFile:        envFile,
	}

	var err error
	if cfg.RIEEndpoints, err = ParsePairs(v.GetStringSlice(KeyRIEEndpoints)); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyRIEEndpoints, err)
	}
	if cfg.ExecCommands, err = ParsePairs(v.GetStringSlice(KeyExecCommands)); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyExecCommands, err)
	}
	if cfg.ParameterOverrides, err = ParsePairs(v.GetStringSlice(KeyParameterOverrides)); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyParameterOverrides, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParsePairs parses Name=Value items. Map-valued settings are lists of pairs
// because viper lowercases map keys read from config files, and function
// logical ids and parameter names are case sensitive.
func ParsePairs(items []string) (map[string]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected Name=Value, got %q", item)
		}
		out[name] = value
	}
	return out, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Template == "" {
		return fmt.Errorf("%s is required", KeyTemplate)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%s %d out of range", KeyPort, c.Port)
	}
	if c.DebugPort < 0 || c.DebugPort > 65535 {
		return fmt.Errorf("%s %d out of range", KeyDebugPort, c.DebugPort)
	}
	switch c.Runner {
	case RunnerSDK:
		if c.LambdaEndpoint == "" {
			return fmt.Errorf("runner %q needs %s", c.Runner, KeyLambdaEndpoint)
		}
	case RunnerRIE:
		if len(c.RIEEndpoints) == 0 {
			return fmt.Errorf("runner %q needs at least one of %s", c.Runner, KeyRIEEndpoints)
		}
	case RunnerExec:
		if len(c.ExecCommands) == 0 {
			return fmt.Errorf("runner %q needs at least one of %s", c.Runner, KeyExecCommands)
		}
	default:
		return fmt.Errorf("unknown runner %q (want %s, %s or %s)", c.Runner, RunnerSDK, RunnerRIE, RunnerExec)
	}
	if c.ThrottleRate < 0 || c.ThrottleBurst < 0 {
		return fmt.Errorf("%s and %s must not be negative", KeyThrottleRate, KeyThrottleBurst)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown %s %q", KeyLogFormat, c.LogFormat)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SingleThreaded reports whether requests must be served one at a time.
func (c *Config) SingleThreaded() bool {
	return c.DebugPort != 0
}
