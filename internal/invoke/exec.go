package invoke

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// ExecRunner runs a local command per function. The command receives the
// event on stdin and writes log lines followed by the response to stdout.
type ExecRunner struct {
	commands map[string][]string
	dir      string
	region   string
	log      logrus.FieldLogger
}

// ExecOptions configure an ExecRunner.
type ExecOptions struct {
	// Commands maps function names to command lines, e.g. "go run ./functions/hello".
	Commands map[string]string
	// Dir is the working directory of every command.
	Dir    string
	Region string
	Logger logrus.FieldLogger
}

// NewExecRunner returns a runner for the function → command map.
func NewExecRunner(opts ExecOptions) *ExecRunner {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	commands := make(map[string][]string, len(opts.Commands))
	for name, line := range opts.Commands {
		if args := strings.Fields(line); len(args) > 0 {
			commands[name] = args
		}
	}
	return &ExecRunner{commands: commands, dir: opts.Dir, region: region, log: log}
}

func (r *ExecRunner) Invoke(ctx context.Context, functionName string, event []byte, stdout, stderr io.Writer) error {
	args, ok := r.commands[functionName]
	if !ok {
		return fmt.Errorf("%s: %w", functionName, ErrFunctionNotFound)
	}

	bin := args[0]
	if bin == "go" {
		bin = findGoBinary()
	}
	cmd := exec.CommandContext(ctx, bin, args[1:]...)
	cmd.Dir = r.dir
	cmd.Stdin = bytes.NewReader(event)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(),
		"AWS_LAMBDA_FUNCTION_NAME="+functionName,
		"AWS_REGION="+r.region,
		"AWS_DEFAULT_REGION="+r.region,
	)

	r.log.WithFields(logrus.Fields{"function": functionName, "command": strings.Join(args, " ")}).Debug("running function command")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", functionName, err)
	}
	return nil
}

// findGoBinary locates the Go executable, checking PATH first and then
// common installation locations.
func findGoBinary() string {
	if path, err := exec.LookPath("go"); err == nil {
		return path
	}
	for _, p := range []string{
		"/usr/local/go/bin/go",
		"/opt/homebrew/bin/go",
		"/usr/bin/go",
		"/usr/local/bin/go",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "go"
}
