// Package validation checks that a template can be served.
//
// Two checks run:
//   - cfn-lint-go: Validate the CloudFormation template (library dependency)
//   - route build: Extract the routing table exactly as start-api would
package validation

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/lex00/cfn-lint-go/pkg/lint"
	"github.com/sirupsen/logrus"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/apiprovider"
	"github.com/lex00/wetwire-aws-local/internal/stack"
)

// CfnLintResult contains the result of running cfn-lint.
type CfnLintResult struct {
	Passed        bool     `json:"passed"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Informational []string `json:"informational"`
}

// TotalIssues returns the total number of issues found.
func (r CfnLintResult) TotalIssues() int {
	return len(r.Errors) + len(r.Warnings) + len(r.Informational)
}

// RouteResult contains the result of building the routing table.
type RouteResult struct {
	Success   bool         `json:"success"`
	Routes    int          `json:"routes"`
	Extractor string       `json:"extractor,omitempty"`
	Error     string       `json:"error,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
	Api       *wetwire.Api `json:"-"`
}

// ValidationResult contains all validation results for a template.
type ValidationResult struct {
	CfnLintResult *CfnLintResult `json:"cfn_lint_result,omitempty"`
	RouteResult   *RouteResult   `json:"route_result"`
}

// Options configures validation.
type Options struct {
	// Parameters override template parameter defaults.
	Parameters map[string]string
	// SkipLint skips cfn-lint, e.g. for templates using unsupported transforms.
	SkipLint bool
}

// RunCfnLint runs cfn-lint-go on the given template file.
func RunCfnLint(templatePath string) (*CfnLintResult, error) {
	if _, err := os.Stat(templatePath); err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Template file not found: %s", templatePath)},
		}, nil
	}

	linter := lint.New(lint.Options{})
	matches, err := linter.LintFile(templatePath)
	if err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Linter error: %v", err)},
		}, nil
	}

	result := &CfnLintResult{
		Errors:        []string{},
		Warnings:      []string{},
		Informational: []string{},
	}
	for _, match := range matches {
		formatted := formatMatch(match)

		switch match.Level {
		case "Error":
			result.Errors = append(result.Errors, formatted)
		case "Warning":
			result.Warnings = append(result.Warnings, formatted)
		default:
			result.Informational = append(result.Informational, formatted)
		}
	}

	// Passed if no errors (warnings are acceptable)
	result.Passed = len(result.Errors) == 0
	return result, nil
}

// formatMatch formats a cfn-lint-go match for display.
func formatMatch(match lint.Match) string {
	pathStr := ""
	if len(match.Location.Path) > 0 {
		parts := make([]string, len(match.Location.Path))
		for i, p := range match.Location.Path {
			parts[i] = fmt.Sprintf("%v", p)
		}
		pathStr = strings.Join(parts, "/")
	}

	if pathStr != "" {
		return fmt.Sprintf("%s: %s (at %s)", match.Rule.ID, match.Message, pathStr)
	}
	return fmt.Sprintf("%s: %s", match.Rule.ID, match.Message)
}

// RunRouteBuild extracts the routing table. Template errors are reported in
// the result; warnings logged during extraction are collected as well.
func RunRouteBuild(templatePath string, opts Options) *RouteResult {
	hook := &warningHook{}
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.AddHook(hook)

	provider, err := apiprovider.Load(templatePath,
		stack.Options{Parameters: opts.Parameters, Logger: log},
		apiprovider.Options{Logger: log})
	if err != nil {
		return &RouteResult{Success: false, Error: err.Error(), Warnings: hook.messages()}
	}

	api := provider.Api()
	return &RouteResult{
		Success:   true,
		Routes:    len(api.Entries()),
		Extractor: provider.Extractor(),
		Warnings:  hook.messages(),
		Api:       api,
	}
}

// ValidateTemplate runs the full validation pipeline on a template.
func ValidateTemplate(templatePath string, opts Options) (*ValidationResult, error) {
	result := &ValidationResult{}

	if !opts.SkipLint {
		cfnResult, err := RunCfnLint(templatePath)
		if err != nil {
			return nil, fmt.Errorf("running cfn-lint: %w", err)
		}
		result.CfnLintResult = cfnResult
	}

	// Build routes even if lint fails, to get as much feedback as possible
	result.RouteResult = RunRouteBuild(templatePath, opts)
	return result, nil
}

// Summary flattens the result into the validate command output.
func (r *ValidationResult) Summary() wetwire.ValidateResult {
	out := wetwire.ValidateResult{Success: true}
	if r.CfnLintResult != nil {
		out.Errors = append(out.Errors, r.CfnLintResult.Errors...)
		out.Warnings = append(out.Warnings, r.CfnLintResult.Warnings...)
		out.Success = r.CfnLintResult.Passed
	}
	if rr := r.RouteResult; rr != nil {
		out.Routes = rr.Routes
		out.Warnings = append(out.Warnings, rr.Warnings...)
		if !rr.Success {
			out.Success = false
			out.Errors = append(out.Errors, rr.Error)
		}
	}
	return out
}

// warningHook records every warning logged during extraction.
type warningHook struct {
	mu       sync.Mutex
	warnings []string
}

func (h *warningHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.WarnLevel}
}

func (h *warningHook) Fire(entry *logrus.Entry) error {
	msg := entry.Message
	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k, v := range entry.Data {
			keys = append(keys, fmt.Sprintf("%s=%v", k, v))
		}
		sort.Strings(keys)
		msg += " (" + strings.Join(keys, ", ") + ")"
	}
	h.mu.Lock()
	h.warnings = append(h.warnings, msg)
	h.mu.Unlock()
	return nil
}

func (h *warningHook) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.warnings...)
}
