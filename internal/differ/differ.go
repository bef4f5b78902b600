// Package differ compares two routing tables method by method.
package differ

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/apiprovider"
	"github.com/lex00/wetwire-aws-local/internal/stack"
)

// apiEntry is the pseudo route under which API level changes are reported.
const apiEntry = "(api)"

// Options configures the differ.
type Options struct {
	// IgnoreStackPath compares routes without the nested stack they came from.
	IgnoreStackPath bool
	// Parameters override template parameter defaults when loading files.
	Parameters map[string]string
	Logger     logrus.FieldLogger
}

// Result contains the difference between two routing tables.
type Result struct {
	Diff    wetwire.RouteDiff
	Summary wetwire.DiffSummary
}

// Empty reports whether the tables are equivalent.
func (r *Result) Empty() bool {
	return r.Summary.Total == 0
}

// Compare compares two routing tables and returns differences.
func Compare(before, after *wetwire.Api, opts Options) *Result {
	result := &Result{}

	entries1 := index(before)
	entries2 := index(after)

	for key, e := range entries2 {
		if _, exists := entries1[key]; !exists {
			result.Diff.Added = append(result.Diff.Added, wetwire.DiffEntry{Route: key, Changes: []string{"→ " + e.Function}})
		}
	}
	for key, e := range entries1 {
		if _, exists := entries2[key]; !exists {
			result.Diff.Removed = append(result.Diff.Removed, wetwire.DiffEntry{Route: key, Changes: []string{e.Function + " →"}})
		}
	}
	for key, e1 := range entries1 {
		if e2, exists := entries2[key]; exists {
			if changes := compareEntries(e1, e2, opts); len(changes) > 0 {
				result.Diff.Modified = append(result.Diff.Modified, wetwire.DiffEntry{Route: key, Changes: changes})
			}
		}
	}
	if changes := compareApi(before, after); len(changes) > 0 {
		result.Diff.Modified = append(result.Diff.Modified, wetwire.DiffEntry{Route: apiEntry, Changes: changes})
	}

	sortEntries(result.Diff.Added)
	sortEntries(result.Diff.Removed)
	sortEntries(result.Diff.Modified)

	result.Summary = wetwire.DiffSummary{
		Added:    len(result.Diff.Added),
		Removed:  len(result.Diff.Removed),
		Modified: len(result.Diff.Modified),
	}
	result.Summary.Total = result.Summary.Added + result.Summary.Removed + result.Summary.Modified
	return result
}

// CompareFiles builds the routing tables of two templates and compares them.
func CompareFiles(file1, file2 string, opts Options) (*Result, error) {
	api1, err := load(file1, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file1, err)
	}
	api2, err := load(file2, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file2, err)
	}
	return Compare(api1, api2, opts), nil
}

func load(path string, opts Options) (*wetwire.Api, error) {
	p, err := apiprovider.Load(path, stack.Options{Parameters: opts.Parameters, Logger: opts.Logger}, apiprovider.Options{Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	return p.Api(), nil
}

// index keys every method binding as "METHOD /path".
func index(api *wetwire.Api) map[string]wetwire.RouteEntry {
	out := make(map[string]wetwire.RouteEntry)
	if api == nil {
		return out
	}
	for _, e := range api.Entries() {
		out[e.Method+" "+e.Path] = e
	}
	return out
}

func compareEntries(e1, e2 wetwire.RouteEntry, opts Options) []string {
	var changes []string
	changed := func(field, a, b string) {
		if a != b {
			changes = append(changes, fmt.Sprintf("%s changed: %s → %s", field, orNone(a), orNone(b)))
		}
	}
	changed("function", e1.Function, e2.Function)
	changed("eventType", e1.EventType, e2.EventType)
	changed("payloadFormatVersion", e1.PayloadFormatVersion, e2.PayloadFormatVersion)
	changed("authorizer", e1.Authorizer, e2.Authorizer)
	if !opts.IgnoreStackPath {
		changed("stackPath", e1.StackPath, e2.StackPath)
	}
	return changes
}

func compareApi(before, after *wetwire.Api) []string {
	if before == nil || after == nil {
		return nil
	}
	var changes []string
	if before.StageName() != after.StageName() {
		changes = append(changes, fmt.Sprintf("stageName changed: %s → %s", orNone(before.StageName()), orNone(after.StageName())))
	}
	if b1, b2 := strings.Join(before.BinaryMediaTypes(), ","), strings.Join(after.BinaryMediaTypes(), ","); b1 != b2 {
		changes = append(changes, fmt.Sprintf("binaryMediaTypes changed: %s → %s", orNone(b1), orNone(b2)))
	}
	if !equalCors(before.Cors(), after.Cors()) {
		changes = append(changes, "cors changed")
	}
	if !equalStringMaps(before.StageVariables(), after.StageVariables()) {
		changes = append(changes, "stageVariables changed")
	}
	return changes
}

func equalCors(a, b *wetwire.Cors) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return equalStringMaps(a.Headers(), b.Headers())
}

func equalStringMaps(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || v != w {
			return false
		}
	}
	return true
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// sortEntries sorts diff entries by route.
func sortEntries(entries []wetwire.DiffEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Route < entries[j].Route
	})
}
