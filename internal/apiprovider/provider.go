// Package apiprovider builds the routing table of a template.
//
// Two extractors exist: one for SAM resources (functions with Api/HttpApi
// events, Serverless::Api and Serverless::HttpApi) and one for raw API
// Gateway resources (RestApi, Resource, Method, Stage and their V2
// counterparts). The provider picks one by the first resource type it
// recognises, walking stacks and resources in declaration order.
package apiprovider

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/stack"
	"github.com/lex00/wetwire-aws-local/internal/swagger"
)

// Extractor turns a stack tree into collected routes.
type Extractor interface {
	Name() string
	Extract(stacks []*stack.Stack, c *Collector) error
}

// Options configures a Provider.
type Options struct {
	Logger logrus.FieldLogger
	// StageName overrides the stage name found in the template.
	StageName string
}

// Provider owns the Api built from a stack tree.
type Provider struct {
	api       *wetwire.Api
	extractor string
}

// NewProvider selects an extractor, runs it and freezes the result.
func NewProvider(stacks []*stack.Stack, opts Options) (*Provider, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	extractor := SelectExtractor(stacks, log)
	c := NewCollector(log)
	if err := extractor.Extract(stacks, c); err != nil {
		return nil, fmt.Errorf("extracting routes: %w", err)
	}
	api := c.Api()
	if opts.StageName != "" {
		api = wetwire.NewApi(api.Routes(), api.Cors(), api.BinaryMediaTypes(), opts.StageName, api.StageVariables())
	}

	log.WithFields(logrus.Fields{
		"extractor": extractor.Name(),
		"routes":    len(api.Routes()),
	}).Debug("routing table built")
	return &Provider{api: api, extractor: extractor.Name()}, nil
}

// Load reads the template at path, follows its nested stacks and builds the routing table.
func Load(path string, stackOpts stack.Options, opts Options) (*Provider, error) {
	if stackOpts.Logger == nil {
		stackOpts.Logger = opts.Logger
	}
	stacks, err := stack.Load(path, stackOpts)
	if err != nil {
		return nil, err
	}
	return NewProvider(stacks, opts)
}

// Api returns the routing table.
func (p *Provider) Api() *wetwire.Api {
	return p.api
}

// Extractor names the extractor that produced the table.
func (p *Provider) Extractor() string {
	return p.extractor
}

// SelectExtractor returns the extractor for the first recognised resource
// type. Templates without API resources use the SAM extractor.
func SelectExtractor(stacks []*stack.Stack, log logrus.FieldLogger) Extractor {
	for _, st := range stacks {
		for _, res := range st.OrderedResources() {
			if samTypes[res.Type] {
				return &SAMExtractor{log: log}
			}
			if cfnTypes[res.Type] {
				return &CFNExtractor{log: log}
			}
		}
	}
	return &SAMExtractor{log: log}
}

func newReader(st *stack.Stack, log logrus.FieldLogger) *swagger.Reader {
	dir := ""
	if st.Location != "" {
		dir = filepath.Dir(st.Location)
	}
	return &swagger.Reader{BaseDir: dir, Logger: log}
}

// apiRef resolves an API reference property (RestApiId, ApiId) to a logical id.
func apiRef(owner, property string, v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	if target, ok := stack.RefTarget(v); ok {
		return target, nil
	}
	return "", templateErrorf(owner, "%s must be a valid reference to an API resource in the same template", property)
}

func stringMap(v any) map[string]string {
	m, ok := stack.Map(v)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		if s, ok := stack.Scalar(item); ok {
			out[k] = s
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAuthorizers(m map[string]*wetwire.Authorizer) []*wetwire.Authorizer {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*wetwire.Authorizer, 0, len(m))
	for _, name := range names {
		out = append(out, m[name])
	}
	return out
}
