// Package stack loads CloudFormation and SAM templates into resource graphs.
//
// Templates are parsed with cloudformation-schema-go. Property values are
// resolved against parameters, pseudo parameters, mappings and conditions;
// intrinsics that cannot be resolved locally are kept in their map form
// (for example {"Fn::GetAtt": ["Fn", "Arn"]}).
//
// Nested stacks (AWS::CloudFormation::Stack and AWS::Serverless::Application
// with local template locations) are loaded as well. Each stack records its
// path from the root: "" for the root stack, "A" for a child named A, "A/B"
// for a grandchild.
package stack

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lex00/cloudformation-schema-go/template"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Resource types that introduce a nested stack.
const (
	TypeCloudFormationStack = "AWS::CloudFormation::Stack"
	TypeServerlessApp       = "AWS::Serverless::Application"
)

// maxDepth bounds nested stack recursion.
const maxDepth = 10

// Resource is a single template resource with resolved properties.
type Resource struct {
	LogicalID  string
	Type       string
	Properties map[string]any
	Metadata   map[string]any
}

// Stack is one template of a (possibly nested) stack tree.
type Stack struct {
	// Path is "" for the root stack and "A", "A/B" for nested stacks.
	Path string
	// Name is the logical id of the resource that created the stack.
	Name       string
	Location   string
	Parameters map[string]string
	Resources  map[string]Resource
	// Order lists logical ids in template declaration order.
	Order []string
}

// IsRoot reports whether s is the root stack.
func (s *Stack) IsRoot() bool {
	return s.Path == ""
}

// FullID prefixes a logical id with the stack path ("A/B/Fn").
func (s *Stack) FullID(logicalID string) string {
	if s.Path == "" {
		return logicalID
	}
	return s.Path + "/" + logicalID
}

// Depth is the nesting depth: 0 for the root stack.
func (s *Stack) Depth() int {
	return Depth(s.Path)
}

// Depth returns the nesting depth encoded in a stack path.
func Depth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, "/") + 1
}

// OrderedResources returns resources in declaration order.
func (s *Stack) OrderedResources() []Resource {
	out := make([]Resource, 0, len(s.Resources))
	for _, id := range s.Order {
		if r, ok := s.Resources[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Options configures template loading.
type Options struct {
	// Parameters override template parameter defaults of the root stack.
	Parameters map[string]string
	Region     string
	AccountID  string
	Logger     logrus.FieldLogger
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		return l
	}
	return o.Logger
}

// Load parses the template at path and every local nested stack below it.
// The root stack is always first in the result.
func Load(path string, opts Options) ([]*Stack, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	return LoadContent(content, path, opts)
}

// LoadContent parses template content. name is used for error messages and
// as the base for relative nested stack locations.
func LoadContent(content []byte, name string, opts Options) ([]*Stack, error) {
	l := &loader{opts: opts, log: opts.logger()}
	if err := l.load(content, name, "", "", opts.Parameters, 0); err != nil {
		return nil, err
	}
	return l.stacks, nil
}

type loader struct {
	opts   Options
	log    logrus.FieldLogger
	stacks []*Stack
}

func (l *loader) load(content []byte, location, path, name string, overrides map[string]string, depth int) error {
	tmpl, err := template.ParseTemplateContent(content, location)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", location, err)
	}

	st := &Stack{
		Path:       path,
		Name:       name,
		Location:   location,
		Parameters: make(map[string]string),
		Resources:  make(map[string]Resource, len(tmpl.Resources)),
	}

	r := newResolver(tmpl, overrides, pseudoParameters(l.opts, name))
	for id, p := range r.params {
		st.Parameters[id] = p
	}

	for id, res := range tmpl.Resources {
		props := make(map[string]any, len(res.Properties))
		for key, prop := range res.Properties {
			v := r.resolve(prop.Value)
			if v == noValue {
				continue
			}
			props[key] = v
		}
		st.Resources[id] = Resource{
			LogicalID:  id,
			Type:       res.ResourceType,
			Properties: props,
			Metadata:   res.Metadata,
		}
	}
	st.Order = resourceOrder(content, st.Resources)
	l.stacks = append(l.stacks, st)

	for _, res := range st.OrderedResources() {
		childLocation, childParams, ok := nestedLocation(res)
		if !ok {
			continue
		}
		childPath := res.LogicalID
		if path != "" {
			childPath = path + "/" + res.LogicalID
		}
		if depth+1 > maxDepth {
			return fmt.Errorf("nested stack %s exceeds maximum depth %d", childPath, maxDepth)
		}
		if strings.Contains(childLocation, "://") {
			l.log.WithField("stack", childPath).Debugf("skipping remote nested stack %s", childLocation)
			continue
		}
		if !filepath.IsAbs(childLocation) {
			childLocation = filepath.Join(filepath.Dir(location), childLocation)
		}
		childContent, err := os.ReadFile(childLocation)
		if err != nil {
			l.log.WithField("stack", childPath).Warnf("nested stack template not readable: %v", err)
			continue
		}
		if err := l.load(childContent, childLocation, childPath, res.LogicalID, childParams, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// nestedLocation returns the local template location of a nested stack resource.
func nestedLocation(res Resource) (string, map[string]string, bool) {
	var location any
	switch res.Type {
	case TypeCloudFormationStack:
		location = res.Properties["TemplateURL"]
	case TypeServerlessApp:
		location = res.Properties["Location"]
	default:
		return "", nil, false
	}
	s, ok := location.(string)
	if !ok || s == "" {
		// Serverless Application Repository references are maps.
		return "", nil, false
	}
	params := make(map[string]string)
	if m, ok := res.Properties["Parameters"].(map[string]any); ok {
		for k, v := range m {
			if str, ok := Scalar(v); ok {
				params[k] = str
			}
		}
	}
	return s, params, true
}

// resourceOrder reads the declaration order of the Resources section. Ids
// that cannot be located (for example when the content is not valid YAML)
// follow in lexical order.
func resourceOrder(content []byte, resources map[string]Resource) []string {
	var order []string
	seen := make(map[string]bool)

	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err == nil && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind == yaml.MappingNode {
			for i := 0; i+1 < len(root.Content); i += 2 {
				if root.Content[i].Value != "Resources" {
					continue
				}
				section := root.Content[i+1]
				if section.Kind != yaml.MappingNode {
					break
				}
				for j := 0; j+1 < len(section.Content); j += 2 {
					id := section.Content[j].Value
					if _, ok := resources[id]; ok && !seen[id] {
						seen[id] = true
						order = append(order, id)
					}
				}
			}
		}
	}

	var rest []string
	for id := range resources {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// Scalar renders a resolved scalar value as a string.
func Scalar(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	case int:
		return fmt.Sprintf("%d", val), true
	case int64:
		return fmt.Sprintf("%d", val), true
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val)), true
		}
		return fmt.Sprintf("%g", val), true
	}
	return "", false
}
