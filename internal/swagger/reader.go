package swagger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/lex00/wetwire-aws-local/internal/stack"
)

// Reader resolves the Swagger/OpenAPI document of an API resource from an
// inline body, an AWS::Include transform, or a local document location.
type Reader struct {
	// BaseDir resolves relative document locations.
	BaseDir string
	Logger  logrus.FieldLogger
}

// Read returns the document, or nil when neither source yields one.
func (r *Reader) Read(body, location any) (map[string]any, error) {
	if body != nil {
		if include, ok := includeLocation(body); ok {
			return r.readFile(include)
		}
		if doc, ok := stack.Map(body); ok {
			return stack.Normalize(doc).(map[string]any), nil
		}
	}

	switch loc := location.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.Contains(loc, "://") {
			r.logger().Debugf("remote API definition %s is not read", loc)
			return nil, nil
		}
		return r.readFile(loc)
	default:
		// S3 {Bucket, Key} locations need AWS access.
		r.logger().Debug("API definition stored in S3 is not read")
		return nil, nil
	}
}

func (r *Reader) readFile(path string) (map[string]any, error) {
	if !filepath.IsAbs(path) && r.BaseDir != "" {
		path = filepath.Join(r.BaseDir, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading API definition: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parsing API definition %s: %w", path, err)
	}
	if doc == nil {
		return nil, nil
	}
	return stack.Normalize(doc).(map[string]any), nil
}

func (r *Reader) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

// includeLocation recognises {"Fn::Transform": {"Name": "AWS::Include", "Parameters": {"Location": ...}}}.
func includeLocation(body any) (string, bool) {
	transform, ok := stack.Lookup(body, "Fn::Transform")
	if !ok {
		return "", false
	}
	if stack.LookupString(transform, "Name") != "AWS::Include" {
		return "", false
	}
	location := stack.LookupString(transform, "Parameters", "Location")
	if location == "" || strings.Contains(location, "://") {
		return "", false
	}
	return location, true
}
