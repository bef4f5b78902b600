package apiprovider

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/stack"
)

func newStack(path string, resources ...stack.Resource) *stack.Stack {
	st := &stack.Stack{Path: path, Resources: make(map[string]stack.Resource)}
	for _, r := range resources {
		st.Resources[r.LogicalID] = r
		st.Order = append(st.Order, r.LogicalID)
	}
	return st
}

func resource(id, typ string, props map[string]any) stack.Resource {
	return stack.Resource{LogicalID: id, Type: typ, Properties: props}
}

func function(id string, events map[string]any) stack.Resource {
	return resource(id, TypeServerlessFunction, map[string]any{
		"Handler": "index.handler",
		"Events":  events,
	})
}

func apiEvent(path, method string, extra map[string]any) map[string]any {
	props := map[string]any{"Path": path, "Method": method}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{"Type": "Api", "Properties": props}
}

func proxyIntegration(fn string) map[string]any {
	return map[string]any{
		"type": "aws_proxy",
		"uri":  "arn:aws:apigateway:us-east-1:lambda:path/2015-03-31/functions/${" + fn + ".Arn}/invocations",
	}
}

func buildApi(t *testing.T, stacks ...*stack.Stack) *wetwire.Api {
	t.Helper()
	log, _ := test.NewNullLogger()
	p, err := NewProvider(stacks, Options{Logger: log})
	require.NoError(t, err)
	return p.Api()
}

// functionsAt returns the functions serving path and method.
func functionsAt(api *wetwire.Api, path, method string) []string {
	var out []string
	for _, r := range api.Routes() {
		if r.Path == path && r.HasMethod(method) {
			out = append(out, r.FunctionName)
		}
	}
	return out
}

func stacksOf(st ...*stack.Stack) []*stack.Stack {
	return st
}
