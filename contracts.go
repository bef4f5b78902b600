// Package wetwire_local runs API Gateway fronted Lambda functions on a local machine.
//
// A CloudFormation or SAM template is turned into a routing table (Api), and
// every inbound HTTP request is translated into the JSON event API Gateway
// would hand to Lambda:
//
//	stacks, _ := stack.Load("template.yaml", stack.Options{})
//	provider, _ := apiprovider.NewProvider(stacks, apiprovider.Options{})
//	svc := gateway.NewService(provider.Api(), runner, gateway.Options{})
//
// The wetwire-local CLI wires these pieces together (start-api, routes, graph).
package wetwire_local

import (
	"slices"
	"sort"
	"strconv"
	"strings"
)

// EventType selects the API Gateway generation a route belongs to.
type EventType string

const (
	// EventTypeRest is an API Gateway REST API (payload format 1.0).
	EventTypeRest EventType = "Api"
	// EventTypeHTTP is an API Gateway HTTP API (payload format 2.0 by default).
	EventTypeHTTP EventType = "HttpApi"
)

const (
	// AnyMethod is the shorthand for every HTTP verb.
	AnyMethod = "ANY"
	// AnyMethodExtension marks a catch-all route such as an HTTP API $default route.
	AnyMethodExtension = "X-AMAZON-APIGATEWAY-ANY-METHOD"
	// DefaultRoutePath is the path of an HTTP API $default route.
	DefaultRoutePath = "$default"
)

// AnyHTTPMethods is the verb set ANY expands to.
var AnyHTTPMethods = []string{"GET", "DELETE", "PUT", "POST", "HEAD", "OPTIONS", "PATCH"}

// AuthorizerType is the kind of identity check an authorizer performs.
type AuthorizerType string

const (
	AuthorizerToken   AuthorizerType = "TOKEN"
	AuthorizerRequest AuthorizerType = "REQUEST"
	AuthorizerJWT     AuthorizerType = "JWT"
)

// Authorizer describes a Lambda or JWT authorizer attached to an API.
type Authorizer struct {
	Name                 string         `json:"name"`
	Type                 AuthorizerType `json:"type"`
	FunctionName         string         `json:"functionName,omitempty"`
	PayloadFormatVersion string         `json:"payloadFormatVersion,omitempty"`
	// IdentitySources are API Gateway selection expressions, e.g.
	// "method.request.header.Authorization" or "$request.querystring.token".
	IdentitySources       []string `json:"identitySources,omitempty"`
	ValidationExpression  string   `json:"validationExpression,omitempty"`
	EnableSimpleResponses bool     `json:"enableSimpleResponses,omitempty"`
	Issuer                string   `json:"issuer,omitempty"`
	Audience              []string `json:"audience,omitempty"`
}

// IsLambda reports whether the authorizer is backed by a function.
func (a *Authorizer) IsLambda() bool {
	return a != nil && a.Type != AuthorizerJWT && a.FunctionName != ""
}

// Route binds a path and a set of methods to a backing function.
type Route struct {
	Methods              []string
	FunctionName         string
	Path                 string
	EventType            EventType
	PayloadFormatVersion string
	OperationName        string
	// StackPath is "" for the root stack, "A" or "A/B" for nested stacks.
	StackPath      string
	AuthorizerName string
	Authorizer     *Authorizer
	// AuthorizerOptOut is set when the route explicitly disables the API's
	// default authorizer (Auth.Authorizer: NONE, security: []).
	AuthorizerOptOut bool
	BinaryTypes      []string
}

// NormalizeMethods upper-cases methods and expands ANY.
func NormalizeMethods(methods []string) []string {
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == AnyMethod {
			return append([]string(nil), AnyHTTPMethods...)
		}
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// Key identifies a route for de-duplication: stack path, function, path and operation.
func (r Route) Key() string {
	return strings.Join([]string{r.StackPath, r.FunctionName, r.Path, r.OperationName}, "\x00")
}

// HasMethod reports whether the route serves method.
func (r Route) HasMethod(method string) bool {
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// IsDefault reports whether the route is an HTTP API $default catch-all.
func (r Route) IsDefault() bool {
	return r.Path == DefaultRoutePath
}

// UsesV2Payload reports whether the function receives the HTTP API 2.0 event shape.
func (r Route) UsesV2Payload() bool {
	return r.EventType == EventTypeHTTP && (r.PayloadFormatVersion == "" || r.PayloadFormatVersion == "2.0")
}

// Clone returns a deep copy of the route.
func (r Route) Clone() Route {
	r.Methods = append([]string(nil), r.Methods...)
	r.BinaryTypes = append([]string(nil), r.BinaryTypes...)
	if r.Authorizer != nil {
		a := *r.Authorizer
		a.IdentitySources = slices.Clone(a.IdentitySources)
		a.Audience = slices.Clone(a.Audience)
		r.Authorizer = &a
	}
	return r
}

// Cors holds the CORS response headers of an API.
type Cors struct {
	AllowOrigin      string `json:"allowOrigin,omitempty" yaml:"allowOrigin,omitempty"`
	AllowMethods     string `json:"allowMethods,omitempty" yaml:"allowMethods,omitempty"`
	AllowHeaders     string `json:"allowHeaders,omitempty" yaml:"allowHeaders,omitempty"`
	AllowCredentials string `json:"allowCredentials,omitempty" yaml:"allowCredentials,omitempty"`
	MaxAge           *int   `json:"maxAge,omitempty" yaml:"maxAge,omitempty"`
}

// Headers renders the CORS configuration as response headers. Unset fields are omitted.
func (c *Cors) Headers() map[string]string {
	if c == nil {
		return nil
	}
	headers := make(map[string]string)
	if c.AllowOrigin != "" {
		headers["Access-Control-Allow-Origin"] = c.AllowOrigin
	}
	if c.AllowMethods != "" {
		headers["Access-Control-Allow-Methods"] = c.AllowMethods
	}
	if c.AllowHeaders != "" {
		headers["Access-Control-Allow-Headers"] = c.AllowHeaders
	}
	if c.AllowCredentials != "" {
		headers["Access-Control-Allow-Credentials"] = c.AllowCredentials
	}
	if c.MaxAge != nil {
		headers["Access-Control-Max-Age"] = strconv.Itoa(*c.MaxAge)
	}
	return headers
}

// Api is the resolved routing table. It is immutable once built; every accessor
// returns a copy so callers cannot reach the internal state.
type Api struct {
	routes           []Route
	cors             *Cors
	binaryMediaTypes []string
	stageName        string
	stageVariables   map[string]string
}

// NewApi builds an Api, copying its inputs. Binary media types are de-duplicated and sorted.
func NewApi(routes []Route, cors *Cors, binaryMediaTypes []string, stageName string, stageVariables map[string]string) *Api {
	api := &Api{stageName: stageName}
	for _, r := range routes {
		api.routes = append(api.routes, r.Clone())
	}
	if cors != nil {
		c := *cors
		if cors.MaxAge != nil {
			age := *cors.MaxAge
			c.MaxAge = &age
		}
		api.cors = &c
	}
	seen := make(map[string]bool)
	for _, t := range binaryMediaTypes {
		if !seen[t] {
			seen[t] = true
			api.binaryMediaTypes = append(api.binaryMediaTypes, t)
		}
	}
	sort.Strings(api.binaryMediaTypes)
	if stageVariables != nil {
		api.stageVariables = make(map[string]string, len(stageVariables))
		for k, v := range stageVariables {
			api.stageVariables[k] = v
		}
	}
	return api
}

// Routes returns a copy of the route list.
func (a *Api) Routes() []Route {
	out := make([]Route, len(a.routes))
	for i, r := range a.routes {
		out[i] = r.Clone()
	}
	return out
}

// Cors returns a copy of the CORS configuration, or nil.
func (a *Api) Cors() *Cors {
	if a.cors == nil {
		return nil
	}
	c := *a.cors
	return &c
}

// BinaryMediaTypes returns the sorted binary media types.
func (a *Api) BinaryMediaTypes() []string {
	return append([]string(nil), a.binaryMediaTypes...)
}

// StageName returns the configured stage name, or "".
func (a *Api) StageName() string {
	return a.stageName
}

// StageVariables returns a copy of the stage variables, or nil.
func (a *Api) StageVariables() map[string]string {
	if a.stageVariables == nil {
		return nil
	}
	out := make(map[string]string, len(a.stageVariables))
	for k, v := range a.stageVariables {
		out[k] = v
	}
	return out
}

// RouteEntry is a single method/path binding in the routes output.
type RouteEntry struct {
	Method               string `json:"method" yaml:"method"`
	Path                 string `json:"path" yaml:"path"`
	Function             string `json:"function" yaml:"function"`
	EventType            string `json:"eventType" yaml:"eventType"`
	PayloadFormatVersion string `json:"payloadFormatVersion,omitempty" yaml:"payloadFormatVersion,omitempty"`
	Authorizer           string `json:"authorizer,omitempty" yaml:"authorizer,omitempty"`
	StackPath            string `json:"stackPath,omitempty" yaml:"stackPath,omitempty"`
}

// RoutesResult is the JSON output from `wetwire-local routes`.
type RoutesResult struct {
	Routes           []RouteEntry `json:"routes" yaml:"routes"`
	StageName        string       `json:"stageName,omitempty" yaml:"stageName,omitempty"`
	BinaryMediaTypes []string     `json:"binaryMediaTypes,omitempty" yaml:"binaryMediaTypes,omitempty"`
	Cors             *Cors        `json:"cors,omitempty" yaml:"cors,omitempty"`
}

// ValidateResult is the JSON output from `wetwire-local validate`.
type ValidateResult struct {
	Success  bool     `json:"success"`
	Routes   int      `json:"routes"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// RouteDiff is the difference between two routing tables.
type RouteDiff struct {
	Added    []DiffEntry `json:"added,omitempty"`
	Removed  []DiffEntry `json:"removed,omitempty"`
	Modified []DiffEntry `json:"modified,omitempty"`
}

// DiffEntry is a single changed method/path binding.
type DiffEntry struct {
	Route   string   `json:"route"`
	Changes []string `json:"changes,omitempty"`
}

// DiffSummary provides counts of differences.
type DiffSummary struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
	Total    int `json:"total"`
}

// Entries flattens an Api into one entry per method, sorted by path then method.
func (a *Api) Entries() []RouteEntry {
	var entries []RouteEntry
	for _, r := range a.routes {
		authName := r.AuthorizerName
		for _, m := range r.Methods {
			entries = append(entries, RouteEntry{
				Method:               m,
				Path:                 r.Path,
				Function:             r.FunctionName,
				EventType:            string(r.EventType),
				PayloadFormatVersion: r.PayloadFormatVersion,
				Authorizer:           authName,
				StackPath:            r.StackPath,
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Path != entries[j].Path {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].Method < entries[j].Method
	})
	return entries
}
