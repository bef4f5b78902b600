package apiprovider

import (
	"sort"

	"github.com/sirupsen/logrus"

	wetwire "github.com/lex00/wetwire-aws-local"
)

// ownedRoute is a route together with the logical id of the API it belongs to.
type ownedRoute struct {
	apiID string
	route wetwire.Route
}

type apiProperties struct {
	authorizers       map[string]*wetwire.Authorizer
	defaultAuthorizer string
	cors              *wetwire.Cors
	binaryMediaTypes  []string
	stageName         string
	stageVariables    map[string]string
}

// Collector accumulates routes and API level settings per API logical id
// while extractors walk the template. Api freezes the result.
type Collector struct {
	log    logrus.FieldLogger
	routes []ownedRoute
	ids    []string
	props  map[string]*apiProperties
}

// NewCollector returns an empty collector.
func NewCollector(log logrus.FieldLogger) *Collector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Collector{log: log, props: make(map[string]*apiProperties)}
}

func (c *Collector) properties(apiID string) *apiProperties {
	p, ok := c.props[apiID]
	if !ok {
		p = &apiProperties{authorizers: make(map[string]*wetwire.Authorizer)}
		c.props[apiID] = p
		c.ids = append(c.ids, apiID)
	}
	return p
}

// AddRoutes appends routes owned by apiID.
func (c *Collector) AddRoutes(apiID string, routes ...wetwire.Route) {
	c.properties(apiID)
	for _, r := range routes {
		c.routes = append(c.routes, ownedRoute{apiID: apiID, route: r.Clone()})
	}
}

// AddAuthorizer registers a named authorizer on apiID.
func (c *Collector) AddAuthorizer(apiID string, auth *wetwire.Authorizer) {
	if auth == nil {
		return
	}
	c.properties(apiID).authorizers[auth.Name] = auth
}

// SetDefaultAuthorizer names the authorizer used by routes that do not name one.
func (c *Collector) SetDefaultAuthorizer(apiID, name string) {
	c.properties(apiID).defaultAuthorizer = name
}

// SetCors sets the CORS configuration of apiID.
func (c *Collector) SetCors(apiID string, cors *wetwire.Cors) {
	c.properties(apiID).cors = cors
}

// Cors returns the CORS configuration of apiID, or nil.
func (c *Collector) Cors(apiID string) *wetwire.Cors {
	if p, ok := c.props[apiID]; ok {
		return p.cors
	}
	return nil
}

// AddBinaryMediaTypes appends binary media types to apiID.
func (c *Collector) AddBinaryMediaTypes(apiID string, types ...string) {
	p := c.properties(apiID)
	p.binaryMediaTypes = append(p.binaryMediaTypes, types...)
}

// SetStageName sets the stage name of apiID.
func (c *Collector) SetStageName(apiID, name string) {
	c.properties(apiID).stageName = name
}

// SetStageVariables sets the stage variables of apiID.
func (c *Collector) SetStageVariables(apiID string, vars map[string]string) {
	c.properties(apiID).stageVariables = vars
}

// Api merges routes colliding on path and method, links authorizers,
// de-duplicates routes and applies CORS, then returns the frozen routing
// table. With several APIs the routes are concatenated; the first CORS
// configuration and stage settings in declaration order win and binary media
// types are unioned.
func (c *Collector) Api() *wetwire.Api {
	merged := mergeRoutes(c.routes)
	linked := make([]wetwire.Route, 0, len(merged))
	for _, owned := range merged {
		linked = append(linked, c.linkAuthorizer(owned))
	}

	var (
		cors      *wetwire.Cors
		binary    []string
		stageName string
		stageVars map[string]string
	)
	for _, id := range c.ids {
		p := c.props[id]
		if cors == nil && p.cors != nil {
			cors = p.cors
		}
		binary = append(binary, p.binaryMediaTypes...)
		if stageName == "" && p.stageName != "" {
			stageName = p.stageName
		}
		if stageVars == nil && p.stageVariables != nil {
			stageVars = p.stageVariables
		}
	}

	routes := dedupe(linked)
	if cors != nil {
		routes = addCorsOptions(routes)
	}
	return wetwire.NewApi(routes, cors, binary, stageName, stageVars)
}

func (c *Collector) linkAuthorizer(owned ownedRoute) wetwire.Route {
	route := owned.route
	route.Authorizer = nil
	if route.AuthorizerOptOut {
		route.AuthorizerName = ""
		return route
	}

	p := c.props[owned.apiID]
	name := route.AuthorizerName
	if name == "" && p != nil {
		name = p.defaultAuthorizer
	}
	if name == "" {
		return route
	}

	if p != nil {
		if auth, ok := p.authorizers[name]; ok {
			route.AuthorizerName = name
			route.Authorizer = auth
			return route
		}
	}
	c.log.WithFields(logrus.Fields{
		"api":        owned.apiID,
		"path":       route.Path,
		"authorizer": name,
	}).Warn("authorizer not found, the route will not be authorized")
	route.AuthorizerName = ""
	return route
}

// dedupe collapses routes with the same stack path, function, path and
// operation into one route whose methods are the sorted union. The later
// route's other fields win; first insertion order is kept.
func dedupe(routes []wetwire.Route) []wetwire.Route {
	index := make(map[string]int)
	var out []wetwire.Route
	for _, r := range routes {
		key := r.Key()
		i, ok := index[key]
		if !ok {
			r = r.Clone()
			r.Methods = sortedUnion(nil, r.Methods)
			index[key] = len(out)
			out = append(out, r)
			continue
		}
		methods := sortedUnion(out[i].Methods, r.Methods)
		out[i] = r.Clone()
		out[i].Methods = methods
	}
	return out
}

// addCorsOptions appends OPTIONS to every route that lacks it.
func addCorsOptions(routes []wetwire.Route) []wetwire.Route {
	for i := range routes {
		if routes[i].HasMethod("OPTIONS") {
			continue
		}
		routes[i].Methods = append(routes[i].Methods, "OPTIONS")
	}
	return routes
}

func sortedUnion(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range append(append([]string(nil), a...), b...) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
