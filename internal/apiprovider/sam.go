package apiprovider

import (
	"strings"

	"github.com/sirupsen/logrus"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/stack"
	"github.com/lex00/wetwire-aws-local/internal/swagger"
)

// SAM resource types.
const (
	TypeServerlessFunction = "AWS::Serverless::Function"
	TypeServerlessApi      = "AWS::Serverless::Api"
	TypeServerlessHttpApi  = "AWS::Serverless::HttpApi"
)

var samTypes = map[string]bool{
	TypeServerlessFunction: true,
	TypeServerlessApi:      true,
	TypeServerlessHttpApi:  true,
}

// SAMExtractor reads SAM shorthand resources. Raw API Gateway resources in
// the same template are read as explicit APIs.
type SAMExtractor struct {
	log logrus.FieldLogger
	cfn CFNExtractor
}

// Name implements Extractor.
func (e *SAMExtractor) Name() string { return "sam" }

// Extract implements Extractor.
func (e *SAMExtractor) Extract(stacks []*stack.Stack, c *Collector) error {
	e.cfn.log = e.log
	for _, st := range stacks {
		for _, res := range st.OrderedResources() {
			var err error
			switch res.Type {
			case TypeServerlessFunction:
				err = e.function(st, res, c)
			case TypeServerlessApi:
				err = e.restApi(st, res, c)
			case TypeServerlessHttpApi:
				err = e.httpApi(st, res, c)
			}
			if err != nil {
				return err
			}
		}
		if err := e.cfn.extractStack(st, c); err != nil {
			return err
		}
	}
	return nil
}

func (e *SAMExtractor) function(st *stack.Stack, res stack.Resource, c *Collector) error {
	if cfg, ok := res.Properties["ImageConfig"]; ok && cfg != nil {
		if _, isMap := stack.Map(cfg); !isMap {
			return templateErrorf(res.LogicalID, "ImageConfig must be a map")
		}
	}

	events, _ := stack.Map(res.Properties["Events"])
	for _, name := range sortedKeys(events) {
		event, ok := stack.Map(events[name])
		if !ok {
			continue
		}
		props, _ := stack.Map(event["Properties"])
		switch stack.LookupString(event, "Type") {
		case string(wetwire.EventTypeRest):
			apiID, route, err := e.restEvent(st, res, props)
			if err != nil {
				return err
			}
			c.AddRoutes(st.FullID(apiID), route)
		case string(wetwire.EventTypeHTTP):
			apiID, route, err := e.httpEvent(st, res, props)
			if err != nil {
				return err
			}
			c.AddRoutes(st.FullID(apiID), route)
		}
	}
	return nil
}

func (e *SAMExtractor) restEvent(st *stack.Stack, res stack.Resource, props map[string]any) (string, wetwire.Route, error) {
	apiID := ImplicitRestApiID
	if v, ok := props["RestApiId"]; ok {
		id, err := apiRef(res.LogicalID, "RestApiId", v)
		if err != nil {
			return "", wetwire.Route{}, err
		}
		apiID = id
	}
	route := wetwire.Route{
		Methods:      wetwire.NormalizeMethods([]string{stack.LookupString(props, "Method")}),
		FunctionName: st.FullID(res.LogicalID),
		Path:         stack.LookupString(props, "Path"),
		EventType:    wetwire.EventTypeRest,
		StackPath:    st.Path,
	}
	eventAuth(&route, props)
	return apiID, route, nil
}

func (e *SAMExtractor) httpEvent(st *stack.Stack, res stack.Resource, props map[string]any) (string, wetwire.Route, error) {
	apiID := ImplicitHttpApiID
	if v, ok := props["ApiId"]; ok {
		id, err := apiRef(res.LogicalID, "ApiId", v)
		if err != nil {
			return "", wetwire.Route{}, err
		}
		apiID = id
	}

	path := stack.LookupString(props, "Path")
	method := stack.LookupString(props, "Method")
	if path == "" && method == "" {
		path = wetwire.DefaultRoutePath
		method = wetwire.AnyMethodExtension
	}
	if method == "" {
		method = wetwire.AnyMethod
	}
	// An omitted version stays empty so a merge can carry one forward; empty
	// means 2.0 when the event is built.
	version := payloadVersion(props["PayloadFormatVersion"])

	route := wetwire.Route{
		Methods:              wetwire.NormalizeMethods([]string{method}),
		FunctionName:         st.FullID(res.LogicalID),
		Path:                 path,
		EventType:            wetwire.EventTypeHTTP,
		PayloadFormatVersion: version,
		StackPath:            st.Path,
	}
	eventAuth(&route, props)
	return apiID, route, nil
}

func eventAuth(route *wetwire.Route, props map[string]any) {
	name := stack.LookupString(props, "Auth", "Authorizer")
	if strings.EqualFold(name, "NONE") {
		route.AuthorizerOptOut = true
		return
	}
	route.AuthorizerName = name
}

func (e *SAMExtractor) restApi(st *stack.Stack, res stack.Resource, c *Collector) error {
	id := st.FullID(res.LogicalID)
	props := res.Properties

	binary := swagger.NormalizeBinaryTypes(props["BinaryMediaTypes"], e.log)
	c.AddBinaryMediaTypes(id, binary...)

	doc, err := newReader(st, e.log).Read(props["DefinitionBody"], props["DefinitionUri"])
	if err != nil {
		return err
	}
	if doc != nil {
		p := swagger.NewParser(doc, e.log)
		c.AddRoutes(id, p.Routes(wetwire.EventTypeRest, st.Path, binary)...)
		c.AddBinaryMediaTypes(id, p.BinaryMediaTypes()...)
		for _, auth := range sortedAuthorizers(p.Authorizers(wetwire.EventTypeRest, st.Path)) {
			c.AddAuthorizer(id, auth)
		}
		if name := p.DefaultAuthorizer(); name != "" {
			c.SetDefaultAuthorizer(id, name)
		}
	}

	cors, err := corsFromRest(res.LogicalID, props["Cors"])
	if err != nil {
		return err
	}
	if cors != nil {
		c.SetCors(id, cors)
	}
	if name, ok := stack.Scalar(props["StageName"]); ok {
		c.SetStageName(id, name)
	}
	if vars := stringMap(props["Variables"]); vars != nil {
		c.SetStageVariables(id, vars)
	}
	e.samAuth(st, id, props["Auth"], wetwire.EventTypeRest, c)
	return nil
}

func (e *SAMExtractor) httpApi(st *stack.Stack, res stack.Resource, c *Collector) error {
	id := st.FullID(res.LogicalID)
	props := res.Properties

	doc, err := newReader(st, e.log).Read(props["DefinitionBody"], props["DefinitionUri"])
	if err != nil {
		return err
	}
	if doc != nil {
		p := swagger.NewParser(doc, e.log)
		c.AddRoutes(id, p.Routes(wetwire.EventTypeHTTP, st.Path, nil)...)
		for _, auth := range sortedAuthorizers(p.Authorizers(wetwire.EventTypeHTTP, st.Path)) {
			c.AddAuthorizer(id, auth)
		}
		if name := p.DefaultAuthorizer(); name != "" {
			c.SetDefaultAuthorizer(id, name)
		}
	}

	cors, err := corsFromHTTP(res.LogicalID, props["CorsConfiguration"])
	if err != nil {
		return err
	}
	if cors != nil {
		c.SetCors(id, cors)
	}
	if name, ok := stack.Scalar(props["StageName"]); ok {
		c.SetStageName(id, name)
	}
	if vars := stringMap(props["StageVariables"]); vars != nil {
		c.SetStageVariables(id, vars)
	}
	e.samAuth(st, id, props["Auth"], wetwire.EventTypeHTTP, c)
	return nil
}

// samAuth reads the Auth property of Serverless::Api and Serverless::HttpApi.
func (e *SAMExtractor) samAuth(st *stack.Stack, apiID string, v any, eventType wetwire.EventType, c *Collector) {
	auth, ok := stack.Map(v)
	if !ok {
		return
	}
	if name := stack.LookupString(auth, "DefaultAuthorizer"); name != "" {
		c.SetDefaultAuthorizer(apiID, name)
	}
	authorizers, _ := stack.Map(auth["Authorizers"])
	for _, name := range sortedKeys(authorizers) {
		config, ok := stack.Map(authorizers[name])
		if !ok {
			continue
		}
		a := samAuthorizer(st, name, config, eventType)
		if a == nil {
			e.log.WithFields(logrus.Fields{"api": apiID, "authorizer": name}).
				Debug("authorizer is not a Lambda or JWT authorizer, skipping")
			continue
		}
		c.AddAuthorizer(apiID, a)
	}
}

func samAuthorizer(st *stack.Stack, name string, config map[string]any, eventType wetwire.EventType) *wetwire.Authorizer {
	identity, _ := stack.Map(config["Identity"])

	if jwt, ok := stack.Map(config["JwtConfiguration"]); ok {
		a := &wetwire.Authorizer{
			Name:   name,
			Type:   wetwire.AuthorizerJWT,
			Issuer: stack.LookupString(jwt, "issuer"),
		}
		if aud, ok := stack.List(jwt["audience"]); ok {
			for _, item := range aud {
				if s, ok := item.(string); ok {
					a.Audience = append(a.Audience, s)
				}
			}
		}
		if src := stack.LookupString(config, "IdentitySource"); src != "" {
			a.IdentitySources = []string{src}
		}
		return a
	}

	fn := swagger.FunctionName(config["FunctionArn"])
	if fn == "" {
		return nil
	}
	a := &wetwire.Authorizer{
		Name:         name,
		FunctionName: st.FullID(fn),
	}

	if eventType == wetwire.EventTypeRest {
		a.Type = wetwire.AuthorizerToken
		if strings.EqualFold(stack.LookupString(config, "FunctionPayloadType"), "REQUEST") {
			a.Type = wetwire.AuthorizerRequest
		}
		a.ValidationExpression = stack.LookupString(identity, "ValidationExpression")
		if a.Type == wetwire.AuthorizerToken {
			header := stack.LookupString(identity, "Header")
			if header == "" {
				header = "Authorization"
			}
			a.IdentitySources = []string{"method.request.header." + header}
			return a
		}
		a.IdentitySources = identityList(identity, "method.request.header.", "method.request.querystring.", "stageVariables.", "context.")
		return a
	}

	a.Type = wetwire.AuthorizerRequest
	a.PayloadFormatVersion = stack.LookupString(config, "AuthorizerPayloadFormatVersion")
	if b, ok := config["EnableSimpleResponses"].(bool); ok {
		a.EnableSimpleResponses = b
	}
	a.IdentitySources = identityList(identity, "$request.header.", "$request.querystring.", "$stageVariables.", "$context.")
	return a
}

// identityList expands the Headers, QueryStrings, StageVariables and Context
// lists of a SAM Identity block into identity source expressions.
func identityList(identity map[string]any, header, query, stageVar, context string) []string {
	var out []string
	for _, part := range []struct {
		key, prefix string
	}{
		{"Headers", header},
		{"QueryStrings", query},
		{"StageVariables", stageVar},
		{"Context", context},
	} {
		list, _ := stack.List(identity[part.key])
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, part.prefix+s)
			}
		}
	}
	return out
}

// payloadVersion reads a payload format version, restoring the ".0" that an
// unquoted YAML number such as 2.0 loses.
func payloadVersion(v any) string {
	version, _ := stack.Scalar(v)
	if version == "1" || version == "2" {
		version += ".0"
	}
	return version
}
