package apiprovider

import (
	"strings"

	"github.com/sirupsen/logrus"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/stack"
	"github.com/lex00/wetwire-aws-local/internal/swagger"
)

// API Gateway resource types.
const (
	TypeRestApi       = "AWS::ApiGateway::RestApi"
	TypeStage         = "AWS::ApiGateway::Stage"
	TypeResource      = "AWS::ApiGateway::Resource"
	TypeMethod        = "AWS::ApiGateway::Method"
	TypeAuthorizer    = "AWS::ApiGateway::Authorizer"
	TypeV2Api         = "AWS::ApiGatewayV2::Api"
	TypeV2Route       = "AWS::ApiGatewayV2::Route"
	TypeV2Integration = "AWS::ApiGatewayV2::Integration"
	TypeV2Stage       = "AWS::ApiGatewayV2::Stage"
	TypeV2Authorizer  = "AWS::ApiGatewayV2::Authorizer"
)

var cfnTypes = map[string]bool{
	TypeRestApi:       true,
	TypeStage:         true,
	TypeResource:      true,
	TypeMethod:        true,
	TypeV2Api:         true,
	TypeV2Route:       true,
	TypeV2Integration: true,
	TypeV2Stage:       true,
}

const (
	contentHandlingBinary = "CONVERT_TO_BINARY"
	integrationsPrefix    = "integrations/"
)

// CFNExtractor reads raw API Gateway (v1 and v2) resources.
type CFNExtractor struct {
	log logrus.FieldLogger
}

// Name implements Extractor.
func (e *CFNExtractor) Name() string { return "cloudformation" }

// Extract implements Extractor.
func (e *CFNExtractor) Extract(stacks []*stack.Stack, c *Collector) error {
	for _, st := range stacks {
		if err := e.extractStack(st, c); err != nil {
			return err
		}
	}
	return nil
}

func (e *CFNExtractor) logger() logrus.FieldLogger {
	if e.log == nil {
		return logrus.StandardLogger()
	}
	return e.log
}

// extractStack runs in passes so that APIs and authorizers are known before
// the methods and routes that reference them.
func (e *CFNExtractor) extractStack(st *stack.Stack, c *Collector) error {
	resources := st.OrderedResources()
	passes := []map[string]func(*stack.Stack, stack.Resource, *Collector) error{
		{TypeRestApi: e.restApi, TypeV2Api: e.httpApi},
		{TypeAuthorizer: e.authorizer, TypeV2Authorizer: e.authorizerV2},
		{TypeStage: e.stage, TypeV2Stage: e.stageV2},
		{TypeMethod: e.method, TypeV2Route: e.route},
	}
	for _, pass := range passes {
		for _, res := range resources {
			handler, ok := pass[res.Type]
			if !ok {
				continue
			}
			if err := handler(st, res, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *CFNExtractor) restApi(st *stack.Stack, res stack.Resource, c *Collector) error {
	id := st.FullID(res.LogicalID)
	binary := swagger.NormalizeBinaryTypes(res.Properties["BinaryMediaTypes"], e.logger())
	c.AddBinaryMediaTypes(id, binary...)

	location := res.Properties["BodyS3Location"]
	if loc, ok := stack.Map(location); ok {
		// Only local keys without a bucket can be read.
		if stack.LookupString(loc, "Bucket") == "" {
			location = stack.LookupString(loc, "Key")
		}
	}
	doc, err := newReader(st, e.logger()).Read(res.Properties["Body"], location)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	p := swagger.NewParser(doc, e.logger())
	c.AddRoutes(id, p.Routes(wetwire.EventTypeRest, st.Path, binary)...)
	c.AddBinaryMediaTypes(id, p.BinaryMediaTypes()...)
	for _, auth := range sortedAuthorizers(p.Authorizers(wetwire.EventTypeRest, st.Path)) {
		c.AddAuthorizer(id, auth)
	}
	if name := p.DefaultAuthorizer(); name != "" {
		c.SetDefaultAuthorizer(id, name)
	}
	return nil
}

func (e *CFNExtractor) httpApi(st *stack.Stack, res stack.Resource, c *Collector) error {
	id := st.FullID(res.LogicalID)
	props := res.Properties
	if protocol := stack.LookupString(props, "ProtocolType"); protocol != "" && !strings.EqualFold(protocol, "HTTP") {
		e.logger().WithField("api", id).Debugf("skipping %s API", protocol)
		return nil
	}

	cors, err := corsFromHTTP(res.LogicalID, props["CorsConfiguration"])
	if err != nil {
		return err
	}
	if cors != nil {
		c.SetCors(id, cors)
	}

	doc, err := newReader(st, e.logger()).Read(props["Body"], props["BodyS3Location"])
	if err != nil {
		return err
	}
	if doc != nil {
		p := swagger.NewParser(doc, e.logger())
		c.AddRoutes(id, p.Routes(wetwire.EventTypeHTTP, st.Path, nil)...)
		for _, auth := range sortedAuthorizers(p.Authorizers(wetwire.EventTypeHTTP, st.Path)) {
			c.AddAuthorizer(id, auth)
		}
		if name := p.DefaultAuthorizer(); name != "" {
			c.SetDefaultAuthorizer(id, name)
		}
		return nil
	}

	// Quick create: an API with a Target and no Body gets a single route.
	target, ok := props["Target"]
	if !ok {
		return nil
	}
	fn := swagger.FunctionName(target)
	if fn == "" {
		e.logger().WithField("api", id).Warnf("unable to parse the Lambda function from target %v", target)
		return nil
	}
	key := stack.LookupString(props, "RouteKey")
	if key == "" {
		key = wetwire.DefaultRoutePath
	}
	method, path, err := ParseRouteKey(res.LogicalID, key)
	if err != nil {
		return err
	}
	c.AddRoutes(id, wetwire.Route{
		Methods:              wetwire.NormalizeMethods([]string{method}),
		FunctionName:         st.FullID(fn),
		Path:                 path,
		EventType:            wetwire.EventTypeHTTP,
		PayloadFormatVersion: "2.0",
		StackPath:            st.Path,
	})
	return nil
}

func (e *CFNExtractor) stage(st *stack.Stack, res stack.Resource, c *Collector) error {
	apiID, _ := res.Properties["RestApiId"].(string)
	if target, ok := st.Resources[apiID]; !ok || target.Type != TypeRestApi {
		return templateErrorf(res.LogicalID,
			"The AWS::ApiGateway::Stage must have a valid RestApiId that points to RestApi resource %s", apiID)
	}
	id := st.FullID(apiID)
	if name, ok := stack.Scalar(res.Properties["StageName"]); ok {
		c.SetStageName(id, name)
	}
	if vars := stringMap(res.Properties["Variables"]); vars != nil {
		c.SetStageVariables(id, vars)
	}
	return nil
}

func (e *CFNExtractor) stageV2(st *stack.Stack, res stack.Resource, c *Collector) error {
	apiID, _ := res.Properties["ApiId"].(string)
	if target, ok := st.Resources[apiID]; !ok || target.Type != TypeV2Api {
		return templateErrorf(res.LogicalID,
			"The AWS::ApiGatewayV2::Stage must have a valid ApiId that points to Api resource %s", apiID)
	}
	id := st.FullID(apiID)
	if name, ok := stack.Scalar(res.Properties["StageName"]); ok {
		c.SetStageName(id, name)
	}
	if vars := stringMap(res.Properties["StageVariables"]); vars != nil {
		c.SetStageVariables(id, vars)
	}
	return nil
}

func (e *CFNExtractor) method(st *stack.Stack, res stack.Resource, c *Collector) error {
	props := res.Properties
	apiID, err := apiRef(res.LogicalID, "RestApiId", props["RestApiId"])
	if err != nil {
		return err
	}
	id := st.FullID(apiID)

	path, err := resourcePath(st, res.LogicalID, props["ResourceId"])
	if err != nil {
		return err
	}
	integration, _ := stack.Map(props["Integration"])

	if err := e.methodCors(res.LogicalID, id, integration, c); err != nil {
		return err
	}
	if stack.LookupString(integration, "ContentHandling") == contentHandlingBinary {
		if ct := stack.LookupString(integration, "ContentType"); ct != "" {
			c.AddBinaryMediaTypes(id, ct)
		}
	}

	fn := swagger.FunctionName(integration["Uri"])
	if fn == "" {
		e.logger().WithFields(logrus.Fields{"method": res.LogicalID, "path": path}).
			Debug("method has no Lambda integration, skipping")
		return nil
	}

	route := wetwire.Route{
		Methods:       wetwire.NormalizeMethods([]string{stack.LookupString(props, "HttpMethod")}),
		FunctionName:  st.FullID(fn),
		Path:          path,
		EventType:     wetwire.EventTypeRest,
		OperationName: stack.LookupString(props, "OperationName"),
		StackPath:     st.Path,
	}
	if name := stack.LookupString(props, "AuthorizerId"); name != "" {
		route.AuthorizerName = name
	} else if strings.EqualFold(stack.LookupString(props, "AuthorizationType"), "NONE") {
		route.AuthorizerOptOut = true
	}
	c.AddRoutes(id, route)
	return nil
}

// methodCors picks up CORS headers declared as integration response parameters.
func (e *CFNExtractor) methodCors(logicalID, apiID string, integration map[string]any, c *Collector) error {
	if c.Cors(apiID) != nil {
		return nil
	}
	responses, _ := stack.List(integration["IntegrationResponses"])
	for _, item := range responses {
		params, ok := stack.Map(stack.Normalize(item))
		if !ok {
			continue
		}
		responseParams, ok := stack.Map(params["ResponseParameters"])
		if !ok {
			continue
		}
		cors, err := corsFromResponseParameters(logicalID, responseParams)
		if err != nil {
			return err
		}
		if cors != nil {
			c.SetCors(apiID, cors)
			return nil
		}
	}
	return nil
}

// resourcePath walks ResourceId and ParentId links up to the API root.
func resourcePath(st *stack.Stack, owner string, resourceID any) (string, error) {
	var segments []string
	current := resourceID
	for depth := 0; ; depth++ {
		if depth > len(st.Resources) {
			return "", templateErrorf(owner, "resource path contains a cycle")
		}
		if _, attr, ok := stack.GetAttTarget(current); ok && attr == "RootResourceId" {
			break
		}
		id, ok := current.(string)
		if !ok {
			id, ok = stack.RefTarget(current)
		}
		if !ok || id == "" {
			return "", templateErrorf(owner, "unable to resolve resource id %v", current)
		}
		res, ok := st.Resources[id]
		if !ok || res.Type != TypeResource {
			return "", templateErrorf(owner, "resource id %s does not point to an AWS::ApiGateway::Resource", id)
		}
		segments = append(segments, stack.LookupString(res.Properties, "PathPart"))
		current = res.Properties["ParentId"]
	}

	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return "/" + strings.Join(segments, "/"), nil
}

func (e *CFNExtractor) route(st *stack.Stack, res stack.Resource, c *Collector) error {
	props := res.Properties
	apiID, err := apiRef(res.LogicalID, "ApiId", props["ApiId"])
	if err != nil {
		return err
	}
	if api, ok := st.Resources[apiID]; ok {
		if protocol := stack.LookupString(api.Properties, "ProtocolType"); protocol != "" && !strings.EqualFold(protocol, "HTTP") {
			return nil
		}
	}
	id := st.FullID(apiID)

	method, path, err := ParseRouteKey(res.LogicalID, stack.LookupString(props, "RouteKey"))
	if err != nil {
		return err
	}

	target := stack.LookupString(props, "Target")
	integrationID := strings.TrimPrefix(target, integrationsPrefix)
	integration, ok := st.Resources[integrationID]
	if !strings.HasPrefix(target, integrationsPrefix) || !ok || integration.Type != TypeV2Integration {
		e.logger().WithField("route", res.LogicalID).Debugf("route target %q is not an integration, skipping", target)
		return nil
	}
	if t := stack.LookupString(integration.Properties, "IntegrationType"); t != "" && !strings.EqualFold(t, "AWS_PROXY") {
		return nil
	}
	fn := swagger.FunctionName(integration.Properties["IntegrationUri"])
	if fn == "" {
		e.logger().WithField("route", res.LogicalID).Warn("unable to parse the Lambda function from the integration URI")
		return nil
	}
	version := payloadVersion(integration.Properties["PayloadFormatVersion"])

	route := wetwire.Route{
		Methods:              wetwire.NormalizeMethods([]string{method}),
		FunctionName:         st.FullID(fn),
		Path:                 path,
		EventType:            wetwire.EventTypeHTTP,
		PayloadFormatVersion: version,
		OperationName:        stack.LookupString(props, "OperationName"),
		StackPath:            st.Path,
	}
	if name := stack.LookupString(props, "AuthorizerId"); name != "" {
		route.AuthorizerName = name
	} else if strings.EqualFold(stack.LookupString(props, "AuthorizationType"), "NONE") {
		route.AuthorizerOptOut = true
	}
	c.AddRoutes(id, route)
	return nil
}

// ParseRouteKey splits an HTTP API route key. "$default" is the catch-all
// route; any other key must be "METHOD /path".
func ParseRouteKey(logicalID, key string) (method, path string, err error) {
	if key == wetwire.DefaultRoutePath {
		return wetwire.AnyMethodExtension, wetwire.DefaultRoutePath, nil
	}
	parts := strings.Split(key, " ")
	if len(parts) != 2 || parts[0] == "" || !strings.HasPrefix(parts[1], "/") {
		return "", "", templateErrorf(logicalID, "invalid route key %q, expected \"METHOD /path\" or \"$default\"", key)
	}
	return strings.ToUpper(parts[0]), parts[1], nil
}

func (e *CFNExtractor) authorizer(st *stack.Stack, res stack.Resource, c *Collector) error {
	props := res.Properties
	apiID, err := apiRef(res.LogicalID, "RestApiId", props["RestApiId"])
	if err != nil {
		return err
	}
	t := wetwire.AuthorizerType(strings.ToUpper(stack.LookupString(props, "Type")))
	if t != wetwire.AuthorizerToken && t != wetwire.AuthorizerRequest {
		e.logger().WithField("authorizer", res.LogicalID).Debugf("unsupported authorizer type %q", t)
		return nil
	}
	fn := swagger.FunctionName(props["AuthorizerUri"])
	if fn == "" {
		e.logger().WithField("authorizer", res.LogicalID).Warn("unable to parse the authorizer function")
		return nil
	}
	c.AddAuthorizer(st.FullID(apiID), &wetwire.Authorizer{
		Name:                 res.LogicalID,
		Type:                 t,
		FunctionName:         st.FullID(fn),
		IdentitySources:      splitSources(props["IdentitySource"]),
		ValidationExpression: stack.LookupString(props, "IdentityValidationExpression"),
	})
	return nil
}

func (e *CFNExtractor) authorizerV2(st *stack.Stack, res stack.Resource, c *Collector) error {
	props := res.Properties
	apiID, err := apiRef(res.LogicalID, "ApiId", props["ApiId"])
	if err != nil {
		return err
	}
	auth := &wetwire.Authorizer{
		Name:                 res.LogicalID,
		Type:                 wetwire.AuthorizerType(strings.ToUpper(stack.LookupString(props, "AuthorizerType"))),
		IdentitySources:      splitSources(props["IdentitySource"]),
		PayloadFormatVersion: stack.LookupString(props, "AuthorizerPayloadFormatVersion"),
	}
	if b, ok := props["EnableSimpleResponses"].(bool); ok {
		auth.EnableSimpleResponses = b
	}
	switch auth.Type {
	case wetwire.AuthorizerJWT:
		auth.Issuer = stack.LookupString(props, "JwtConfiguration", "Issuer")
		if aud, ok := stack.Lookup(props, "JwtConfiguration", "Audience"); ok {
			auth.Audience = splitSources(aud)
		}
	case wetwire.AuthorizerRequest:
		fn := swagger.FunctionName(props["AuthorizerUri"])
		if fn == "" {
			e.logger().WithField("authorizer", res.LogicalID).Warn("unable to parse the authorizer function")
			return nil
		}
		auth.FunctionName = st.FullID(fn)
	default:
		return nil
	}
	c.AddAuthorizer(st.FullID(apiID), auth)
	return nil
}

func splitSources(v any) []string {
	var raw []string
	if s, ok := v.(string); ok {
		raw = strings.Split(s, ",")
	} else {
		list, _ := stack.List(v)
		for _, item := range list {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
