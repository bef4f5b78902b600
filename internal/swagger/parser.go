// Package swagger extracts routes from Swagger 2.0 and OpenAPI 3 documents
// carrying API Gateway extensions.
package swagger

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/stack"
)

// API Gateway extension keys.
const (
	IntegrationKey      = "x-amazon-apigateway-integration"
	AnyMethodKey        = "x-amazon-apigateway-any-method"
	BinaryMediaTypesKey = "x-amazon-apigateway-binary-media-types"
	AuthorizerKey       = "x-amazon-apigateway-authorizer"
	AuthTypeKey         = "x-amazon-apigateway-authtype"
)

const integrationTypeProxy = "aws_proxy"

var methodKeys = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, AnyMethodKey: true,
}

// Parser reads one document.
type Parser struct {
	doc map[string]any
	log logrus.FieldLogger
}

// NewParser wraps a document.
func NewParser(doc map[string]any, log logrus.FieldLogger) *Parser {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Parser{doc: doc, log: log}
}

// Routes returns one route per path and method with a Lambda proxy
// integration. binaryTypes declared on the owning resource are unioned with
// those of the document. Function names are prefixed with stackPath.
func (p *Parser) Routes(eventType wetwire.EventType, stackPath string, binaryTypes []string) []wetwire.Route {
	paths, ok := stack.Map(p.doc["paths"])
	if !ok {
		return nil
	}
	binary := unionStrings(binaryTypes, p.BinaryMediaTypes())

	var routes []wetwire.Route
	for _, path := range sortedKeys(paths) {
		methods, ok := stack.Map(paths[path])
		if !ok {
			continue
		}
		for _, key := range sortedKeys(methods) {
			methodKey := strings.ToLower(key)
			if !methodKeys[methodKey] {
				continue
			}
			config, ok := stack.Map(methods[key])
			if !ok {
				continue
			}
			integration, ok := stack.Map(config[IntegrationKey])
			if !ok {
				p.log.WithFields(logrus.Fields{"path": path, "method": key}).
					Debug("skipping method without an integration")
				continue
			}
			if !strings.EqualFold(stack.LookupString(integration, "type"), integrationTypeProxy) {
				p.log.WithFields(logrus.Fields{"path": path, "method": key}).
					Debug("skipping non-proxy integration")
				continue
			}
			fn := FunctionName(integration["uri"])
			if fn == "" {
				p.log.WithFields(logrus.Fields{"path": path, "method": key}).
					Warnf("unable to parse the Lambda function from integration URI %v", integration["uri"])
				continue
			}

			method := strings.ToUpper(methodKey)
			if methodKey == AnyMethodKey {
				method = wetwire.AnyMethod
			}
			routePath := path
			if path == wetwire.DefaultRoutePath || path == "/"+wetwire.DefaultRoutePath {
				routePath = wetwire.DefaultRoutePath
				method = wetwire.AnyMethodExtension
			}

			route := wetwire.Route{
				Methods:              wetwire.NormalizeMethods([]string{method}),
				FunctionName:         prefix(stackPath, fn),
				Path:                 routePath,
				EventType:            eventType,
				PayloadFormatVersion: stack.LookupString(integration, "payloadFormatVersion"),
				OperationName:        stack.LookupString(config, "operationId"),
				StackPath:            stackPath,
				BinaryTypes:          binary,
			}
			route.AuthorizerName, route.AuthorizerOptOut = securityRequirement(config["security"])
			routes = append(routes, route)
		}
	}
	return routes
}

// BinaryMediaTypes returns the document level binary media types.
func (p *Parser) BinaryMediaTypes() []string {
	return NormalizeBinaryTypes(p.doc[BinaryMediaTypesKey], p.log)
}

// DefaultAuthorizer returns the authorizer named by the root security requirement.
func (p *Parser) DefaultAuthorizer() string {
	name, _ := securityRequirement(p.doc["security"])
	return name
}

// Authorizers returns the Lambda and JWT authorizers declared in
// securityDefinitions (Swagger 2.0) or components.securitySchemes (OpenAPI 3).
func (p *Parser) Authorizers(eventType wetwire.EventType, stackPath string) map[string]*wetwire.Authorizer {
	schemes, ok := stack.Map(p.doc["securityDefinitions"])
	if !ok {
		v, _ := stack.Lookup(p.doc, "components", "securitySchemes")
		schemes, _ = stack.Map(v)
	}

	out := make(map[string]*wetwire.Authorizer)
	for _, name := range sortedKeys(schemes) {
		scheme, ok := stack.Map(schemes[name])
		if !ok {
			continue
		}
		config, ok := stack.Map(scheme[AuthorizerKey])
		if !ok {
			continue
		}
		auth := &wetwire.Authorizer{
			Name:                 name,
			Type:                 wetwire.AuthorizerType(strings.ToUpper(stack.LookupString(config, "type"))),
			PayloadFormatVersion: stack.LookupString(config, "authorizerPayloadFormatVersion"),
			ValidationExpression: stack.LookupString(config, "identityValidationExpression"),
		}
		if b, ok := config["enableSimpleResponses"].(bool); ok {
			auth.EnableSimpleResponses = b
		}
		auth.IdentitySources = identitySources(config["identitySource"])

		switch auth.Type {
		case wetwire.AuthorizerJWT:
			auth.Issuer = stack.LookupString(config, "jwtConfiguration", "issuer")
			if aud, ok := stack.Lookup(config, "jwtConfiguration", "audience"); ok {
				auth.Audience = stringList(aud)
			}
		case wetwire.AuthorizerToken, wetwire.AuthorizerRequest:
			fn := FunctionName(config["authorizerUri"])
			if fn == "" {
				p.log.WithField("authorizer", name).Warn("unable to parse the authorizer function, skipping")
				continue
			}
			auth.FunctionName = prefix(stackPath, fn)
			if auth.Type == wetwire.AuthorizerToken && len(auth.IdentitySources) == 0 {
				if header := stack.LookupString(scheme, "name"); header != "" {
					auth.IdentitySources = []string{"method.request.header." + header}
				}
			}
			if eventType == wetwire.EventTypeRest {
				auth.PayloadFormatVersion = ""
			}
		default:
			p.log.WithField("authorizer", name).Warnf("unsupported authorizer type %q", auth.Type)
			continue
		}
		out[name] = auth
	}
	return out
}

// NormalizeBinaryTypes converts a list of media types, rewriting the
// CloudFormation escaped slash "~1" back to "/". Non-string entries are dropped.
func NormalizeBinaryTypes(v any, log logrus.FieldLogger) []string {
	list, ok := stack.List(v)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			if log != nil {
				log.Debugf("dropping non-string binary media type %v", item)
			}
			continue
		}
		out = append(out, strings.ReplaceAll(s, "~1", "/"))
	}
	return out
}

// securityRequirement reads a security requirement list. An explicit empty
// list opts out of the default authorizer.
func securityRequirement(v any) (name string, optOut bool) {
	list, ok := stack.List(v)
	if !ok {
		return "", false
	}
	if len(list) == 0 {
		return "", true
	}
	for _, item := range list {
		req, ok := stack.Map(item)
		if !ok {
			continue
		}
		if keys := sortedKeys(req); len(keys) > 0 {
			return keys[0], false
		}
	}
	return "", false
}

func identitySources(v any) []string {
	var raw []string
	switch val := v.(type) {
	case string:
		raw = strings.Split(val, ",")
	default:
		raw = stringList(v)
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringList(v any) []string {
	if s, ok := v.(string); ok {
		return []string{s}
	}
	list, _ := stack.List(v)
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func prefix(stackPath, name string) string {
	if stackPath == "" {
		return name
	}
	return stackPath + "/" + name
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
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
