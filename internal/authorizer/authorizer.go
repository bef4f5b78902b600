// Package authorizer runs Lambda authorizers in front of a route and decides
// whether the request reaches the backing function.
package authorizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/event"
)

var (
	// ErrUnauthorized means the identity sources were missing or invalid (401).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the authorizer denied access (403).
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidResponse means the authorizer function returned something unusable (502).
	ErrInvalidResponse = errors.New("invalid lambda authorizer response")
)

// InvokeFunc runs a function with an event and returns its response payload.
type InvokeFunc func(ctx context.Context, functionName string, payload []byte) ([]byte, error)

// Request is an inbound request that needs authorizing.
type Request struct {
	HTTP  *http.Request
	Body  []byte
	Route wetwire.Route
	Event event.Context
}

// Result is a successful authorization. Its context is forwarded to the function.
type Result struct {
	PrincipalID string
	Context     map[string]any
}

// Evaluator runs authorizers.
type Evaluator struct {
	invoke  InvokeFunc
	builder *event.Builder
	log     logrus.FieldLogger
}

// NewEvaluator returns an Evaluator invoking authorizer functions through invoke.
func NewEvaluator(invoke InvokeFunc, builder *event.Builder, log logrus.FieldLogger) *Evaluator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if builder == nil {
		builder = event.NewBuilder()
	}
	return &Evaluator{invoke: invoke, builder: builder, log: log}
}

// Authorize checks req against the route's authorizer. A route without a
// Lambda authorizer is always allowed with a nil Result.
func (e *Evaluator) Authorize(ctx context.Context, req Request) (*Result, error) {
	a := req.Route.Authorizer
	if a == nil {
		return nil, nil
	}
	if !a.IsLambda() {
		e.log.WithField("authorizer", a.Name).Debug("JWT authorizers are not validated locally")
		return nil, nil
	}

	identities := make([]string, 0, len(a.IdentitySources))
	for _, source := range identitySources(a, req.Route.EventType) {
		v, ok := resolveIdentity(source, req.HTTP, req.Event.StageVariables)
		if !ok {
			e.log.WithFields(logrus.Fields{"authorizer": a.Name, "source": source}).
				Info("identity source missing, request is unauthorized")
			return nil, ErrUnauthorized
		}
		if v != "" {
			identities = append(identities, v)
		}
	}

	if a.Type == wetwire.AuthorizerToken && a.ValidationExpression != "" {
		re, err := regexp.Compile("^(?:" + a.ValidationExpression + ")$")
		if err != nil {
			return nil, fmt.Errorf("authorizer %s: validation expression: %w", a.Name, err)
		}
		if len(identities) == 0 || !re.MatchString(identities[0]) {
			return nil, ErrUnauthorized
		}
	}

	payload, err := e.payload(a, req, identities)
	if err != nil {
		return nil, err
	}

	log := e.log.WithFields(logrus.Fields{"authorizer": a.Name, "function": a.FunctionName})
	log.Debug("invoking lambda authorizer")
	out, err := e.invoke(ctx, a.FunctionName, payload)
	if err != nil {
		return nil, fmt.Errorf("authorizer %s: %w", a.Name, err)
	}

	if e.usesSimpleResponse(a, req.Route) {
		return parseSimple(out)
	}
	return parsePolicy(out, MethodArn(req))
}

// usesSimpleResponse is true for HTTP API authorizers on payload 2.0 that opted into simple responses.
func (e *Evaluator) usesSimpleResponse(a *wetwire.Authorizer, route wetwire.Route) bool {
	return route.EventType == wetwire.EventTypeHTTP && payloadV2(a) && a.EnableSimpleResponses
}

func payloadV2(a *wetwire.Authorizer) bool {
	return a.PayloadFormatVersion == "" || a.PayloadFormatVersion == "2.0"
}

func (e *Evaluator) payload(a *wetwire.Authorizer, req Request, identities []string) ([]byte, error) {
	arn := MethodArn(req)
	if a.Type == wetwire.AuthorizerToken {
		token := ""
		if len(identities) > 0 {
			token = identities[0]
		}
		return json.Marshal(events.APIGatewayCustomAuthorizerRequest{
			Type:               string(wetwire.AuthorizerToken),
			AuthorizationToken: token,
			MethodArn:          arn,
		})
	}

	if req.Route.EventType == wetwire.EventTypeHTTP && payloadV2(a) {
		ev, err := e.builder.V2(req.HTTP, req.Body, req.Route, req.Event)
		if err != nil {
			return nil, err
		}
		return json.Marshal(events.APIGatewayV2CustomAuthorizerV2Request{
			Version:               "2.0",
			Type:                  string(wetwire.AuthorizerRequest),
			RouteArn:              arn,
			IdentitySource:        identities,
			RouteKey:              ev.RouteKey,
			RawPath:               ev.RawPath,
			RawQueryString:        ev.RawQueryString,
			Cookies:               ev.Cookies,
			Headers:               ev.Headers,
			QueryStringParameters: ev.QueryStringParameters,
			RequestContext:        ev.RequestContext,
			PathParameters:        ev.PathParameters,
			StageVariables:        ev.StageVariables,
		})
	}

	ev, err := e.builder.V1(req.HTTP, req.Body, req.Route, req.Event)
	if err != nil {
		return nil, err
	}
	rc := ev.RequestContext
	return json.Marshal(events.APIGatewayCustomAuthorizerRequestTypeRequest{
		Type:                            string(wetwire.AuthorizerRequest),
		MethodArn:                       arn,
		Resource:                        ev.Resource,
		Path:                            ev.Path,
		HTTPMethod:                      ev.HTTPMethod,
		Headers:                         ev.Headers,
		MultiValueHeaders:               ev.MultiValueHeaders,
		QueryStringParameters:           ev.QueryStringParameters,
		MultiValueQueryStringParameters: ev.MultiValueQueryStringParameters,
		PathParameters:                  ev.PathParameters,
		StageVariables:                  ev.StageVariables,
		RequestContext: events.APIGatewayCustomAuthorizerRequestTypeRequestContext{
			Path:         rc.Path,
			AccountID:    rc.AccountID,
			ResourceID:   rc.ResourceID,
			Stage:        rc.Stage,
			RequestID:    rc.RequestID,
			ResourcePath: rc.ResourcePath,
			HTTPMethod:   rc.HTTPMethod,
			APIID:        rc.APIID,
			Identity: events.APIGatewayCustomAuthorizerRequestTypeRequestIdentity{
				SourceIP: rc.Identity.SourceIP,
			},
		},
	})
}

// MethodArn is the execute-api ARN of the request, as passed to authorizers.
func MethodArn(req Request) string {
	stage := event.StageName(req.Route, req.Event.StageName)
	return fmt.Sprintf("arn:aws:execute-api:%s:%s:%s/%s/%s/%s",
		event.Region, event.AccountID, event.APIID, stage, req.HTTP.Method,
		strings.TrimPrefix(req.HTTP.URL.Path, "/"))
}

func parseSimple(out []byte) (*Result, error) {
	var resp simpleResponse
	if err := json.Unmarshal(out, &resp); err != nil || resp.IsAuthorized == nil {
		return nil, ErrInvalidResponse
	}
	if !*resp.IsAuthorized {
		return nil, ErrForbidden
	}
	return &Result{Context: resp.Context}, nil
}

func parsePolicy(out []byte, methodArn string) (*Result, error) {
	var resp policyResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, ErrInvalidResponse
	}
	if resp.PrincipalID == nil || resp.PolicyDocument == nil || len(resp.PolicyDocument.Statement) == 0 {
		return nil, ErrInvalidResponse
	}
	if !resp.PolicyDocument.allows(methodArn) {
		return nil, ErrForbidden
	}
	return &Result{PrincipalID: *resp.PrincipalID, Context: resp.Context}, nil
}

// ApplyV1 injects the authorizer context into a payload 1.0 event.
func (r *Result) ApplyV1(ev *events.APIGatewayProxyRequest) {
	if r == nil {
		return
	}
	authCtx := make(map[string]any, len(r.Context)+1)
	for k, v := range r.Context {
		authCtx[k] = v
	}
	if r.PrincipalID != "" {
		authCtx["principalId"] = r.PrincipalID
	}
	ev.RequestContext.Authorizer = authCtx
}

// ApplyV2 injects the authorizer context into a payload 2.0 event.
func (r *Result) ApplyV2(ev *events.APIGatewayV2HTTPRequest) {
	if r == nil {
		return
	}
	lambdaCtx := make(map[string]any, len(r.Context))
	for k, v := range r.Context {
		lambdaCtx[k] = v
	}
	ev.RequestContext.Authorizer = &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
		Lambda: lambdaCtx,
	}
}
