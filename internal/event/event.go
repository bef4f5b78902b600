// Package event builds the API Gateway proxy events a Lambda function
// receives: payload format 1.0 (REST APIs) and 2.0 (HTTP APIs).
package event

import (
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/mediatype"
)

// ErrBodyNotUTF8 is returned for a non-binary request body that is not valid UTF-8.
var ErrBodyNotUTF8 = errors.New("request body is not valid UTF-8")

// Fixed identifiers of the emulated API.
const (
	AccountID  = "123456789012"
	APIID      = "1234567890"
	ResourceID = "123456"
	Region     = "us-east-1"

	defaultRestStage = "Prod"
	defaultHTTPStage = "$default"
	defaultUserAgent = "Custom User Agent String"
	requestTimeFmt   = "02/Jan/2006:15:04:05 +0000"
)

// Context carries the per-request values that do not come from the HTTP request.
type Context struct {
	StageName      string
	StageVariables map[string]string
	// BinaryTypes are the route's and the API's binary media types.
	BinaryTypes    []string
	PathParameters map[string]string
	// Port is the port the server listens on, used for X-Forwarded-Port.
	Port string
}

// Builder creates events. The zero value is not usable; call NewBuilder.
type Builder struct {
	now   func() time.Time
	newID func() string
}

// NewBuilder returns a Builder using the wall clock and random request ids.
func NewBuilder() *Builder {
	return &Builder{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Body encodes a request body for the event: base64 when the Content-Type is
// binary, otherwise the body must be valid UTF-8.
func Body(body []byte, contentType string, binaryTypes []string) (string, bool, error) {
	if len(body) == 0 {
		return "", false, nil
	}
	if mediatype.IsBinary(binaryTypes, contentType) {
		return base64.StdEncoding.EncodeToString(body), true, nil
	}
	if !utf8.Valid(body) {
		return "", false, ErrBodyNotUTF8
	}
	return string(body), false, nil
}

// StageName returns the stage of a route's event, applying the default of its API type.
func StageName(route wetwire.Route, configured string) string {
	if configured != "" {
		return configured
	}
	if route.EventType == wetwire.EventTypeHTTP {
		return defaultHTTPStage
	}
	return defaultRestStage
}

// V1 builds a payload format 1.0 event.
func (b *Builder) V1(r *http.Request, body []byte, route wetwire.Route, ctx Context) (*events.APIGatewayProxyRequest, error) {
	encoded, isBase64, err := Body(body, r.Header.Get("Content-Type"), ctx.BinaryTypes)
	if err != nil {
		return nil, err
	}

	headers, multiHeaders := v1Headers(r, ctx.Port)
	query, multiQuery := v1Query(r)
	now := b.now().UTC()
	stage := StageName(route, ctx.StageName)

	return &events.APIGatewayProxyRequest{
		Resource:                        route.Path,
		Path:                            r.URL.Path,
		HTTPMethod:                      r.Method,
		Headers:                         headers,
		MultiValueHeaders:               multiHeaders,
		QueryStringParameters:           query,
		MultiValueQueryStringParameters: multiQuery,
		PathParameters:                  nilIfEmpty(ctx.PathParameters),
		StageVariables:                  nilIfEmpty(ctx.StageVariables),
		Body:                            encoded,
		IsBase64Encoded:                 isBase64,
		RequestContext: events.APIGatewayProxyRequestContext{
			AccountID:         AccountID,
			ResourceID:        ResourceID,
			OperationName:     route.OperationName,
			Stage:             stage,
			DomainName:        r.Host,
			RequestID:         b.newID(),
			ExtendedRequestID: b.newID(),
			Protocol:          r.Proto,
			Identity: events.APIGatewayRequestIdentity{
				SourceIP:  sourceIP(r),
				UserAgent: userAgent(r),
			},
			ResourcePath:     route.Path,
			Path:             r.URL.Path,
			HTTPMethod:       r.Method,
			RequestTime:      now.Format(requestTimeFmt),
			RequestTimeEpoch: now.UnixMilli(),
			APIID:            APIID,
		},
	}, nil
}

// V2 builds a payload format 2.0 event.
func (b *Builder) V2(r *http.Request, body []byte, route wetwire.Route, ctx Context) (*events.APIGatewayV2HTTPRequest, error) {
	encoded, isBase64, err := Body(body, r.Header.Get("Content-Type"), ctx.BinaryTypes)
	if err != nil {
		return nil, err
	}

	now := b.now().UTC()
	routeKey := RouteKey(r.Method, route)
	return &events.APIGatewayV2HTTPRequest{
		Version:               "2.0",
		RouteKey:              routeKey,
		RawPath:               r.URL.Path,
		RawQueryString:        r.URL.RawQuery,
		Cookies:               cookies(r),
		Headers:               v2Headers(r, ctx.Port),
		QueryStringParameters: v2Query(r),
		PathParameters:        nilIfEmpty(ctx.PathParameters),
		StageVariables:        nilIfEmpty(ctx.StageVariables),
		Body:                  encoded,
		IsBase64Encoded:       isBase64,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			RouteKey:   routeKey,
			AccountID:  AccountID,
			Stage:      StageName(route, ctx.StageName),
			RequestID:  b.newID(),
			APIID:      APIID,
			DomainName: r.Host,
			Time:       now.Format(requestTimeFmt),
			TimeEpoch:  now.UnixMilli(),
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method:    r.Method,
				Path:      r.URL.Path,
				Protocol:  r.Proto,
				SourceIP:  sourceIP(r),
				UserAgent: userAgent(r),
			},
		},
	}, nil
}

// RouteKey is "$default" for the catch-all route and "METHOD /path" otherwise.
func RouteKey(method string, route wetwire.Route) string {
	if route.IsDefault() {
		return wetwire.DefaultRoutePath
	}
	return method + " " + route.Path
}

func v1Headers(r *http.Request, port string) (map[string]string, map[string][]string) {
	multi := make(map[string][]string, len(r.Header)+3)
	for k, values := range r.Header {
		multi[k] = append([]string(nil), values...)
	}
	for k, v := range forwardedHeaders(r, port) {
		if _, ok := multi[k]; !ok {
			multi[k] = []string{v}
		}
	}
	single := make(map[string]string, len(multi))
	for k, values := range multi {
		single[k] = values[len(values)-1]
	}
	return single, multi
}

func v2Headers(r *http.Request, port string) map[string]string {
	out := make(map[string]string, len(r.Header)+3)
	for k, values := range r.Header {
		if strings.EqualFold(k, "Cookie") {
			continue
		}
		out[strings.ToLower(k)] = strings.Join(values, ",")
	}
	for k, v := range forwardedHeaders(r, port) {
		if _, ok := out[strings.ToLower(k)]; !ok {
			out[strings.ToLower(k)] = v
		}
	}
	return out
}

// forwardedHeaders are the headers API Gateway adds in front of the function.
func forwardedHeaders(r *http.Request, port string) map[string]string {
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	if port == "" {
		if _, p, err := net.SplitHostPort(r.Host); err == nil {
			port = p
		} else if proto == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	headers := map[string]string{
		"X-Forwarded-Proto": proto,
		"X-Forwarded-Port":  port,
	}
	if r.Host != "" {
		headers["Host"] = r.Host
	}
	return headers
}

func v1Query(r *http.Request) (map[string]string, map[string][]string) {
	values := r.URL.Query()
	if len(values) == 0 {
		return nil, nil
	}
	single := make(map[string]string, len(values))
	multi := make(map[string][]string, len(values))
	for k, v := range values {
		single[k] = v[len(v)-1]
		multi[k] = append([]string(nil), v...)
	}
	return single, multi
}

func v2Query(r *http.Request) map[string]string {
	values := r.URL.Query()
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = strings.Join(v, ",")
	}
	return out
}

func cookies(r *http.Request) []string {
	var out []string
	for _, line := range r.Header.Values("Cookie") {
		for _, c := range strings.Split(line, ";") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

func sourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func userAgent(r *http.Request) string {
	if ua := r.UserAgent(); ua != "" {
		return ua
	}
	return defaultUserAgent
}

func nilIfEmpty(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
