package authorizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/event"
)

type recorder struct {
	function string
	payload  map[string]any
	response string
	err      error
}

func (r *recorder) invoke(_ context.Context, name string, payload []byte) ([]byte, error) {
	r.function = name
	if err := json.Unmarshal(payload, &r.payload); err != nil {
		return nil, err
	}
	return []byte(r.response), r.err
}

const allowPolicy = `{
  "principalId": "user-1",
  "policyDocument": {
    "Version": "2012-10-17",
    "Statement": [{"Action": "execute-api:Invoke", "Effect": "Allow", "Resource": "arn:aws:execute-api:*:*:*/*/GET/*"}]
  },
  "context": {"tenant": "acme"}
}`

func restRoute(a *wetwire.Authorizer) wetwire.Route {
	return wetwire.Route{
		Methods:      []string{"GET"},
		Path:         "/pets/{id}",
		FunctionName: "PetsFunction",
		EventType:    wetwire.EventTypeRest,
		Authorizer:   a,
	}
}

func TestAuthorize_NoAuthorizer(t *testing.T) {
	e := NewEvaluator(nil, nil, nil)
	res, err := e.Authorize(context.Background(), Request{HTTP: httptest.NewRequest("GET", "/", nil)})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestAuthorize_JWTPasses(t *testing.T) {
	e := NewEvaluator(nil, nil, nil)
	route := restRoute(&wetwire.Authorizer{Name: "Jwt", Type: wetwire.AuthorizerJWT})
	res, err := e.Authorize(context.Background(), Request{HTTP: httptest.NewRequest("GET", "/", nil), Route: route})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestAuthorize_Token(t *testing.T) {
	rec := &recorder{response: allowPolicy}
	e := NewEvaluator(rec.invoke, nil, nil)
	auth := &wetwire.Authorizer{Name: "TokenAuth", Type: wetwire.AuthorizerToken, FunctionName: "AuthFunction"}

	r := httptest.NewRequest("GET", "/pets/7", nil)
	r.Header.Set("Authorization", "Bearer abc")

	res, err := e.Authorize(context.Background(), Request{HTTP: r, Route: restRoute(auth)})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "AuthFunction", rec.function)
	assert.Equal(t, "TOKEN", rec.payload["type"])
	assert.Equal(t, "Bearer abc", rec.payload["authorizationToken"])
	assert.Equal(t, "arn:aws:execute-api:us-east-1:123456789012:1234567890/Prod/GET/pets/7", rec.payload["methodArn"])
	assert.Equal(t, "user-1", res.PrincipalID)
	assert.Equal(t, "acme", res.Context["tenant"])
}

func TestAuthorize_MissingIdentity(t *testing.T) {
	rec := &recorder{response: allowPolicy}
	e := NewEvaluator(rec.invoke, nil, nil)
	auth := &wetwire.Authorizer{Name: "TokenAuth", Type: wetwire.AuthorizerToken, FunctionName: "AuthFunction"}

	_, err := e.Authorize(context.Background(), Request{HTTP: httptest.NewRequest("GET", "/pets/7", nil), Route: restRoute(auth)})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, rec.function, "authorizer must not be invoked")
}

func TestAuthorize_ValidationExpression(t *testing.T) {
	rec := &recorder{response: allowPolicy}
	e := NewEvaluator(rec.invoke, nil, nil)
	auth := &wetwire.Authorizer{
		Name:                 "TokenAuth",
		Type:                 wetwire.AuthorizerToken,
		FunctionName:         "AuthFunction",
		ValidationExpression: "Bearer [a-z]+",
	}

	r := httptest.NewRequest("GET", "/pets/7", nil)
	r.Header.Set("Authorization", "Bearer 123")
	_, err := e.Authorize(context.Background(), Request{HTTP: r, Route: restRoute(auth)})
	assert.ErrorIs(t, err, ErrUnauthorized)

	r.Header.Set("Authorization", "Bearer abc")
	_, err = e.Authorize(context.Background(), Request{HTTP: r, Route: restRoute(auth)})
	assert.NoError(t, err)
}

func TestAuthorize_RequestV1(t *testing.T) {
	rec := &recorder{response: allowPolicy}
	e := NewEvaluator(rec.invoke, nil, nil)
	auth := &wetwire.Authorizer{
		Name:            "ReqAuth",
		Type:            wetwire.AuthorizerRequest,
		FunctionName:    "AuthFunction",
		IdentitySources: []string{"method.request.querystring.key", "stageVariables.env", "context.requestId"},
	}

	r := httptest.NewRequest("GET", "/pets/7?key=k1", nil)
	req := Request{
		HTTP:  r,
		Route: restRoute(auth),
		Event: event.Context{StageVariables: map[string]string{"env": "dev"}},
	}
	_, err := e.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "REQUEST", rec.payload["type"])
	assert.Equal(t, "/pets/{id}", rec.payload["resource"])

	req.Event.StageVariables = nil
	_, err = e.Authorize(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthorize_PolicyDeny(t *testing.T) {
	rec := &recorder{response: `{
	  "principalId": "user-1",
	  "policyDocument": {"Statement": [
	    {"Action": ["execute-api:*"], "Effect": "Allow", "Resource": ["*"]},
	    {"Action": "execute-api:Invoke", "Effect": "Deny", "Resource": "arn:aws:execute-api:us-east-1:123456789012:1234567890/Prod/GET/pets/*"}
	  ]}
	}`}
	e := NewEvaluator(rec.invoke, nil, nil)
	auth := &wetwire.Authorizer{Name: "TokenAuth", Type: wetwire.AuthorizerToken, FunctionName: "AuthFunction"}

	r := httptest.NewRequest("GET", "/pets/7", nil)
	r.Header.Set("Authorization", "t")
	_, err := e.Authorize(context.Background(), Request{HTTP: r, Route: restRoute(auth)})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorize_PolicyNoMatchingAllow(t *testing.T) {
	rec := &recorder{response: `{
	  "principalId": "user-1",
	  "policyDocument": {"Statement": [{"Action": "execute-api:Invoke", "Effect": "Allow", "Resource": "arn:aws:execute-api:*:*:*/*/POST/*"}]}
	}`}
	e := NewEvaluator(rec.invoke, nil, nil)
	auth := &wetwire.Authorizer{Name: "TokenAuth", Type: wetwire.AuthorizerToken, FunctionName: "AuthFunction"}

	r := httptest.NewRequest("GET", "/pets/7", nil)
	r.Header.Set("Authorization", "t")
	_, err := e.Authorize(context.Background(), Request{HTTP: r, Route: restRoute(auth)})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorize_InvalidResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "not json", response: "oops"},
		{name: "missing principal", response: `{"policyDocument": {"Statement": [{"Action": "*", "Effect": "Allow", "Resource": "*"}]}}`},
		{name: "missing policy", response: `{"principalId": "u"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{response: tt.response}
			e := NewEvaluator(rec.invoke, nil, nil)
			auth := &wetwire.Authorizer{Name: "TokenAuth", Type: wetwire.AuthorizerToken, FunctionName: "AuthFunction"}
			r := httptest.NewRequest("GET", "/pets/7", nil)
			r.Header.Set("Authorization", "t")
			_, err := e.Authorize(context.Background(), Request{HTTP: r, Route: restRoute(auth)})
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestAuthorize_InvokeError(t *testing.T) {
	rec := &recorder{response: "", err: errors.New("boom")}
	e := NewEvaluator(rec.invoke, nil, nil)
	auth := &wetwire.Authorizer{Name: "TokenAuth", Type: wetwire.AuthorizerToken, FunctionName: "AuthFunction"}
	r := httptest.NewRequest("GET", "/pets/7", nil)
	r.Header.Set("Authorization", "t")
	_, err := e.Authorize(context.Background(), Request{HTTP: r, Route: restRoute(auth)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestAuthorize_HTTPSimpleResponse(t *testing.T) {
	auth := &wetwire.Authorizer{
		Name:                  "Simple",
		Type:                  wetwire.AuthorizerRequest,
		FunctionName:          "AuthFunction",
		PayloadFormatVersion:  "2.0",
		EnableSimpleResponses: true,
		IdentitySources:       []string{"$request.header.X-Api-Key"},
	}
	route := wetwire.Route{Methods: []string{"GET"}, Path: "/items", FunctionName: "Items", EventType: wetwire.EventTypeHTTP, Authorizer: auth}

	r := httptest.NewRequest("GET", "/items", nil)
	r.Header.Set("X-Api-Key", "secret")

	rec := &recorder{response: `{"isAuthorized": true, "context": {"role": "admin"}}`}
	res, err := NewEvaluator(rec.invoke, nil, nil).Authorize(context.Background(), Request{HTTP: r, Route: route})
	require.NoError(t, err)
	assert.Equal(t, "admin", res.Context["role"])
	assert.Equal(t, "2.0", rec.payload["version"])
	assert.Equal(t, []any{"secret"}, rec.payload["identitySource"])
	assert.Equal(t, "arn:aws:execute-api:us-east-1:123456789012:1234567890/$default/GET/items", rec.payload["routeArn"])

	rec = &recorder{response: `{"isAuthorized": false}`}
	_, err = NewEvaluator(rec.invoke, nil, nil).Authorize(context.Background(), Request{HTTP: r, Route: route})
	assert.ErrorIs(t, err, ErrForbidden)

	rec = &recorder{response: `{"context": {}}`}
	_, err = NewEvaluator(rec.invoke, nil, nil).Authorize(context.Background(), Request{HTTP: r, Route: route})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestResult_Apply(t *testing.T) {
	res := &Result{PrincipalID: "user-1", Context: map[string]any{"k": "v"}}

	v1 := &events.APIGatewayProxyRequest{}
	res.ApplyV1(v1)
	assert.Equal(t, map[string]any{"k": "v", "principalId": "user-1"}, v1.RequestContext.Authorizer)

	v2 := &events.APIGatewayV2HTTPRequest{}
	res.ApplyV2(v2)
	require.NotNil(t, v2.RequestContext.Authorizer)
	assert.Equal(t, map[string]any{"k": "v"}, v2.RequestContext.Authorizer.Lambda)

	var none *Result
	none.ApplyV1(v1)
	assert.NotNil(t, v1.RequestContext.Authorizer)
}

func TestGlobMatch(t *testing.T) {
	assert.True(t, globMatch("*", "anything/at/all"))
	assert.True(t, globMatch("arn:aws:execute-api:*:*:*/Prod/GET/pets/?", "arn:aws:execute-api:us-east-1:1:2/Prod/GET/pets/7"))
	assert.False(t, globMatch("arn:aws:execute-api:*:*:*/Prod/POST/*", "arn:aws:execute-api:us-east-1:1:2/Prod/GET/pets"))
	assert.True(t, globMatch("execute-api:invoke", "execute-api:Invoke"))
}
