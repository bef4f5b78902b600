package wetwire_local

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMethods(t *testing.T) {
	tests := []struct {
		name     string
		methods  []string
		expected []string
	}{
		{
			name:     "lower case",
			methods:  []string{"get", "post"},
			expected: []string{"GET", "POST"},
		},
		{
			name:     "any expands",
			methods:  []string{"any"},
			expected: AnyHTTPMethods,
		},
		{
			name:     "catch-all extension kept",
			methods:  []string{AnyMethodExtension},
			expected: []string{AnyMethodExtension},
		},
		{
			name:     "blank dropped",
			methods:  []string{" ", "put"},
			expected: []string{"PUT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeMethods(tt.methods))
		})
	}
}

func TestRoute_UsesV2Payload(t *testing.T) {
	assert.True(t, Route{EventType: EventTypeHTTP}.UsesV2Payload())
	assert.True(t, Route{EventType: EventTypeHTTP, PayloadFormatVersion: "2.0"}.UsesV2Payload())
	assert.False(t, Route{EventType: EventTypeHTTP, PayloadFormatVersion: "1.0"}.UsesV2Payload())
	assert.False(t, Route{EventType: EventTypeRest}.UsesV2Payload())
}

func TestRoute_Key(t *testing.T) {
	a := Route{StackPath: "A", FunctionName: "Fn", Path: "/x", OperationName: "op", Methods: []string{"GET"}}
	b := Route{StackPath: "A", FunctionName: "Fn", Path: "/x", OperationName: "op", Methods: []string{"POST"}}
	c := Route{StackPath: "", FunctionName: "Fn", Path: "/x", OperationName: "op"}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestRoute_CloneCopiesAuthorizer(t *testing.T) {
	auth := &Authorizer{Name: "Auth", FunctionName: "AuthFn", IdentitySources: []string{"method.request.header.Authorization"}}
	api := NewApi([]Route{{Methods: []string{"GET"}, Path: "/a", FunctionName: "F", AuthorizerName: "Auth", Authorizer: auth}}, nil, nil, "", nil)

	got := api.Routes()[0].Authorizer
	require.NotNil(t, got)
	got.FunctionName = "Other"
	got.IdentitySources[0] = "changed"

	again := api.Routes()[0].Authorizer
	assert.Equal(t, "AuthFn", again.FunctionName)
	assert.Equal(t, []string{"method.request.header.Authorization"}, again.IdentitySources)
	assert.Equal(t, "AuthFn", auth.FunctionName)
}

func TestCors_Headers(t *testing.T) {
	age := 600
	cors := &Cors{
		AllowOrigin:      "*",
		AllowMethods:     "GET,OPTIONS",
		AllowCredentials: "true",
		MaxAge:           &age,
	}

	headers := cors.Headers()
	assert.Equal(t, map[string]string{
		"Access-Control-Allow-Origin":      "*",
		"Access-Control-Allow-Methods":     "GET,OPTIONS",
		"Access-Control-Allow-Credentials": "true",
		"Access-Control-Max-Age":           "600",
	}, headers)

	var nilCors *Cors
	assert.Nil(t, nilCors.Headers())
}

func TestApi_IsImmutable(t *testing.T) {
	routes := []Route{{Methods: []string{"GET"}, Path: "/a", FunctionName: "Fn"}}
	vars := map[string]string{"env": "dev"}
	api := NewApi(routes, &Cors{AllowOrigin: "*"}, []string{"image/png", "image/gif", "image/png"}, "Prod", vars)

	routes[0].Methods[0] = "DELETE"
	vars["env"] = "prod"

	got := api.Routes()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"GET"}, got[0].Methods)

	got[0].Methods[0] = "PUT"
	assert.Equal(t, []string{"GET"}, api.Routes()[0].Methods)

	assert.Equal(t, "dev", api.StageVariables()["env"])
	assert.Equal(t, []string{"image/gif", "image/png"}, api.BinaryMediaTypes())

	api.Cors().AllowOrigin = "example.com"
	assert.Equal(t, "*", api.Cors().AllowOrigin)
}

func TestApi_Entries(t *testing.T) {
	api := NewApi([]Route{
		{Methods: []string{"POST", "GET"}, Path: "/b", FunctionName: "B", EventType: EventTypeRest},
		{Methods: []string{"GET"}, Path: "/a", FunctionName: "A", EventType: EventTypeHTTP, AuthorizerName: "Auth"},
	}, nil, nil, "", nil)

	entries := api.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "/a", entries[0].Path)
	assert.Equal(t, "Auth", entries[0].Authorizer)
	assert.Equal(t, "GET", entries[1].Method)
	assert.Equal(t, "POST", entries[2].Method)
}
