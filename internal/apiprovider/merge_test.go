package apiprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wetwire "github.com/lex00/wetwire-aws-local"
)

func TestMerge_ImplicitWinsOverExplicit(t *testing.T) {
	st := newStack("",
		resource("MyApi", TypeServerlessApi, map[string]any{
			"StageName": "Prod",
			"DefinitionBody": map[string]any{
				"swagger": "2.0",
				"paths": map[string]any{
					"/x": map[string]any{
						"get": map[string]any{"x-amazon-apigateway-integration": proxyIntegration("F1")},
					},
				},
			},
		}),
		function("F2", map[string]any{"Get": apiEvent("/x", "get", nil)}),
	)

	api := buildApi(t, st)
	assert.Equal(t, []string{"F2"}, functionsAt(api, "/x", "GET"))
}

func TestMerge_ImplicitHttpEventInheritsPayloadVersion(t *testing.T) {
	integration := proxyIntegration("F1")
	integration["payloadFormatVersion"] = "1.0"
	st := newStack("",
		resource("MyHttpApi", TypeServerlessHttpApi, map[string]any{
			"DefinitionBody": map[string]any{
				"openapi": "3.0.1",
				"paths": map[string]any{
					"/x": map[string]any{
						"get": map[string]any{"x-amazon-apigateway-integration": integration},
					},
				},
			},
		}),
		function("F2", map[string]any{
			"Get": map[string]any{"Type": "HttpApi", "Properties": map[string]any{"Path": "/x", "Method": "get"}},
		}),
	)

	api := buildApi(t, st)

	routes := api.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "F2", routes[0].FunctionName)
	assert.Equal(t, "1.0", routes[0].PayloadFormatVersion)
	assert.False(t, routes[0].UsesV2Payload())
}

func TestPayloadVersion(t *testing.T) {
	assert.Equal(t, "", payloadVersion(nil))
	assert.Equal(t, "1.0", payloadVersion("1.0"))
	assert.Equal(t, "2.0", payloadVersion(2.0))
	assert.Equal(t, "1.0", payloadVersion(1))
}

func TestMerge_RootStackWinsOverNested(t *testing.T) {
	routes := []ownedRoute{
		{apiID: "A/B/Api", route: wetwire.Route{Methods: []string{"GET"}, Path: "/x", FunctionName: "A/B/F", StackPath: "A/B"}},
		{apiID: "Api", route: wetwire.Route{Methods: []string{"GET"}, Path: "/x", FunctionName: "F", StackPath: ""}},
	}
	// Declaration order must not matter.
	for _, ordered := range [][]ownedRoute{routes, {routes[1], routes[0]}} {
		merged := mergeRoutes(ordered)
		require.Len(t, merged, 1)
		assert.Equal(t, "F", merged[0].route.FunctionName)
	}
}

func TestMerge_KeepsOnlyWonMethods(t *testing.T) {
	routes := []ownedRoute{
		{apiID: "Api", route: wetwire.Route{Methods: []string{"GET", "POST"}, Path: "/x", FunctionName: "Explicit", PayloadFormatVersion: "1.0"}},
		{apiID: ImplicitHttpApiID, route: wetwire.Route{Methods: []string{"GET"}, Path: "/x", FunctionName: "Implicit"}},
	}
	merged := mergeRoutes(routes)
	require.Len(t, merged, 2)

	assert.Equal(t, "Explicit", merged[0].route.FunctionName)
	assert.Equal(t, []string{"POST"}, merged[0].route.Methods)
	assert.Equal(t, "Implicit", merged[1].route.FunctionName)
	assert.Equal(t, "1.0", merged[1].route.PayloadFormatVersion, "payload version is carried forward")
}

func TestMerge_Idempotent(t *testing.T) {
	routes := []ownedRoute{
		{apiID: "Api", route: wetwire.Route{Methods: []string{"GET", "POST"}, Path: "/a", FunctionName: "F1"}},
		{apiID: "A/Api", route: wetwire.Route{Methods: []string{"GET"}, Path: "/a", FunctionName: "F2", StackPath: "A"}},
		{apiID: ImplicitRestApiID, route: wetwire.Route{Methods: []string{"POST"}, Path: "/a", FunctionName: "F3"}},
		{apiID: ImplicitRestApiID, route: wetwire.Route{Methods: []string{"DELETE"}, Path: "/b", FunctionName: "F4"}},
	}
	once := mergeRoutes(routes)
	twice := mergeRoutes(once)
	assert.Equal(t, once, twice)
}

func TestDedupe(t *testing.T) {
	routes := []wetwire.Route{
		{Methods: []string{"POST"}, Path: "/a", FunctionName: "F", OperationName: "op"},
		{Methods: []string{"GET"}, Path: "/b", FunctionName: "G"},
		{Methods: []string{"DELETE", "GET"}, Path: "/a", FunctionName: "F", OperationName: "op", PayloadFormatVersion: "2.0"},
	}

	once := dedupe(routes)
	require.Len(t, once, 2)
	assert.Equal(t, "/a", once[0].Path)
	assert.Equal(t, []string{"DELETE", "GET", "POST"}, once[0].Methods)
	assert.Equal(t, "2.0", once[0].PayloadFormatVersion)
	assert.Equal(t, "/b", once[1].Path)

	assert.Equal(t, once, dedupe(once))
}

func TestAddCorsOptions_Idempotent(t *testing.T) {
	routes := []wetwire.Route{
		{Methods: []string{"GET"}, Path: "/a"},
		{Methods: []string{"OPTIONS", "POST"}, Path: "/b"},
	}
	once := addCorsOptions(routes)
	assert.Equal(t, []string{"GET", "OPTIONS"}, once[0].Methods)
	assert.Equal(t, []string{"OPTIONS", "POST"}, once[1].Methods)

	twice := addCorsOptions(once)
	assert.Equal(t, once, twice)
}
