package apiprovider

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wetwire "github.com/lex00/wetwire-aws-local"
)

func rootResource(api string) map[string]any {
	return map[string]any{"Fn::GetAtt": []any{api, "RootResourceId"}}
}

func TestParseRouteKey(t *testing.T) {
	method, path, err := ParseRouteKey("Route", "$default")
	require.NoError(t, err)
	assert.Equal(t, wetwire.AnyMethodExtension, method)
	assert.Equal(t, "$default", path)

	method, path, err = ParseRouteKey("Route", "GET /items")
	require.NoError(t, err)
	assert.Equal(t, "GET", method)
	assert.Equal(t, "/items", path)

	for _, bad := range []string{"GET", "GET  /items", "/items", "GET items"} {
		_, _, err := ParseRouteKey("Route", bad)
		var te *TemplateError
		assert.ErrorAs(t, err, &te, bad)
	}
}

func TestCFN_RestApiMethods(t *testing.T) {
	st := newStack("",
		resource("Api", TypeRestApi, map[string]any{"Name": "api"}),
		resource("Users", TypeResource, map[string]any{
			"RestApiId": "Api", "ParentId": rootResource("Api"), "PathPart": "users",
		}),
		resource("User", TypeResource, map[string]any{
			"RestApiId": "Api", "ParentId": "Users", "PathPart": "{id}",
		}),
		resource("GetUser", TypeMethod, map[string]any{
			"RestApiId":     "Api",
			"ResourceId":    "User",
			"HttpMethod":    "GET",
			"OperationName": "getUser",
			"Integration": map[string]any{
				"Type":            "AWS_PROXY",
				"Uri":             "arn:aws:apigateway:us-east-1:lambda:path/2015-03-31/functions/${UserFn.Arn}/invocations",
				"ContentHandling": "CONVERT_TO_BINARY",
				"ContentType":     "image/png",
			},
		}),
		resource("RootAny", TypeMethod, map[string]any{
			"RestApiId":  "Api",
			"ResourceId": rootResource("Api"),
			"HttpMethod": "ANY",
			"Integration": map[string]any{
				"Type": "AWS_PROXY",
				"Uri":  map[string]any{"Fn::GetAtt": []any{"RootFn", "Arn"}},
			},
		}),
		resource("Options", TypeMethod, map[string]any{
			"RestApiId":  "Api",
			"ResourceId": "Users",
			"HttpMethod": "OPTIONS",
			"Integration": map[string]any{
				"Type": "MOCK",
				"IntegrationResponses": []any{map[string]any{
					"StatusCode": "200",
					"ResponseParameters": map[string]any{
						"method.response.header.Access-Control-Allow-Origin": "'*'",
					},
				}},
			},
		}),
		resource("Stage", TypeStage, map[string]any{
			"RestApiId": "Api", "StageName": "dev", "Variables": map[string]any{"v": "1"},
		}),
	)

	api := buildApi(t, st)

	assert.Equal(t, []string{"UserFn"}, functionsAt(api, "/users/{id}", "GET"))
	assert.Equal(t, []string{"RootFn"}, functionsAt(api, "/", "PATCH"))
	assert.Equal(t, []string{"image/png"}, api.BinaryMediaTypes())
	assert.Equal(t, "dev", api.StageName())
	assert.Equal(t, map[string]string{"v": "1"}, api.StageVariables())

	require.NotNil(t, api.Cors())
	assert.Equal(t, "*", api.Cors().AllowOrigin)
	for _, r := range api.Routes() {
		assert.True(t, r.HasMethod("OPTIONS"), r.Path)
	}
}

func TestCFN_SamePathOnTwoRestApis(t *testing.T) {
	rootGet := func(api, fn string) map[string]any {
		return map[string]any{
			"RestApiId":  api,
			"ResourceId": rootResource(api),
			"HttpMethod": "GET",
			"Integration": map[string]any{
				"Type": "AWS_PROXY",
				"Uri":  map[string]any{"Fn::GetAtt": []any{fn, "Arn"}},
			},
		}
	}
	st := newStack("",
		resource("Api1", TypeRestApi, map[string]any{"Name": "one"}),
		resource("Api2", TypeRestApi, map[string]any{"Name": "two"}),
		resource("Get1", TypeMethod, rootGet("Api1", "F1")),
		resource("Get2", TypeMethod, rootGet("Api2", "F2")),
	)

	api := buildApi(t, st)

	assert.Equal(t, []string{"F2"}, functionsAt(api, "/", "GET"))
	assert.Len(t, api.Routes(), 1)
}

func TestCFN_StageMustPointToRestApi(t *testing.T) {
	log, _ := test.NewNullLogger()

	st := newStack("",
		resource("Fn", "AWS::Lambda::Function", map[string]any{}),
		resource("Api", TypeRestApi, map[string]any{}),
		resource("Stage", TypeStage, map[string]any{"RestApiId": "Fn", "StageName": "dev"}),
	)
	_, err := NewProvider(stacksOf(st), Options{Logger: log})
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Error(), "The AWS::ApiGateway::Stage must have a valid RestApiId that points to RestApi resource Fn")

	st = newStack("",
		resource("Api", TypeV2Api, map[string]any{}),
		resource("Stage", TypeV2Stage, map[string]any{"ApiId": "Missing"}),
	)
	_, err = NewProvider(stacksOf(st), Options{Logger: log})
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Error(), "valid ApiId that points to Api resource Missing")
}

func TestCFN_HttpApiRoutes(t *testing.T) {
	st := newStack("",
		resource("Api", TypeV2Api, map[string]any{
			"ProtocolType":      "HTTP",
			"CorsConfiguration": map[string]any{"AllowOrigins": []any{"*"}},
		}),
		resource("Integration", TypeV2Integration, map[string]any{
			"ApiId":                "Api",
			"IntegrationType":      "AWS_PROXY",
			"IntegrationUri":       "arn:aws:lambda:us-east-1:123456789012:function:Items",
			"PayloadFormatVersion": "1.0",
		}),
		resource("ItemsRoute", TypeV2Route, map[string]any{
			"ApiId":    "Api",
			"RouteKey": "GET /items",
			"Target":   "integrations/Integration",
		}),
		resource("DefaultRoute", TypeV2Route, map[string]any{
			"ApiId":    "Api",
			"RouteKey": "$default",
			"Target":   "integrations/Integration",
		}),
		resource("Stage", TypeV2Stage, map[string]any{"ApiId": "Api", "StageName": "$default"}),
	)

	api := buildApi(t, st)
	routes := api.Routes()
	require.Len(t, routes, 2)

	assert.Equal(t, "/items", routes[0].Path)
	assert.Equal(t, "Items", routes[0].FunctionName)
	assert.Equal(t, "1.0", routes[0].PayloadFormatVersion)
	assert.False(t, routes[0].UsesV2Payload())
	assert.Equal(t, []string{"GET", "OPTIONS"}, routes[0].Methods)

	assert.True(t, routes[1].IsDefault())
	assert.True(t, routes[1].HasMethod(wetwire.AnyMethodExtension))
}

func TestCFN_QuickCreateApi(t *testing.T) {
	st := newStack("",
		resource("Api", TypeV2Api, map[string]any{
			"ProtocolType": "HTTP",
			"Target":       "arn:aws:lambda:us-east-1:123456789012:function:Quick",
		}),
	)
	api := buildApi(t, st)
	routes := api.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "$default", routes[0].Path)
	assert.Equal(t, "Quick", routes[0].FunctionName)
}

func TestCFN_MalformedRouteKey(t *testing.T) {
	log, _ := test.NewNullLogger()
	st := newStack("",
		resource("Api", TypeV2Api, map[string]any{"ProtocolType": "HTTP"}),
		resource("Route", TypeV2Route, map[string]any{"ApiId": "Api", "RouteKey": "GET"}),
	)
	_, err := NewProvider(stacksOf(st), Options{Logger: log})
	var te *TemplateError
	assert.ErrorAs(t, err, &te)
}
