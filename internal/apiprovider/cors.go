package apiprovider

import (
	"sort"
	"strconv"
	"strings"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/stack"
)

var corsMethods = func() map[string]bool {
	m := make(map[string]bool)
	for _, method := range wetwire.AnyHTTPMethods {
		m[method] = true
	}
	return m
}()

func allCorsMethods() string {
	methods := append([]string(nil), wetwire.AnyHTTPMethods...)
	sort.Strings(methods)
	return strings.Join(methods, ",")
}

// normalizeAllowMethods upper-cases and validates a comma separated method
// list and makes sure OPTIONS is present. "*" allows every method.
func normalizeAllowMethods(logicalID, methods string) (string, error) {
	if strings.TrimSpace(methods) == "" {
		return allCorsMethods(), nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, m := range strings.Split(methods, ",") {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if m == "*" {
			return allCorsMethods(), nil
		}
		if !corsMethods[m] {
			return "", templateErrorf(logicalID, "the method %s is not a valid CORS method", m)
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	if !seen["OPTIONS"] {
		out = append(out, "OPTIONS")
	}
	sort.Strings(out)
	return strings.Join(out, ","), nil
}

// corsFromRest builds CORS from a REST API (Serverless::Api) Cors property.
// String values are CloudFormation string literals and must be wrapped in
// single quotes.
func corsFromRest(logicalID string, v any) (*wetwire.Cors, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		origin, err := unquote(logicalID, "Cors", val)
		if err != nil {
			return nil, err
		}
		return &wetwire.Cors{AllowOrigin: origin, AllowMethods: allCorsMethods()}, nil
	}

	props, ok := stack.Map(v)
	if !ok {
		return nil, templateErrorf(logicalID, "Cors must be a string or a map")
	}
	cors := &wetwire.Cors{}
	var err error
	if cors.AllowOrigin, err = quotedProperty(logicalID, props, "AllowOrigin"); err != nil {
		return nil, err
	}
	methods, err := quotedProperty(logicalID, props, "AllowMethods")
	if err != nil {
		return nil, err
	}
	if cors.AllowMethods, err = normalizeAllowMethods(logicalID, methods); err != nil {
		return nil, err
	}
	if cors.AllowHeaders, err = quotedProperty(logicalID, props, "AllowHeaders"); err != nil {
		return nil, err
	}
	if b, ok := props["AllowCredentials"].(bool); ok {
		if b {
			cors.AllowCredentials = "true"
		}
	} else if cors.AllowCredentials, err = quotedProperty(logicalID, props, "AllowCredentials"); err != nil {
		return nil, err
	}
	if cors.MaxAge, err = maxAge(logicalID, props["MaxAge"], true); err != nil {
		return nil, err
	}
	return cors, nil
}

// corsFromHTTP builds CORS from an HTTP API CorsConfiguration: native lists
// and booleans, or true for permissive defaults.
func corsFromHTTP(logicalID string, v any) (*wetwire.Cors, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if !val {
			return nil, nil
		}
		return &wetwire.Cors{AllowOrigin: "*", AllowMethods: allCorsMethods()}, nil
	}

	props, ok := stack.Map(v)
	if !ok {
		return nil, templateErrorf(logicalID, "CorsConfiguration must be a boolean or a map")
	}
	cors := &wetwire.Cors{
		AllowOrigin:  joinList(props["AllowOrigins"]),
		AllowHeaders: joinList(props["AllowHeaders"]),
	}
	var err error
	if cors.AllowMethods, err = normalizeAllowMethods(logicalID, joinList(props["AllowMethods"])); err != nil {
		return nil, err
	}
	if b, ok := props["AllowCredentials"].(bool); ok && b {
		cors.AllowCredentials = "true"
	}
	if cors.MaxAge, err = maxAge(logicalID, props["MaxAge"], false); err != nil {
		return nil, err
	}
	return cors, nil
}

// corsFromResponseParameters reads CORS headers that some generators put in
// method integration responses instead of a Cors property.
func corsFromResponseParameters(logicalID string, params map[string]any) (*wetwire.Cors, error) {
	const prefix = "method.response.header."
	values := make(map[string]string)
	for key, v := range params {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		unquoted, err := unquote(logicalID, key, s)
		if err != nil {
			return nil, err
		}
		values[strings.ToLower(strings.TrimPrefix(key, prefix))] = unquoted
	}

	origin, ok := values["access-control-allow-origin"]
	if !ok {
		return nil, nil
	}
	cors := &wetwire.Cors{
		AllowOrigin:      origin,
		AllowHeaders:     values["access-control-allow-headers"],
		AllowCredentials: values["access-control-allow-credentials"],
	}
	var err error
	if cors.AllowMethods, err = normalizeAllowMethods(logicalID, values["access-control-allow-methods"]); err != nil {
		return nil, err
	}
	if age, ok := values["access-control-max-age"]; ok {
		if cors.MaxAge, err = maxAge(logicalID, age, false); err != nil {
			return nil, err
		}
	}
	return cors, nil
}

func quotedProperty(logicalID string, props map[string]any, name string) (string, error) {
	v, ok := props[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", templateErrorf(logicalID, "Cors property %s must be a quoted string", name)
	}
	return unquote(logicalID, name, s)
}

func unquote(logicalID, name, s string) (string, error) {
	if len(s) < 2 || !strings.HasPrefix(s, "'") || !strings.HasSuffix(s, "'") {
		return "", templateErrorf(logicalID,
			"Cors property %s must be a quoted string (i.e. \"'*'\" is correct, but \"*\" is not)", name)
	}
	return s[1 : len(s)-1], nil
}

func maxAge(logicalID string, v any, quoted bool) (*int, error) {
	var s string
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int:
		return &val, nil
	case float64:
		age := int(val)
		return &age, nil
	case string:
		s = val
		if quoted {
			var err error
			if s, err = unquote(logicalID, "MaxAge", val); err != nil {
				return nil, err
			}
		}
	default:
		return nil, templateErrorf(logicalID, "Cors property MaxAge must be a number")
	}
	age, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil, templateErrorf(logicalID, "Cors property MaxAge must be a number, got %q", s)
	}
	return &age, nil
}

func joinList(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	list, _ := stack.List(v)
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := stack.Scalar(item); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ",")
}
