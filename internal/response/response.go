// Package response validates Lambda proxy responses and turns them into HTTP
// responses.
package response

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/lex00/wetwire-aws-local/internal/mediatype"
)

// ErrParse is returned for output that is not a valid proxy response.
var ErrParse = errors.New("invalid lambda response")

const (
	defaultBody        = "no data"
	defaultContentType = "application/json"
)

// REST API proxy responses may only contain these keys.
var allowedV1Keys = map[string]bool{
	"statusCode":        true,
	"body":              true,
	"headers":           true,
	"multiValueHeaders": true,
	"isBase64Encoded":   true,
}

// Response is a parsed function response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func parseErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// ParseV1 parses a payload format 1.0 (REST API) response. The body is base64
// decoded only when isBase64Encoded is true and the Accept header negotiates
// one of binaryTypes.
func ParseV1(output string, binaryTypes []string, accept string) (*Response, error) {
	obj, ok, err := decodeObject(output)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, parseErrorf("response must be a JSON object")
	}

	var invalid []string
	for key := range obj {
		if !allowedV1Keys[key] {
			invalid = append(invalid, key)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, parseErrorf("invalid keys in response: %s", strings.Join(invalid, ", "))
	}

	status, err := statusCode(obj["statusCode"])
	if err != nil {
		return nil, err
	}
	header, err := headers(obj["headers"])
	if err != nil {
		return nil, err
	}
	if err := mergeMultiValueHeaders(header, obj["multiValueHeaders"]); err != nil {
		return nil, err
	}
	body, err := bodyString(obj["body"], defaultBody)
	if err != nil {
		return nil, err
	}
	encoded, err := isBase64(obj["isBase64Encoded"])
	if err != nil {
		return nil, err
	}

	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", defaultContentType)
	}

	resp := &Response{StatusCode: status, Header: header, Body: []byte(body)}
	if _, binary := mediatype.Negotiate(binaryTypes, accept); binary && encoded {
		if resp.Body, err = decodeBase64(body); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// ParseV2 parses a payload format 2.0 (HTTP API) response. Output that is not
// an object with a statusCode is returned as the body of a 200 JSON response.
func ParseV2(output string) (*Response, error) {
	obj, ok, err := decodeObject(output)
	if err != nil {
		return nil, err
	}
	if _, hasStatus := obj["statusCode"]; !ok || !hasStatus {
		header := http.Header{}
		header.Set("Content-Type", defaultContentType)
		return &Response{StatusCode: http.StatusOK, Header: header, Body: []byte(output)}, nil
	}

	status, err := statusCode(obj["statusCode"])
	if err != nil {
		return nil, err
	}
	header, err := headers(obj["headers"])
	if err != nil {
		return nil, err
	}
	if err := mergeMultiValueHeaders(header, obj["multiValueHeaders"]); err != nil {
		return nil, err
	}
	if raw, ok := obj["cookies"]; ok && raw != nil {
		cookies, ok := raw.([]any)
		if !ok {
			return nil, parseErrorf("cookies must be a list")
		}
		for _, c := range cookies {
			s, ok := c.(string)
			if !ok {
				return nil, parseErrorf("cookies must be strings")
			}
			header.Add("Set-Cookie", s)
		}
	}
	body, err := bodyString(obj["body"], "")
	if err != nil {
		return nil, err
	}
	encoded, err := isBase64(obj["isBase64Encoded"])
	if err != nil {
		return nil, err
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", defaultContentType)
	}

	resp := &Response{StatusCode: status, Header: header, Body: []byte(body)}
	if encoded {
		if resp.Body, err = decodeBase64(body); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// decodeObject parses output. ok is false when output is valid JSON but not an object.
func decodeObject(output string) (map[string]any, bool, error) {
	dec := json.NewDecoder(strings.NewReader(output))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false, parseErrorf("response is not valid JSON: %v", err)
	}
	if dec.More() {
		return nil, false, parseErrorf("response contains trailing data")
	}
	obj, ok := v.(map[string]any)
	return obj, ok, nil
}

func statusCode(v any) (int, error) {
	if v == nil {
		return http.StatusOK, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, parseErrorf("statusCode must be an integer, got %T", v)
	}
	// Int64 rejects fractional and exponent literals such as 200.0.
	code, err := n.Int64()
	if err != nil {
		return 0, parseErrorf("statusCode must be an integer, got %s", n)
	}
	switch {
	case code == 0:
		return http.StatusOK, nil
	case code < 100 || code > 999:
		return 0, parseErrorf("statusCode must be a valid HTTP status, got %s", n)
	}
	return int(code), nil
}

func headers(v any) (http.Header, error) {
	header := http.Header{}
	if v == nil {
		return header, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, parseErrorf("headers must be an object")
	}
	for k, item := range m {
		s, err := headerValue(item)
		if err != nil {
			return nil, err
		}
		header.Set(k, s)
	}
	return header, nil
}

func mergeMultiValueHeaders(header http.Header, v any) error {
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return parseErrorf("multiValueHeaders must be an object")
	}
	for k, item := range m {
		values, ok := item.([]any)
		if !ok {
			return parseErrorf("multiValueHeaders values must be lists")
		}
		existing := header.Values(k)
		for _, value := range values {
			s, err := headerValue(value)
			if err != nil {
				return err
			}
			if !containsString(existing, s) {
				header.Add(k, s)
				existing = append(existing, s)
			}
		}
	}
	return nil
}

func headerValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	}
	return "", parseErrorf("header values must be strings, got %T", v)
}

func bodyString(v any, def string) (string, error) {
	if v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", parseErrorf("body must be a string, got %T", v)
	}
	return s, nil
}

func isBase64(v any) (bool, error) {
	if v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, parseErrorf("isBase64Encoded must be a boolean, got %T", v)
	}
	return b, nil
}

func decodeBase64(body string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, parseErrorf("body is not valid base64: %v", err)
	}
	return decoded, nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Write sends r to w.
func (r *Response) Write(w http.ResponseWriter) {
	for k, values := range r.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.StatusCode)
	_, _ = w.Write(r.Body)
}
