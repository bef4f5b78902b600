package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseV1_Defaults(t *testing.T) {
	resp, err := ParseV1(`{"statusCode": 0, "headers": null, "body": null, "isBase64Encoded": null}`, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, http.Header{"Content-Type": {"application/json"}}, resp.Header)
	assert.Equal(t, "no data", string(resp.Body))

	resp, err = ParseV1(`{}`, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "no data", string(resp.Body))
}

func TestParseV1_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"string status", `{"statusCode": "200"}`},
		{"negative status", `{"statusCode": -1}`},
		{"fractional status", `{"statusCode": 200.5}`},
		{"integral float status", `{"statusCode": 200.0}`},
		{"exponent status", `{"statusCode": 2e2}`},
		{"not an object", `[1, 2]`},
		{"not json", `hello`},
		{"empty", ``},
		{"headers not object", `{"headers": "x"}`},
		{"body not string", `{"body": {"a": 1}}`},
		{"base64 flag not bool", `{"isBase64Encoded": "true"}`},
		{"unknown key", `{"statusCode": 200, "extra": 1}`},
		{"multi value headers not lists", `{"multiValueHeaders": {"X": "a"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseV1(tt.output, nil, "")
			assert.True(t, errors.Is(err, ErrParse), "got %v", err)
		})
	}
}

func TestParseV1_Headers(t *testing.T) {
	resp, err := ParseV1(`{
		"statusCode": 201,
		"headers": {"content-type": "text/plain", "X-Count": 3},
		"multiValueHeaders": {"Set-Cookie": ["a=1", "b=2"], "X-Count": ["3", "4"]},
		"body": "created"
	}`, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, []string{"a=1", "b=2"}, resp.Header.Values("Set-Cookie"))
	assert.Equal(t, []string{"3", "4"}, resp.Header.Values("X-Count"))
	assert.Equal(t, "created", string(resp.Body))
}

func TestParseV1_BinaryNegotiation(t *testing.T) {
	const output = `{"statusCode": 200, "body": "aGVsbG8=", "isBase64Encoded": true}`

	tests := []struct {
		name    string
		binary  []string
		accept  string
		decoded bool
	}{
		{"matching accept", []string{"image/gif"}, "image/gif", true},
		{"wildcard binary type", []string{"*/*"}, "anything", true},
		{"non matching accept", []string{"image/gif"}, "text/plain", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseV1(output, tt.binary, tt.accept)
			require.NoError(t, err)
			if tt.decoded {
				assert.Equal(t, "hello", string(resp.Body))
			} else {
				assert.Equal(t, "aGVsbG8=", string(resp.Body))
			}
		})
	}

	_, err := ParseV1(`{"body": "%%%", "isBase64Encoded": true}`, []string{"*/*"}, "")
	assert.ErrorIs(t, err, ErrParse)

	resp, err := ParseV1(`{"body": "aGVsbG8=", "isBase64Encoded": false}`, []string{"*/*"}, "")
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", string(resp.Body))
}

func TestParseV2(t *testing.T) {
	t.Run("full response", func(t *testing.T) {
		resp, err := ParseV2(`{
			"statusCode": 302,
			"headers": {"Location": "/next"},
			"cookies": ["a=1", "b=2"],
			"body": "aGk=",
			"isBase64Encoded": true
		}`)
		require.NoError(t, err)
		assert.Equal(t, 302, resp.StatusCode)
		assert.Equal(t, "/next", resp.Header.Get("Location"))
		assert.Equal(t, []string{"a=1", "b=2"}, resp.Header.Values("Set-Cookie"))
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Equal(t, "hi", string(resp.Body))
	})

	t.Run("object without status code", func(t *testing.T) {
		resp, err := ParseV2(`{"message": "hello"}`)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.JSONEq(t, `{"message": "hello"}`, string(resp.Body))
	})

	t.Run("plain json value", func(t *testing.T) {
		resp, err := ParseV2(`"hello"`)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, `"hello"`, string(resp.Body))
	})

	t.Run("invalid", func(t *testing.T) {
		for _, output := range []string{`not json`, `{"statusCode": "200"}`, `{"statusCode": 200, "cookies": "a"}`} {
			_, err := ParseV2(output)
			assert.ErrorIs(t, err, ErrParse, output)
		}
	})
}

func TestResponse_Write(t *testing.T) {
	resp := &Response{
		StatusCode: 201,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       []byte("ok"),
	}
	rec := httptest.NewRecorder()
	resp.Write(rec)

	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", rec.Body.String())
}
