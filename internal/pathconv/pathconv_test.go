package pathconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToInternal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/", "/"},
		{"/users", "/users"},
		{"/users/{id}", "/users/{id}"},
		{"/{proxy+}", "/{proxy:.+}"},
		{"/files/{bucket}/{key+}", "/files/{bucket}/{key:.+}"},
		{"$default", "$default"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToInternal(tt.in))
		})
	}
}

func TestToExternal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/users/{id}", "/users/{id}"},
		{"/users/{id:[^/]+}", "/users/{id}"},
		{"/{proxy:.+}", "/{proxy+}"},
		{"/files/{bucket}/{key:.+}", "/files/{bucket}/{key+}"},
		{"/plain", "/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToExternal(tt.in))
		})
	}
}

func TestRoundTripIsIdempotent(t *testing.T) {
	paths := []string{
		"/",
		"/a/b",
		"/{proxy+}",
		"/users/{id}/orders/{orderId}",
		"/static/{path+}",
		"/{a}/{b+}",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			internal := ToInternal(p)
			assert.Equal(t, internal, ToInternal(ToExternal(internal)))
			assert.Equal(t, p, ToExternal(internal))
		})
	}
}

func TestIsGreedy(t *testing.T) {
	assert.True(t, IsGreedy("/{proxy+}"))
	assert.False(t, IsGreedy("/{proxy}"))
}
