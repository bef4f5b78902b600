package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	doc := map[string]any{
		"a": map[any]any{"b": map[string]any{"c": "leaf"}},
	}

	v, ok := Lookup(doc, "a", "b", "c")
	assert.True(t, ok)
	assert.Equal(t, "leaf", v)
	assert.Equal(t, "leaf", LookupString(doc, "a", "b", "c"))

	_, ok = Lookup(doc, "a", "missing")
	assert.False(t, ok)
	assert.Empty(t, LookupString(doc, "a", "b"))
}

func TestNormalize(t *testing.T) {
	in := map[any]any{"k": []any{map[any]any{1: "one"}}}
	out := Normalize(in)
	assert.Equal(t, map[string]any{"k": []any{map[string]any{"1": "one"}}}, out)
}

func TestRefAndGetAttTargets(t *testing.T) {
	id, ok := RefTarget(map[string]any{"Ref": "MyApi"})
	assert.True(t, ok)
	assert.Equal(t, "MyApi", id)

	_, ok = RefTarget("MyApi")
	assert.False(t, ok)

	id, attr, ok := GetAttTarget(map[string]any{"Fn::GetAtt": []any{"Fn", "Arn"}})
	assert.True(t, ok)
	assert.Equal(t, "Fn", id)
	assert.Equal(t, "Arn", attr)
}
