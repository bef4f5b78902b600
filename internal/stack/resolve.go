package stack

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/lex00/cloudformation-schema-go/template"
)

type noValueMarker struct{}

// noValue is returned for Ref AWS::NoValue; the enclosing key is dropped.
var noValue = &noValueMarker{}

// intrinsicKeys maps intrinsic types to their CloudFormation map keys.
var intrinsicKeys = map[template.IntrinsicType]string{
	template.IntrinsicRef:         "Ref",
	template.IntrinsicGetAtt:      "Fn::GetAtt",
	template.IntrinsicSub:         "Fn::Sub",
	template.IntrinsicJoin:        "Fn::Join",
	template.IntrinsicSelect:      "Fn::Select",
	template.IntrinsicGetAZs:      "Fn::GetAZs",
	template.IntrinsicIf:          "Fn::If",
	template.IntrinsicEquals:      "Fn::Equals",
	template.IntrinsicAnd:         "Fn::And",
	template.IntrinsicOr:          "Fn::Or",
	template.IntrinsicNot:         "Fn::Not",
	template.IntrinsicCondition:   "Condition",
	template.IntrinsicFindInMap:   "Fn::FindInMap",
	template.IntrinsicBase64:      "Fn::Base64",
	template.IntrinsicCidr:        "Fn::Cidr",
	template.IntrinsicImportValue: "Fn::ImportValue",
	template.IntrinsicSplit:       "Fn::Split",
	template.IntrinsicTransform:   "Fn::Transform",
	template.IntrinsicValueOf:     "Fn::ValueOf",
}

var subVariable = regexp.MustCompile(`\$\{([^}!][^}]*)\}`)

func pseudoParameters(opts Options, stackName string) map[string]string {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	account := opts.AccountID
	if account == "" {
		account = "123456789012"
	}
	if stackName == "" {
		stackName = "local"
	}
	return map[string]string{
		"AWS::Region":           region,
		"AWS::AccountId":        account,
		"AWS::Partition":        "aws",
		"AWS::URLSuffix":        "amazonaws.com",
		"AWS::StackName":        stackName,
		"AWS::StackId":          fmt.Sprintf("arn:aws:cloudformation:%s:%s:stack/%s/local", region, account, stackName),
		"AWS::NotificationARNs": "",
	}
}

type resolver struct {
	tmpl       *template.Template
	params     map[string]string
	pseudo     map[string]string
	conditions map[string]bool
	evaluating map[string]bool
}

func newResolver(tmpl *template.Template, overrides, pseudo map[string]string) *resolver {
	r := &resolver{
		tmpl:       tmpl,
		params:     make(map[string]string),
		pseudo:     pseudo,
		conditions: make(map[string]bool),
		evaluating: make(map[string]bool),
	}
	for id, p := range tmpl.Parameters {
		if v, ok := overrides[id]; ok {
			r.params[id] = v
			continue
		}
		if p.Default == nil {
			continue
		}
		if s, ok := Scalar(p.Default); ok {
			r.params[id] = s
		} else if list, ok := p.Default.([]any); ok {
			var parts []string
			for _, item := range list {
				if s, ok := Scalar(item); ok {
					parts = append(parts, s)
				}
			}
			r.params[id] = strings.Join(parts, ",")
		}
	}
	return r
}

// resolve walks a property value, evaluating the intrinsics it can.
func (r *resolver) resolve(v any) any {
	switch val := v.(type) {
	case *template.Intrinsic:
		if val == nil {
			return nil
		}
		return r.intrinsic(val.Type, val.Args)
	case map[string]any:
		if len(val) == 1 {
			for k, args := range val {
				if t, ok := intrinsicType(k); ok {
					return r.intrinsic(t, args)
				}
			}
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved := r.resolve(item)
			if resolved == noValue {
				continue
			}
			out[k] = resolved
		}
		return out
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[fmt.Sprint(k)] = item
		}
		return r.resolve(m)
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			resolved := r.resolve(item)
			if resolved == noValue {
				continue
			}
			out = append(out, resolved)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	}
	return v
}

func intrinsicType(key string) (template.IntrinsicType, bool) {
	for t, k := range intrinsicKeys {
		if k == key {
			return t, true
		}
	}
	var zero template.IntrinsicType
	return zero, false
}

// unresolved renders an intrinsic in CloudFormation map form.
func unresolved(t template.IntrinsicType, args any) map[string]any {
	key, ok := intrinsicKeys[t]
	if !ok {
		key = fmt.Sprint(t)
	}
	return map[string]any{key: args}
}

func (r *resolver) intrinsic(t template.IntrinsicType, args any) any {
	switch t {
	case template.IntrinsicRef:
		return r.ref(args)
	case template.IntrinsicGetAtt:
		return unresolved(t, getAttArgs(args))
	case template.IntrinsicSub:
		return r.sub(args)
	case template.IntrinsicJoin:
		return r.join(args)
	case template.IntrinsicIf:
		return r.ifValue(args)
	case template.IntrinsicFindInMap:
		return r.findInMap(args)
	case template.IntrinsicSelect:
		return r.selectValue(args)
	case template.IntrinsicEquals, template.IntrinsicAnd, template.IntrinsicOr, template.IntrinsicNot, template.IntrinsicCondition:
		if b, ok := r.condition(unresolved(t, args)); ok {
			return b
		}
	}
	return unresolved(t, r.resolve(args))
}

func (r *resolver) ref(args any) any {
	target, ok := args.(string)
	if !ok {
		return unresolved(template.IntrinsicRef, args)
	}
	if target == "AWS::NoValue" {
		return noValue
	}
	if v, ok := r.params[target]; ok {
		return v
	}
	if v, ok := r.pseudo[target]; ok {
		return v
	}
	if _, ok := r.tmpl.Resources[target]; ok {
		return target
	}
	return unresolved(template.IntrinsicRef, target)
}

func getAttArgs(args any) []any {
	switch val := args.(type) {
	case string:
		if i := strings.Index(val, "."); i > 0 {
			return []any{val[:i], val[i+1:]}
		}
		return []any{val}
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []any:
		return val
	}
	return []any{args}
}

// sub substitutes parameters, pseudo parameters and explicit variables.
// References to resources and attributes (${Fn}, ${Fn.Arn}) stay in place.
func (r *resolver) sub(args any) any {
	var format string
	vars := map[string]string{}
	switch val := args.(type) {
	case string:
		format = val
	case []any:
		if len(val) == 0 {
			return unresolved(template.IntrinsicSub, args)
		}
		s, ok := val[0].(string)
		if !ok {
			return unresolved(template.IntrinsicSub, r.resolve(args))
		}
		format = s
		if len(val) > 1 {
			if m, ok := r.resolve(val[1]).(map[string]any); ok {
				for k, item := range m {
					if str, ok := Scalar(item); ok {
						vars[k] = str
					}
				}
			}
		}
	default:
		return unresolved(template.IntrinsicSub, r.resolve(args))
	}

	return subVariable.ReplaceAllStringFunc(format, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		if v, ok := r.params[name]; ok {
			return v
		}
		if v, ok := r.pseudo[name]; ok {
			return v
		}
		return match
	})
}

func (r *resolver) join(args any) any {
	list, ok := args.([]any)
	if !ok || len(list) != 2 {
		return unresolved(template.IntrinsicJoin, r.resolve(args))
	}
	delim, ok := list[0].(string)
	items, isList := r.resolve(list[1]).([]any)
	if !ok || !isList {
		return unresolved(template.IntrinsicJoin, r.resolve(args))
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := Scalar(item)
		if !ok {
			return unresolved(template.IntrinsicJoin, []any{delim, items})
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, delim)
}

func (r *resolver) ifValue(args any) any {
	list, ok := args.([]any)
	if !ok || len(list) != 3 {
		return unresolved(template.IntrinsicIf, r.resolve(args))
	}
	name, ok := list[0].(string)
	if !ok {
		return unresolved(template.IntrinsicIf, r.resolve(args))
	}
	value, known := r.namedCondition(name)
	if !known {
		return unresolved(template.IntrinsicIf, r.resolve(args))
	}
	if value {
		return r.resolve(list[1])
	}
	return r.resolve(list[2])
}

func (r *resolver) namedCondition(name string) (bool, bool) {
	if v, ok := r.conditions[name]; ok {
		return v, true
	}
	cond, ok := r.tmpl.Conditions[name]
	if !ok || r.evaluating[name] {
		return false, false
	}
	r.evaluating[name] = true
	defer delete(r.evaluating, name)
	v, ok := r.condition(cond.Expression)
	if ok {
		r.conditions[name] = v
	}
	return v, ok
}

// condition evaluates a condition expression. The second result is false
// when the expression depends on something that cannot be resolved locally.
func (r *resolver) condition(expr any) (bool, bool) {
	var t template.IntrinsicType
	var args any
	switch val := expr.(type) {
	case bool:
		return val, true
	case *template.Intrinsic:
		if val == nil {
			return false, false
		}
		t, args = val.Type, val.Args
	case map[string]any:
		if len(val) != 1 {
			return false, false
		}
		for k, a := range val {
			it, ok := intrinsicType(k)
			if !ok {
				return false, false
			}
			t, args = it, a
		}
	default:
		return false, false
	}

	switch t {
	case template.IntrinsicCondition:
		name, ok := args.(string)
		if !ok {
			return false, false
		}
		return r.namedCondition(name)
	case template.IntrinsicEquals:
		list, ok := args.([]any)
		if !ok || len(list) != 2 {
			return false, false
		}
		a, okA := Scalar(r.resolve(list[0]))
		b, okB := Scalar(r.resolve(list[1]))
		if !okA || !okB {
			return false, false
		}
		return a == b, true
	case template.IntrinsicNot:
		list, ok := args.([]any)
		if !ok || len(list) != 1 {
			return false, false
		}
		v, ok := r.condition(list[0])
		return !v, ok
	case template.IntrinsicAnd, template.IntrinsicOr:
		list, ok := args.([]any)
		if !ok {
			return false, false
		}
		result := t == template.IntrinsicAnd
		for _, item := range list {
			v, ok := r.condition(item)
			if !ok {
				return false, false
			}
			if t == template.IntrinsicAnd {
				result = result && v
			} else {
				result = result || v
			}
		}
		return result, true
	}
	return false, false
}

func (r *resolver) findInMap(args any) any {
	list, ok := args.([]any)
	if !ok || len(list) < 3 {
		return unresolved(template.IntrinsicFindInMap, r.resolve(args))
	}
	keys := make([]string, 3)
	for i := 0; i < 3; i++ {
		s, ok := Scalar(r.resolve(list[i]))
		if !ok {
			return unresolved(template.IntrinsicFindInMap, r.resolve(args))
		}
		keys[i] = s
	}
	mapping, ok := r.tmpl.Mappings[keys[0]]
	if !ok || mapping == nil {
		return unresolved(template.IntrinsicFindInMap, r.resolve(args))
	}
	var current any = mapping.MapData
	for _, key := range keys[1:] {
		next, ok := lookup(current, key)
		if !ok {
			return unresolved(template.IntrinsicFindInMap, r.resolve(args))
		}
		current = next
	}
	return r.resolve(current)
}

func lookup(m any, key string) (any, bool) {
	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	item := v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
	if !item.IsValid() {
		return nil, false
	}
	return item.Interface(), true
}

func (r *resolver) selectValue(args any) any {
	list, ok := args.([]any)
	if !ok || len(list) != 2 {
		return unresolved(template.IntrinsicSelect, r.resolve(args))
	}
	idxStr, ok := Scalar(r.resolve(list[0]))
	if !ok {
		return unresolved(template.IntrinsicSelect, r.resolve(args))
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return unresolved(template.IntrinsicSelect, r.resolve(args))
	}
	items, ok := r.resolve(list[1]).([]any)
	if !ok {
		if s, isStr := r.resolve(list[1]).(string); isStr {
			for _, part := range strings.Split(s, ",") {
				items = append(items, part)
			}
		} else {
			return unresolved(template.IntrinsicSelect, r.resolve(args))
		}
	}
	if idx < 0 || idx >= len(items) {
		return unresolved(template.IntrinsicSelect, r.resolve(args))
	}
	return items[idx]
}
