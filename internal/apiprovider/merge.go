package apiprovider

import (
	"path"
	"sort"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/stack"
)

// Logical ids of the APIs SAM creates for function events that do not name one.
const (
	ImplicitRestApiID = "ServerlessRestApi"
	ImplicitHttpApiID = "ServerlessHttpApi"
)

func isImplicit(apiID string) bool {
	base := path.Base(apiID)
	return base == ImplicitRestApiID || base == ImplicitHttpApiID
}

// mergeRoutes resolves collisions between routes on the same path and method.
//
// Explicit routes (owned by authored API resources) are ordered before
// implicit ones (function events); within each group deeper nested stacks come
// first. Walking that order, later routes overwrite earlier ones per
// path+method, so implicit routes beat explicit ones and root stack routes beat
// nested ones. A route missing a payload format version inherits the one it
// overwrites. Each surviving route keeps only the methods it won.
func mergeRoutes(routes []ownedRoute) []ownedRoute {
	var explicit, implicit []ownedRoute
	for _, r := range routes {
		if isImplicit(r.apiID) {
			implicit = append(implicit, r)
		} else {
			explicit = append(explicit, r)
		}
	}
	byDepth := func(group []ownedRoute) {
		sort.SliceStable(group, func(i, j int) bool {
			return stack.Depth(group[i].route.StackPath) > stack.Depth(group[j].route.StackPath)
		})
	}
	byDepth(explicit)
	byDepth(implicit)

	ordered := make([]ownedRoute, 0, len(routes))
	for _, r := range append(explicit, implicit...) {
		r.route = r.route.Clone()
		ordered = append(ordered, r)
	}

	winner := make(map[string]int)
	for i := range ordered {
		r := &ordered[i].route
		for _, method := range r.Methods {
			key := r.Path + method
			if prev, ok := winner[key]; ok && r.PayloadFormatVersion == "" {
				r.PayloadFormatVersion = ordered[prev].route.PayloadFormatVersion
			}
			winner[key] = i
		}
	}

	var out []ownedRoute
	for i, r := range ordered {
		var methods []string
		for _, method := range r.route.Methods {
			if winner[r.route.Path+method] == i {
				methods = append(methods, method)
			}
		}
		if len(methods) == 0 {
			continue
		}
		r.route.Methods = methods
		out = append(out, r)
	}
	return out
}
