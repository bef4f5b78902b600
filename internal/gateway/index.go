package gateway

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/pathconv"
)

// index is the routing state for one Api. It is never mutated once built;
// reloading installs a new index.
type index struct {
	api    *wetwire.Api
	router *mux.Router
}

// segment ranks, most specific first.
const (
	staticSegment = iota
	paramSegment
	greedySegment
)

func (s *Service) newIndex(api *wetwire.Api) *index {
	router := mux.NewRouter()
	router.SkipClean(true)
	router.NotFoundHandler = http.HandlerFunc(missingRoute)
	router.MethodNotAllowedHandler = http.HandlerFunc(missingRoute)

	routes := api.Routes()
	sortBySpecificity(routes)

	var defaults []wetwire.Route
	for _, route := range routes {
		if route.IsDefault() {
			defaults = append(defaults, route)
			continue
		}
		r := router.Handle(pathconv.ToInternal(route.Path), s.routeHandler(api, route))
		if !route.HasMethod(wetwire.AnyMethodExtension) {
			r.Methods(route.Methods...)
		}
	}
	// $default catches whatever no explicit route matched.
	for _, route := range defaults {
		r := router.PathPrefix("/").Handler(s.routeHandler(api, route))
		if !route.HasMethod(wetwire.AnyMethodExtension) {
			r.Methods(route.Methods...)
		}
	}
	return &index{api: api, router: router}
}

// sortBySpecificity orders routes so that, segment by segment, static text is
// tried before path parameters and greedy parameters come last.
func sortBySpecificity(routes []wetwire.Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		return compareSpecificity(routes[i].Path, routes[j].Path) < 0
	})
}

func compareSpecificity(a, b string) int {
	sa := strings.Split(strings.Trim(a, "/"), "/")
	sb := strings.Split(strings.Trim(b, "/"), "/")
	for k := 0; k < len(sa) && k < len(sb); k++ {
		if ra, rb := segmentRank(sa[k]), segmentRank(sb[k]); ra != rb {
			return ra - rb
		}
		if c := strings.Compare(sa[k], sb[k]); c != 0 {
			return c
		}
	}
	return len(sa) - len(sb)
}

func segmentRank(seg string) int {
	switch {
	case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "+}"):
		return greedySegment
	case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
		return paramSegment
	}
	return staticSegment
}
