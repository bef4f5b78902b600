// Package pathconv converts route paths between API Gateway template syntax
// and gorilla/mux template syntax.
//
//	/users/{id}        ↔ /users/{id}
//	/files/{proxy+}    ↔ /files/{proxy:.+}
package pathconv

import "regexp"

var (
	// {proxy+}
	apigwGreedy = regexp.MustCompile(`\{([^{}/:+]+)\+\}`)
	// {proxy:.+}
	muxGreedy = regexp.MustCompile(`\{([^{}/:]+):\.\+\}`)
	// {id:[^/]+}
	muxSegment = regexp.MustCompile(`\{([^{}/:]+):\[\^/\]\+\}`)
	// {id}
	apigwSegment = regexp.MustCompile(`\{([^{}/:+]+)\}`)
)

// ToInternal converts an API Gateway path to a gorilla/mux path template.
func ToInternal(path string) string {
	path = apigwGreedy.ReplaceAllString(path, "{${1}:.+}")
	return apigwSegment.ReplaceAllString(path, "{${1}}")
}

// ToExternal converts a gorilla/mux path template back to API Gateway syntax.
func ToExternal(path string) string {
	path = muxGreedy.ReplaceAllString(path, "{${1}+}")
	return muxSegment.ReplaceAllString(path, "{${1}}")
}

// IsGreedy reports whether an API Gateway path ends in a greedy parameter.
func IsGreedy(path string) bool {
	return apigwGreedy.MatchString(path)
}
