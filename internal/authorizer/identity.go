package authorizer

import (
	"net/http"
	"strings"

	wetwire "github.com/lex00/wetwire-aws-local"
)

// Identity source prefixes for REST APIs (method.request.*) and HTTP APIs ($request.*).
const (
	restHeaderPrefix      = "method.request.header."
	restQueryPrefix       = "method.request.querystring."
	httpHeaderPrefix      = "$request.header."
	httpQueryPrefix       = "$request.querystring."
	stageVarPrefix        = "stageVariables."
	httpStageVarPrefix    = "$stageVariables."
	contextPrefix         = "context."
	httpContextPrefix     = "$context."
	defaultIdentityHeader = "Authorization"
)

// identitySources returns the authorizer's identity sources, applying the
// Authorization header default where API Gateway would.
func identitySources(a *wetwire.Authorizer, eventType wetwire.EventType) []string {
	if len(a.IdentitySources) > 0 {
		return a.IdentitySources
	}
	switch {
	case a.Type == wetwire.AuthorizerToken:
		return []string{restHeaderPrefix + defaultIdentityHeader}
	case eventType == wetwire.EventTypeHTTP:
		return []string{httpHeaderPrefix + defaultIdentityHeader}
	}
	return nil
}

// resolveIdentity looks up a single identity source. Context sources cannot
// be resolved locally and always count as present.
func resolveIdentity(source string, r *http.Request, stageVars map[string]string) (string, bool) {
	source = strings.TrimSpace(source)
	switch {
	case strings.HasPrefix(source, restHeaderPrefix):
		return nonEmpty(r.Header.Get(strings.TrimPrefix(source, restHeaderPrefix)))
	case strings.HasPrefix(source, httpHeaderPrefix):
		return nonEmpty(r.Header.Get(strings.TrimPrefix(source, httpHeaderPrefix)))
	case strings.HasPrefix(source, restQueryPrefix):
		return nonEmpty(r.URL.Query().Get(strings.TrimPrefix(source, restQueryPrefix)))
	case strings.HasPrefix(source, httpQueryPrefix):
		return nonEmpty(r.URL.Query().Get(strings.TrimPrefix(source, httpQueryPrefix)))
	case strings.HasPrefix(source, stageVarPrefix):
		return nonEmpty(stageVars[strings.TrimPrefix(source, stageVarPrefix)])
	case strings.HasPrefix(source, httpStageVarPrefix):
		return nonEmpty(stageVars[strings.TrimPrefix(source, httpStageVarPrefix)])
	case strings.HasPrefix(source, contextPrefix), strings.HasPrefix(source, httpContextPrefix):
		return "", true
	}
	return "", false
}

func nonEmpty(v string) (string, bool) {
	return v, v != ""
}
