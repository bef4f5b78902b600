package gateway

import (
	"encoding/json"
	"net/http"
)

// Canonical API Gateway error messages.
const (
	msgMissingToken  = "Missing Authentication Token"
	msgNoFunction    = "No function defined for resource method"
	msgInternalError = "Internal server error"
	msgUnauthorized  = "Unauthorized"
	msgNotAuthorized = "User is not authorized to access this resource"
	msgThrottled     = "Too Many Requests"
)

type errorBody struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	body, _ := json.Marshal(errorBody{Message: message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// missingRoute answers requests no route matches. API Gateway reports an
// unknown path or method as a missing token, not as 404 or 405.
func missingRoute(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusForbidden, msgMissingToken)
}

func lambdaFailure(w http.ResponseWriter) {
	writeError(w, http.StatusBadGateway, msgInternalError)
}

func noFunction(w http.ResponseWriter) {
	writeError(w, http.StatusBadGateway, msgNoFunction)
}

func throttled(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusTooManyRequests, msgThrottled)
}
