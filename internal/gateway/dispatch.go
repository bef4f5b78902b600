package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/authorizer"
	"github.com/lex00/wetwire-aws-local/internal/event"
	"github.com/lex00/wetwire-aws-local/internal/invoke"
	"github.com/lex00/wetwire-aws-local/internal/response"
)

// errUserError marks a function that answered with a Lambda error object.
var errUserError = errors.New("function returned an error")

func (s *Service) routeHandler(api *wetwire.Api, route wetwire.Route) http.Handler {
	cors := api.Cors()
	binaryTypes := append(append([]string(nil), route.BinaryTypes...), api.BinaryMediaTypes()...)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec, ok := w.(*statusRecorder); ok {
			rec.function = route.FunctionName
		}
		log := s.log.WithFields(logrus.Fields{
			"function": route.FunctionName,
			"path":     route.Path,
			"method":   r.Method,
		})

		if r.Method == http.MethodOptions && cors != nil {
			writePreflight(w, cors)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.WithError(err).Warn("reading request body")
			lambdaFailure(w)
			return
		}

		evCtx := event.Context{
			StageName:      api.StageName(),
			StageVariables: api.StageVariables(),
			BinaryTypes:    binaryTypes,
			PathParameters: pathParameters(r, route),
			Port:           s.port,
		}

		authResult, err := s.auth.Authorize(r.Context(), authorizer.Request{
			HTTP:  r,
			Body:  body,
			Route: route,
			Event: evCtx,
		})
		if err != nil {
			s.authorizerFailure(w, log, err)
			return
		}

		payload, err := s.buildEvent(r, body, route, evCtx, authResult)
		if err != nil {
			log.WithError(err).Error("building event")
			lambdaFailure(w)
			return
		}

		output, err := s.invoke(r.Context(), route.FunctionName, payload)
		switch {
		case errors.Is(err, invoke.ErrFunctionNotFound):
			log.WithError(err).Warn("no function for route")
			noFunction(w)
			return
		case err != nil:
			log.WithError(err).Error("invocation failed")
			lambdaFailure(w)
			return
		}

		var resp *response.Response
		if route.UsesV2Payload() {
			resp, err = response.ParseV2(output)
		} else {
			resp, err = response.ParseV1(output, binaryTypes, acceptHeader(r))
		}
		if err != nil {
			log.WithError(err).Error("invalid lambda response")
			lambdaFailure(w)
			return
		}

		addCorsHeaders(resp.Header, cors)
		resp.Write(w)
	})
}

func (s *Service) buildEvent(r *http.Request, body []byte, route wetwire.Route, evCtx event.Context, auth *authorizer.Result) ([]byte, error) {
	if route.UsesV2Payload() {
		ev, err := s.builder.V2(r, body, route, evCtx)
		if err != nil {
			return nil, err
		}
		auth.ApplyV2(ev)
		return json.Marshal(ev)
	}
	ev, err := s.builder.V1(r, body, route, evCtx)
	if err != nil {
		return nil, err
	}
	auth.ApplyV1(ev)
	return json.Marshal(ev)
}

// invoke runs a function and returns its response string. Log lines the
// function printed ahead of the response go to the log sink.
func (s *Service) invoke(ctx context.Context, functionName string, payload []byte) (string, error) {
	var stdout bytes.Buffer
	if err := s.runner.Invoke(ctx, functionName, payload, &stdout, s.sink); err != nil {
		return "", err
	}
	output, logs := response.SplitStdout(stdout.Bytes())
	if len(logs) > 0 {
		_, _ = s.sink.Write(append(logs, '\n'))
	}
	if response.IsUserError(output) {
		return "", fmt.Errorf("%s: %w: %s", functionName, errUserError, output)
	}
	return output, nil
}

func (s *Service) invokeAuthorizer(ctx context.Context, functionName string, payload []byte) ([]byte, error) {
	output, err := s.invoke(ctx, functionName, payload)
	if err != nil {
		return nil, err
	}
	return []byte(output), nil
}

func (s *Service) authorizerFailure(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	switch {
	case errors.Is(err, authorizer.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, authorizer.ErrForbidden):
		writeError(w, http.StatusForbidden, msgNotAuthorized)
	default:
		log.WithError(err).Error("lambda authorizer failed")
		lambdaFailure(w)
	}
}

// pathParameters returns the route's path parameters by their API Gateway names.
func pathParameters(r *http.Request, route wetwire.Route) map[string]string {
	if route.IsDefault() {
		return nil
	}
	vars := mux.Vars(r)
	if len(vars) == 0 {
		return nil
	}
	return vars
}

// acceptHeader is the media type the client wants back, falling back to the
// type of the body it sent.
func acceptHeader(r *http.Request) string {
	if accept := r.Header.Get("Accept"); accept != "" {
		return accept
	}
	return r.Header.Get("Content-Type")
}

func writePreflight(w http.ResponseWriter, cors *wetwire.Cors) {
	for k, v := range cors.Headers() {
		w.Header().Set(k, v)
	}
	w.WriteHeader(http.StatusOK)
}

// addCorsHeaders sets the CORS headers a function response did not set itself.
func addCorsHeaders(h http.Header, cors *wetwire.Cors) {
	for k, v := range cors.Headers() {
		if h.Get(k) == "" {
			h.Set(k, v)
		}
	}
}
