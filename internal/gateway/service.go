// Package gateway serves an Api over HTTP, turning every request into a
// Lambda invocation and the function's output into an HTTP response.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	wetwire "github.com/lex00/wetwire-aws-local"
	"github.com/lex00/wetwire-aws-local/internal/authorizer"
	"github.com/lex00/wetwire-aws-local/internal/differ"
	"github.com/lex00/wetwire-aws-local/internal/event"
	"github.com/lex00/wetwire-aws-local/internal/invoke"
)

const shutdownTimeout = 10 * time.Second

// Options configure a Service.
type Options struct {
	Logger logrus.FieldLogger
	// LogSink receives function log output. Defaults to stderr.
	LogSink io.Writer
	// SingleThreaded serves one request at a time, for attaching a debugger.
	SingleThreaded bool
	// Port is reported to functions in X-Forwarded-Port.
	Port int
	// ThrottleRate is the steady-state request rate per second across all
	// routes, like a stage throttling limit. Zero disables throttling.
	ThrottleRate float64
	// ThrottleBurst is the bucket size. Defaults to the rate rounded up.
	ThrottleBurst int
}

// Service is an http.Handler emulating API Gateway in front of Lambda.
type Service struct {
	runner  invoke.Runner
	builder *event.Builder
	auth    *authorizer.Evaluator
	log     logrus.FieldLogger
	sink    io.Writer
	port    string

	idx atomic.Pointer[index]
	// sem is nil unless the service is single-threaded.
	sem chan struct{}
	// limiter is nil unless throttling is enabled.
	limiter *rate.Limiter
}

// NewService returns a Service routing to api and invoking functions through runner.
func NewService(api *wetwire.Api, runner invoke.Runner, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	sink := opts.LogSink
	if sink == nil {
		sink = os.Stderr
	}

	s := &Service{
		runner:  runner,
		builder: event.NewBuilder(),
		log:     log,
		sink:    sink,
	}
	if opts.Port != 0 {
		s.port = strconv.Itoa(opts.Port)
	}
	if opts.SingleThreaded {
		s.sem = make(chan struct{}, 1)
	}
	if opts.ThrottleRate > 0 {
		burst := opts.ThrottleBurst
		if burst <= 0 {
			burst = int(math.Ceil(opts.ThrottleRate))
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.ThrottleRate), burst)
	}
	s.auth = authorizer.NewEvaluator(s.invokeAuthorizer, s.builder, log)
	s.idx.Store(s.newIndex(api))
	return s
}

// Api returns the routing table currently served.
func (s *Service) Api() *wetwire.Api {
	return s.idx.Load().api
}

// Reload swaps in a new routing table. In-flight requests finish on the old one.
func (s *Service) Reload(api *wetwire.Api) {
	old := s.idx.Swap(s.newIndex(api))
	diff := differ.Compare(old.api, api, differ.Options{})
	s.log.WithFields(logrus.Fields{
		"added":    diff.Summary.Added,
		"removed":  diff.Summary.Removed,
		"modified": diff.Summary.Modified,
	}).Info("routing table reloaded")
	for _, e := range diff.Diff.Added {
		s.log.WithField("route", e.Route).Debug("route added")
	}
	for _, e := range diff.Diff.Removed {
		s.log.WithField("route", e.Route).Debug("route removed")
	}
}

// ServeHTTP dispatches a request to the route it matches.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}

	defer func() {
		if p := recover(); p != nil {
			s.log.WithFields(logrus.Fields{
				"panic": p,
				"stack": string(debug.Stack()),
			}).Error("request handler panicked")
			if !rec.wroteHeader {
				lambdaFailure(rec)
			}
		}
		s.logRequest(r, rec, time.Since(start))
	}()

	if s.limiter != nil && !s.limiter.Allow() {
		throttled(rec)
		return
	}

	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-r.Context().Done():
			return
		}
	}

	s.idx.Load().router.ServeHTTP(rec, r)
}

func (s *Service) logRequest(r *http.Request, rec *statusRecorder, d time.Duration) {
	fields := logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"status":   rec.status(),
		"duration": d.String(),
	}
	if rec.function != "" {
		fields["function"] = rec.function
	}
	s.log.WithFields(fields).Info("request")
}

// ListenAndServe serves on addr until ctx is cancelled. Request contexts
// derive from ctx, so cancelling it also unwinds in-flight invocations.
func (s *Service) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.WithField("address", ln.Addr().String()).Info("serving api")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// statusRecorder remembers the status written and the function that served the request.
type statusRecorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
	function    string
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.code = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) status() int {
	if !r.wroteHeader {
		return http.StatusOK
	}
	return r.code
}
