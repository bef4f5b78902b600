// Package invoke runs Lambda functions for the gateway.
//
// A Runner writes the function's response payload to stdout and any log
// output to stderr. Runners backed by a local process may also interleave
// log lines on stdout; the gateway treats the last line as the response.
package invoke

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrFunctionNotFound is returned when no function is registered under the requested name.
var ErrFunctionNotFound = errors.New("function not found")

// Runner invokes a function with a JSON event.
type Runner interface {
	Invoke(ctx context.Context, functionName string, event []byte, stdout, stderr io.Writer) error
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, functionName string, event []byte, stdout, stderr io.Writer) error

func (f RunnerFunc) Invoke(ctx context.Context, functionName string, event []byte, stdout, stderr io.Writer) error {
	return f(ctx, functionName, event, stdout, stderr)
}

// Serialized serialises the first invocation of every function, so a cold
// start happens once, while distinct functions run concurrently.
type Serialized struct {
	runner Runner

	mu    sync.Mutex
	warm  map[string]bool
	locks map[string]*sync.Mutex
}

// NewSerialized wraps runner.
func NewSerialized(runner Runner) *Serialized {
	return &Serialized{
		runner: runner,
		warm:   make(map[string]bool),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Serialized) Invoke(ctx context.Context, functionName string, event []byte, stdout, stderr io.Writer) error {
	s.mu.Lock()
	if s.warm[functionName] {
		s.mu.Unlock()
		return s.runner.Invoke(ctx, functionName, event, stdout, stderr)
	}
	lock, ok := s.locks[functionName]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[functionName] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	err := s.runner.Invoke(ctx, functionName, event, stdout, stderr)
	if err == nil {
		s.mu.Lock()
		s.warm[functionName] = true
		s.mu.Unlock()
	}
	return err
}
