package invoke

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/sirupsen/logrus"
)

// riePath is the invocation path the Runtime Interface Emulator listens on.
const riePath = "/2015-03-31/functions/function/invocations"

// RIERunner posts events to Runtime Interface Emulator containers, one
// endpoint per function (e.g. "http://127.0.0.1:9000").
type RIERunner struct {
	endpoints map[string]string
	client    *http.Client
	log       logrus.FieldLogger
}

// NewRIERunner returns a runner for the function → endpoint map.
func NewRIERunner(endpoints map[string]string, log logrus.FieldLogger) *RIERunner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := make(map[string]string, len(endpoints))
	for name, url := range endpoints {
		m[name] = strings.TrimRight(url, "/")
	}
	return &RIERunner{endpoints: m, client: cleanhttp.DefaultPooledClient(), log: log}
}

func (r *RIERunner) Invoke(ctx context.Context, functionName string, event []byte, stdout, stderr io.Writer) error {
	endpoint, ok := r.endpoints[functionName]
	if !ok {
		return fmt.Errorf("%s: %w", functionName, ErrFunctionNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+riePath, bytes.NewReader(event))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	r.log.WithFields(logrus.Fields{"function": functionName, "endpoint": endpoint}).Debug("invoking function")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("invoking %s: %w", functionName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", functionName, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", functionName, ErrFunctionNotFound)
	case resp.StatusCode >= 300:
		fmt.Fprintf(stderr, "%s\n", body)
		return fmt.Errorf("invoking %s: unexpected status %d", functionName, resp.StatusCode)
	}
	_, err = stdout.Write(compact(body))
	return err
}
