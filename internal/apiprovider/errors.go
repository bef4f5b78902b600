package apiprovider

import "fmt"

// TemplateError reports a template that cannot be turned into a routing
// table. It is fatal: no server should start on top of it.
type TemplateError struct {
	LogicalID string
	Message   string
}

func (e *TemplateError) Error() string {
	if e.LogicalID == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.LogicalID, e.Message)
}

func templateErrorf(logicalID, format string, args ...any) *TemplateError {
	return &TemplateError{LogicalID: logicalID, Message: fmt.Sprintf(format, args...)}
}
