package response

import (
	"bytes"
	"encoding/json"
	"strings"
)

// SplitStdout separates function log output from the response. The last
// non-empty line of stdout is the response; everything before it is log
// output. logs is nil when stdout holds a single line. Whitespace-only output
// yields an empty response.
func SplitStdout(stdout []byte) (response string, logs []byte) {
	data := bytes.TrimRight(stdout, " \t\r\n")
	i := bytes.LastIndexByte(data, '\n')
	if i < 0 {
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(string(data[i+1:])), data[:i]
}

// IsUserError reports whether output is a Lambda function error
// ({"errorMessage": ..., "errorType": ...}) rather than a proxy response.
func IsUserError(output string) bool {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(output), &payload); err != nil {
		return false
	}
	_, hasMessage := payload["errorMessage"]
	_, hasType := payload["errorType"]
	return hasMessage && hasType
}
