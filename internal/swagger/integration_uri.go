package swagger

import (
	"regexp"
	"strings"

	"github.com/lex00/wetwire-aws-local/internal/stack"
)

var (
	// arn:aws:apigateway:<region>:lambda:path/2015-03-31/functions/<fn>/invocations
	invokeARN = regexp.MustCompile(`^arn:[^:]+:apigateway:.+?:lambda:path/\d{4}-\d{2}-\d{2}/functions/(.+)/invocations$`)
	// arn:aws:lambda:<region>:<account>:function:<name>[:qualifier]
	lambdaARN = regexp.MustCompile(`^arn:[^:]+:lambda:.+:function:([^:/]+)`)
	// ${Fn.Arn}, ${Fn.Alias}, ${Fn}
	subReference = regexp.MustCompile(`^\$\{([A-Za-z0-9]+)(?:\.(?:Arn|Alias))?\}$`)
)

// FunctionName extracts the logical id or name of the Lambda function an
// integration URI points at. It returns "" when the URI is not recognised.
//
// Accepted forms are plain strings, {"Fn::Sub": ...} and {"Fn::GetAtt": [Fn, Arn]}.
func FunctionName(uri any) string {
	if id, _, ok := stack.GetAttTarget(uri); ok {
		return id
	}

	s, ok := uri.(string)
	if !ok {
		m, isMap := stack.Map(uri)
		if !isMap {
			return ""
		}
		switch sub := m["Fn::Sub"].(type) {
		case string:
			s = sub
		case []any:
			if len(sub) == 0 {
				return ""
			}
			s, _ = sub[0].(string)
		default:
			return ""
		}
	}

	s = strings.TrimSpace(s)
	if match := invokeARN.FindStringSubmatch(s); match != nil {
		s = match[1]
	}
	return functionFromARN(s)
}

func functionFromARN(s string) string {
	if strings.Contains(s, "${stageVariables.") {
		return ""
	}
	if match := lambdaARN.FindStringSubmatch(s); match != nil {
		return match[1]
	}
	if match := subReference.FindStringSubmatch(s); match != nil {
		return match[1]
	}
	return ""
}
