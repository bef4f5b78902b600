package invoke

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

// lambdaAPI is the part of the Lambda client the SDK runner uses.
type lambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// SDKRunner invokes functions through the Lambda Invoke API of a local
// endpoint, such as a Lambda emulator listening on 127.0.0.1:3001.
type SDKRunner struct {
	client lambdaAPI
	log    logrus.FieldLogger
}

// SDKOptions configure an SDKRunner.
type SDKOptions struct {
	Endpoint string
	Region   string
	Logger   logrus.FieldLogger
}

// NewSDKRunner builds a Lambda client for the endpoint. Requests are sent
// with anonymous credentials since local emulators do not check signatures.
func NewSDKRunner(ctx context.Context, opts SDKOptions) (*SDKRunner, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := lambda.NewFromConfig(cfg, func(o *lambda.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return newSDKRunner(client, opts.Logger), nil
}

func newSDKRunner(client lambdaAPI, log logrus.FieldLogger) *SDKRunner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SDKRunner{client: client, log: log}
}

func (r *SDKRunner) Invoke(ctx context.Context, functionName string, event []byte, stdout, stderr io.Writer) error {
	out, err := r.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(functionName),
		Payload:      event,
		LogType:      types.LogTypeTail,
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", functionName, ErrFunctionNotFound)
		}
		return fmt.Errorf("invoking %s: %w", functionName, err)
	}

	if out.LogResult != nil {
		logs, err := base64.StdEncoding.DecodeString(aws.ToString(out.LogResult))
		if err != nil {
			r.log.WithError(err).WithField("function", functionName).Debug("undecodable log result")
		} else if _, err := stderr.Write(logs); err != nil {
			return err
		}
	}
	if out.FunctionError != nil {
		r.log.WithFields(logrus.Fields{
			"function": functionName,
			"error":    aws.ToString(out.FunctionError),
		}).Debug("function returned an error")
	}

	_, err = stdout.Write(compact(out.Payload))
	return err
}

func isNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException"
}

// compact folds a JSON payload onto one line so it reads as the last stdout line.
func compact(payload []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return payload
	}
	return buf.Bytes()
}
