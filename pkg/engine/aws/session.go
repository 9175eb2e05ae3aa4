// Package aws wraps the AWS SDK clients the reporting pipeline pulls
// data from. Each collaborator exposes a narrow client interface so
// tests can inject mocks.
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// maxRetryAttempts bounds the SDK's adaptive retry policy. Throttling
// backoff lives entirely in the transport layer; nothing above it
// retries.
const maxRetryAttempts = 10

// roleSessionName tags the assumed-role session in CloudTrail.
const roleSessionName = "RemoteSession"

// Client holds the base AWS configuration and the STS client used for
// cross-account role assumption.
type Client struct {
	Config aws.Config
	STS    *sts.Client
}

// NewClient initializes the base client with adaptive retries.
func NewClient(ctx context.Context, region string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithRetryer(newAdaptiveRetryer),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &Client{
		Config: cfg,
		STS:    sts.NewFromConfig(cfg),
	}, nil
}

// VerifyIdentity checks that the credentials are valid and returns the
// caller's account ID.
func (c *Client) VerifyIdentity(ctx context.Context) (string, error) {
	result, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	return aws.ToString(result.Account), nil
}

// AssumeRole assumes the cross-account reporting role and returns a
// derived config scoped to its temporary credentials. A failure here
// is fatal to the run.
func (c *Client) AssumeRole(ctx context.Context, roleARN string) (aws.Config, error) {
	out, err := c.STS.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(roleSessionName),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return aws.Config{}, fmt.Errorf("assume role %s failed with %s: %w", roleARN, apiErr.ErrorCode(), err)
		}
		return aws.Config{}, fmt.Errorf("assume role %s: %w", roleARN, err)
	}

	creds := out.Credentials
	cfg := c.Config.Copy()
	cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		aws.ToString(creds.AccessKeyId),
		aws.ToString(creds.SecretAccessKey),
		aws.ToString(creds.SessionToken),
	))
	return cfg, nil
}

func newAdaptiveRetryer() aws.Retryer {
	return retry.NewAdaptiveMode(func(o *retry.AdaptiveModeOptions) {
		o.StandardOptions = append(o.StandardOptions, func(so *retry.StandardOptions) {
			so.MaxAttempts = maxRetryAttempts
		})
	})
}
