package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/sethvargo/go-retry"
)

// AWSProvider fetches secrets from AWS Secrets Manager with static
// credentials. Transient API failures are retried with exponential backoff
// before the cache falls back to a stale copy.
type AWSProvider struct {
	client *secretsmanager.Client
}

func NewAWSProvider(region, accessKeyID, secretAccessKey string) *AWSProvider {
	client := secretsmanager.New(secretsmanager.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(awscreds.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	})
	return &AWSProvider{client: client}
}

func (p *AWSProvider) Fetch(ctx context.Context, name string) (string, error) {
	var value string

	backoff := retry.WithMaxRetries(3, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(name),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		if out.SecretString == nil {
			return fmt.Errorf("secret %q has no string value", name)
		}
		value = *out.SecretString
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// StaticProvider serves secrets from a fixed map, for environment-variable
// deployments and tests.
type StaticProvider struct {
	values map[string]string
}

func NewStaticProvider(values map[string]string) *StaticProvider {
	return &StaticProvider{values: values}
}

func (p *StaticProvider) Fetch(_ context.Context, name string) (string, error) {
	value, ok := p.values[name]
	if !ok {
		return "", fmt.Errorf("secret %q not found", name)
	}
	return value, nil
}
