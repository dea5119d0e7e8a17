package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// GetParameters accepts at most this many names per call.
const ssmMaxBatchSize = 10

type ssmClient interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider resolves parameter paths from AWS Systems Manager Parameter
// Store, decrypting SecureString values.
type SSMProvider struct {
	region string
	client ssmClient
}

// NewSSMProvider creates a provider for region. The SDK client is created on
// first use.
func NewSSMProvider(region string) *SSMProvider {
	return &SSMProvider{region: region}
}

func newSSMProviderWithClient(region string, client ssmClient) *SSMProvider {
	return &SSMProvider{region: region, client: client}
}

func (p *SSMProvider) ensureClient(ctx context.Context) error {
	if p.client != nil {
		return nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return fmt.Errorf("loading AWS config for SSM (region=%s): %w", p.region, err)
	}
	p.client = ssm.NewFromConfig(cfg)
	return nil
}

// GetParametersBatch fetches keys in groups of ssmMaxBatchSize. Any key SSM
// reports as invalid fails the whole call.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	for start := 0; start < len(keys); start += ssmMaxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolving SSM parameters: %w", err)
		}

		end := min(start+ssmMaxBatchSize, len(keys))
		resp, err := p.client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          keys[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("SSM GetParameters (keys %d-%d of %d): %w", start, end-1, len(keys), err)
		}
		if len(resp.InvalidParameters) > 0 {
			return nil, fmt.Errorf("SSM parameters not found: %v", resp.InvalidParameters)
		}
		for _, param := range resp.Parameters {
			if param.Name != nil && param.Value != nil {
				out[*param.Name] = *param.Value
			}
		}
	}
	return out, nil
}
