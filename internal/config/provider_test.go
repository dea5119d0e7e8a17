package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	params  map[string]string
	batches [][]string
	err     error
}

func (f *fakeSSM) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batches = append(f.batches, in.Names)
	if f.err != nil {
		return nil, f.err
	}
	out := &ssm.GetParametersOutput{}
	for _, name := range in.Names {
		if v, ok := f.params[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(v)})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, name)
		}
	}
	return out, nil
}

func TestSSMProvider_Batches(t *testing.T) {
	fake := &fakeSSM{params: map[string]string{}}
	var keys []string
	for i := range 23 {
		k := fmt.Sprintf("/dev/pgist/p%02d", i)
		keys = append(keys, k)
		fake.params[k] = fmt.Sprintf("v%d", i)
	}

	p := newSSMProviderWithClient("us-east-1", fake)
	got, err := p.GetParametersBatch(context.Background(), keys)
	require.NoError(t, err)

	assert.Len(t, got, 23)
	assert.Equal(t, "v7", got["/dev/pgist/p07"])
	require.Len(t, fake.batches, 3)
	assert.Len(t, fake.batches[0], 10)
	assert.Len(t, fake.batches[2], 3)
}

func TestSSMProvider_InvalidParameter(t *testing.T) {
	p := newSSMProviderWithClient("us-east-1", &fakeSSM{params: map[string]string{}})

	_, err := p.GetParametersBatch(context.Background(), []string{"/dev/pgist/missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/pgist/missing")
}

func TestSSMProvider_ClientError(t *testing.T) {
	boom := errors.New("AccessDenied")
	p := newSSMProviderWithClient("us-east-1", &fakeSSM{err: boom})

	_, err := p.GetParametersBatch(context.Background(), []string{"/a"})
	assert.ErrorIs(t, err, boom)
}

func TestSSMProvider_CanceledContext(t *testing.T) {
	fake := &fakeSSM{}
	p := newSSMProviderWithClient("us-east-1", fake)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GetParametersBatch(ctx, []string{"/a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.batches)
}

func TestSSMProvider_NoKeys(t *testing.T) {
	p := NewSSMProvider("eu-west-1")
	got, err := p.GetParametersBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Nil(t, p.client, "no client is built when there is nothing to fetch")
}

func TestEnvVarProvider(t *testing.T) {
	t.Setenv("PGIST_TEST_SECRET", "hunter2")

	var provider SecretProvider = NewEnvVarProvider()
	got, err := provider.GetParametersBatch(context.Background(), []string{"PGIST_TEST_SECRET", "PGIST_TEST_UNSET_XYZ"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PGIST_TEST_SECRET": "hunter2"}, got)
}
