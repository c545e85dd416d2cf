package aws

import (
	"context"
	"errors"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeECS struct {
	input *ecs.DescribeServicesInput
	out   *ecs.DescribeServicesOutput
	err   error
}

func (f *fakeECS) DescribeServices(_ context.Context, params *ecs.DescribeServicesInput, _ ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestDescribeServiceMapsStateAndTags(t *testing.T) {
	client := &fakeECS{out: &ecs.DescribeServicesOutput{Services: []ecstypes.Service{{
		ServiceName:  awssdk.String("abc123"),
		RunningCount: 1,
		DesiredCount: 1,
		Status:       awssdk.String("ACTIVE"),
		Tags:         []ecstypes.Tag{{Key: awssdk.String("build_id"), Value: awssdk.String("42")}},
	}}}}

	state, err := NewServiceDescriber(client).DescribeService(context.Background(), "abc123", "xtages-staging-cluster")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "abc123", state.Name)
	assert.Equal(t, "xtages-staging-cluster", state.Cluster)
	assert.Equal(t, int32(1), state.RunningCount)
	assert.Equal(t, "ACTIVE", state.Status)
	assert.Equal(t, "42", state.Tags["build_id"])

	assert.Equal(t, []string{"abc123"}, client.input.Services)
	assert.Equal(t, "xtages-staging-cluster", awssdk.ToString(client.input.Cluster))
	assert.Equal(t, []ecstypes.ServiceField{ecstypes.ServiceFieldTags}, client.input.Include)
}

func TestDescribeServiceMissing(t *testing.T) {
	client := &fakeECS{out: &ecs.DescribeServicesOutput{}}

	state, err := NewServiceDescriber(client).DescribeService(context.Background(), "abc123", "c")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestDescribeServiceError(t *testing.T) {
	boom := errors.New("throttled")
	client := &fakeECS{err: boom}

	_, err := NewServiceDescriber(client).DescribeService(context.Background(), "abc123", "c")
	assert.ErrorIs(t, err, boom)
}
