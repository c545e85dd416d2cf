package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	deploymentdomain "github.com/xtages/console/internal/deployment/domain"
)

// ECSAPI is the subset of the ECS client used here.
type ECSAPI interface {
	DescribeServices(ctx context.Context, params *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
}

type ServiceDescriber struct {
	client ECSAPI
}

func NewServiceDescriber(client ECSAPI) *ServiceDescriber {
	return &ServiceDescriber{client: client}
}

func (d *ServiceDescriber) DescribeService(ctx context.Context, serviceName, clusterName string) (*deploymentdomain.ServiceState, error) {
	out, err := d.client.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Services: []string{serviceName},
		Cluster:  awssdk.String(clusterName),
		Include:  []ecstypes.ServiceField{ecstypes.ServiceFieldTags},
	})
	if err != nil {
		return nil, fmt.Errorf("ecs describe services: %w", err)
	}
	if len(out.Services) != 1 {
		return nil, nil
	}

	svc := out.Services[0]
	tags := make(map[string]string, len(svc.Tags))
	for _, tag := range svc.Tags {
		tags[awssdk.ToString(tag.Key)] = awssdk.ToString(tag.Value)
	}
	return &deploymentdomain.ServiceState{
		Name:         awssdk.ToString(svc.ServiceName),
		Cluster:      clusterName,
		RunningCount: svc.RunningCount,
		DesiredCount: svc.DesiredCount,
		Status:       awssdk.ToString(svc.Status),
		Tags:         tags,
	}, nil
}
