package aws

import (
	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	deploymentdomain "github.com/xtages/console/internal/deployment/domain"
	notificationdomain "github.com/xtages/console/internal/notification/domain"
	usagedomain "github.com/xtages/console/internal/usage/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.aws",
	fx.Provide(LoadConfig),
	fx.Provide(
		fx.Annotate(
			func(cfg awssdk.Config) *ecs.Client { return ecs.NewFromConfig(cfg) },
			fx.As(new(ECSAPI)),
		),
		fx.Annotate(
			func(cfg awssdk.Config) *cloudwatch.Client { return cloudwatch.NewFromConfig(cfg) },
			fx.As(new(CloudWatchAPI)),
		),
		fx.Annotate(
			func(cfg awssdk.Config) *sqs.Client { return sqs.NewFromConfig(cfg) },
			fx.As(new(SQSAPI)),
		),
	),
	fx.Provide(
		fx.Annotate(NewServiceDescriber, fx.As(new(deploymentdomain.ServiceDescriber))),
		fx.Annotate(NewQueue, fx.As(new(notificationdomain.Queue))),
		NewMeter,
		func(m *Meter) usagedomain.DataTransferMeter { return m },
		func(m *Meter) usagedomain.StorageMeter { return m },
	),
)
