package aws

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/xtages/console/internal/config"
)

const (
	egressPeriodSeconds  int32 = 60 * 60
	storagePeriodSeconds int32 = 5 * 60
	storageLookback            = 5 * time.Minute

	rdsNamespace         = "AWS/RDS"
	freeStorageMetric    = "FreeStorageSpace"
	dbInstanceDimension  = "DBInstanceIdentifier"
	dbInstanceNamePrefix = "db-"
)

var deployEnvironments = []string{"staging", "production"}

// CloudWatchAPI is the subset of the CloudWatch client used here.
type CloudWatchAPI interface {
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// Meter reads organization resource usage from CloudWatch.
type Meter struct {
	client     CloudWatchAPI
	egressName string
	now        func() time.Time
}

func NewMeter(client CloudWatchAPI, cfg config.Config) *Meter {
	return &Meter{
		client:     client,
		egressName: cfg.AWS.EgressMetricName,
		now:        time.Now,
	}
}

// DataTransferBytes sums the bytes sent by every project in both environments
// between since and until. Each project publishes to its own namespace.
func (m *Meter) DataTransferBytes(ctx context.Context, orgHash string, projectHashes []string, since, until time.Time) (int64, error) {
	if len(projectHashes) == 0 {
		return 0, nil
	}

	queries := make([]cwtypes.MetricDataQuery, 0, len(projectHashes)*len(deployEnvironments))
	for _, env := range deployEnvironments {
		for _, hash := range projectHashes {
			queries = append(queries, cwtypes.MetricDataQuery{
				Id: awssdk.String(env + "_" + hash),
				MetricStat: &cwtypes.MetricStat{
					Metric: &cwtypes.Metric{
						Namespace:  awssdk.String(hash),
						MetricName: awssdk.String(m.egressName),
						Dimensions: []cwtypes.Dimension{
							{Name: awssdk.String("environment"), Value: awssdk.String(env)},
							{Name: awssdk.String("organization"), Value: awssdk.String(orgHash)},
							{Name: awssdk.String("application"), Value: awssdk.String(hash)},
						},
					},
					Period: awssdk.Int32(egressPeriodSeconds),
					Stat:   awssdk.String(string(cwtypes.StatisticSum)),
				},
			})
		}
	}

	input := &cloudwatch.GetMetricDataInput{
		MetricDataQueries: queries,
		StartTime:         awssdk.Time(since.UTC().Truncate(time.Millisecond)),
		EndTime:           awssdk.Time(until.UTC().Truncate(time.Millisecond)),
	}

	var total float64
	paginator := cloudwatch.NewGetMetricDataPaginator(m.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("cloudwatch get metric data: %w", err)
		}
		for _, result := range page.MetricDataResults {
			for _, v := range result.Values {
				total += v
			}
		}
	}
	return int64(total), nil
}

// FreeStorageBytes is the average free space of the organization's database over
// the last few minutes, or -1 when CloudWatch has no datapoints yet.
func (m *Meter) FreeStorageBytes(ctx context.Context, orgHash string) (int64, error) {
	end := m.now().UTC().Truncate(time.Millisecond)
	out, err := m.client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  awssdk.String(rdsNamespace),
		MetricName: awssdk.String(freeStorageMetric),
		Dimensions: []cwtypes.Dimension{
			{Name: awssdk.String(dbInstanceDimension), Value: awssdk.String(dbInstanceNamePrefix + orgHash)},
		},
		Period:     awssdk.Int32(storagePeriodSeconds),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
		StartTime:  awssdk.Time(end.Add(-storageLookback)),
		EndTime:    awssdk.Time(end),
	})
	if err != nil {
		return 0, fmt.Errorf("cloudwatch get metric statistics: %w", err)
	}
	if len(out.Datapoints) == 0 {
		return -1, nil
	}

	var sum float64
	for _, dp := range out.Datapoints {
		sum += awssdk.ToFloat64(dp.Average)
	}
	return int64(sum / float64(len(out.Datapoints))), nil
}
