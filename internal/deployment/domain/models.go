package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DeployStatus is the observed state of a project's ECS service.
type DeployStatus string

const (
	DeployStatusDeployed     DeployStatus = "DEPLOYED"
	DeployStatusDrained      DeployStatus = "DRAINED"
	DeployStatusDraining     DeployStatus = "DRAINING"
	DeployStatusProvisioning DeployStatus = "PROVISIONING"
)

// Environment values as stored on deployments.
type Environment string

const (
	EnvironmentStaging    Environment = "staging"
	EnvironmentProduction Environment = "production"
)

const (
	ServiceStatusActive = "ACTIVE"
	BuildIDTag          = "build_id"
	operationUpdate     = "UPDATESERVICE"
)

// ServiceState is the live view of an ECS service.
type ServiceState struct {
	Name         string
	Cluster      string
	RunningCount int32
	DesiredCount int32
	Status       string
	Tags         map[string]string
}

// BuildID is the build the service was last deployed from, nil when untagged.
func (s *ServiceState) BuildID() *int64 {
	if s == nil {
		return nil
	}
	raw, ok := s.Tags[BuildIDTag]
	if !ok {
		return nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// ResolveStatus classifies a live service. Combinations outside the known
// patterns, including a missing service, are ErrUnknownProjectDeploymentStatus.
func ResolveStatus(s *ServiceState) (DeployStatus, error) {
	if s == nil {
		return "", fmt.Errorf("%w: service not found", ErrUnknownProjectDeploymentStatus)
	}
	running, desired := s.RunningCount, s.DesiredCount
	switch {
	case running == desired && desired == 1 && s.Status == ServiceStatusActive:
		return DeployStatusDeployed, nil
	case running == desired && desired == 0:
		return DeployStatusDrained, nil
	case running == 1 && desired == 0:
		return DeployStatusDraining, nil
	case running == 0 && desired == 1:
		return DeployStatusProvisioning, nil
	default:
		return "", fmt.Errorf("%w: running=%d desired=%d status=%s service=%s",
			ErrUnknownProjectDeploymentStatus, running, desired, s.Status, s.Name)
	}
}

// Target identifies the ECS service a notification is about. Service is the project hash.
type Target struct {
	Environment Environment
	Service     string
	Cluster     string
}

// SteadyStateEvent is an ECS "service reached a steady state" event.
type SteadyStateEvent struct {
	Account   string    `json:"account"`
	Region    string    `json:"region"`
	Time      time.Time `json:"time"`
	ID        string    `json:"id"`
	Resources []string  `json:"resources"`
}

func (e *SteadyStateEvent) Target() (Target, error) {
	if len(e.Resources) == 0 || strings.TrimSpace(e.Resources[0]) == "" {
		return Target{}, fmt.Errorf("%w: steady state event without resources", ErrMalformedNotification)
	}

	env := EnvironmentProduction
	for _, r := range e.Resources {
		if containsFold(r, "staging") {
			env = EnvironmentStaging
			break
		}
	}
	resource := e.Resources[0]
	return Target{
		Environment: env,
		Service:     afterLast(resource, "/"),
		Cluster:     beforeLast(after(resource, "/"), "/"),
	}, nil
}

// CloudTrailEvent is an ECS API call recorded by CloudTrail.
type CloudTrailEvent struct {
	Account string           `json:"account"`
	Region  string           `json:"region"`
	Time    time.Time        `json:"time"`
	ID      string           `json:"id"`
	Detail  CloudTrailDetail `json:"detail"`
}

type CloudTrailDetail struct {
	EventName         string            `json:"eventName"`
	RequestParameters RequestParameters `json:"requestParameters"`
}

type RequestParameters struct {
	Cluster      string  `json:"cluster"`
	DesiredCount *int32  `json:"desiredCount"`
	Service      *string `json:"service"`
	ServiceName  *string `json:"serviceName"`
}

// ScaleInTarget resolves an auto-scaling UpdateService call.
func (e *CloudTrailEvent) ScaleInTarget() (Target, error) {
	service := e.Detail.RequestParameters.Service
	if service == nil || strings.TrimSpace(*service) == "" {
		return Target{}, fmt.Errorf("%w: scale-in event without service", ErrMalformedNotification)
	}
	return e.target(*service)
}

// DeployTarget resolves a CreateService or UpdateService call.
func (e *CloudTrailEvent) DeployTarget() (Target, error) {
	service := e.Detail.RequestParameters.ServiceName
	if strings.ToUpper(strings.TrimSpace(e.Detail.EventName)) == operationUpdate {
		service = e.Detail.RequestParameters.Service
	}
	if service == nil || strings.TrimSpace(*service) == "" {
		return Target{}, fmt.Errorf("%w: %s event without service", ErrMalformedNotification, e.Detail.EventName)
	}
	return e.target(afterLast(*service, "/"))
}

func (e *CloudTrailEvent) target(service string) (Target, error) {
	cluster := strings.TrimSpace(e.Detail.RequestParameters.Cluster)
	if cluster == "" {
		return Target{}, fmt.Errorf("%w: event without cluster", ErrMalformedNotification)
	}
	env := EnvironmentProduction
	if containsFold(cluster, "STAGING") {
		env = EnvironmentStaging
	}
	return Target{
		Environment: env,
		Service:     service,
		Cluster:     afterLast(cluster, "/"),
	}, nil
}

func ParseSteadyState(payload []byte) (*SteadyStateEvent, error) {
	var event SteadyStateEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	return &event, nil
}

func ParseCloudTrail(payload []byte) (*CloudTrailEvent, error) {
	var event CloudTrailEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	return &event, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// after, afterLast and beforeLast return s unchanged when sep is absent.
func after(s, sep string) string {
	if idx := strings.Index(s, sep); idx >= 0 {
		return s[idx+len(sep):]
	}
	return s
}

func afterLast(s, sep string) string {
	if idx := strings.LastIndex(s, sep); idx >= 0 {
		return s[idx+len(sep):]
	}
	return s
}

func beforeLast(s, sep string) string {
	if idx := strings.LastIndex(s, sep); idx >= 0 {
		return s[:idx]
	}
	return s
}
