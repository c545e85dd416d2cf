package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	EventSource = "aws.codebuild"

	DetailTypeStateChange = "CodeBuild Build State Change"
	DetailTypePhaseChange = "CodeBuild Build Phase Change"

	PhaseCompleted = "COMPLETED"

	PhaseStatusSucceeded = "SUCCEEDED"
	PhaseStatusFailed    = "FAILED"
)

// PhaseTimeLayout is the zone-less layout CodeBuild uses for phase timestamps, always UTC.
const PhaseTimeLayout = "Jan 2, 2006 3:04:05 PM"

// PhaseTime is a CodeBuild phase timestamp.
type PhaseTime struct {
	time.Time
}

func (t *PhaseTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseInLocation(PhaseTimeLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return fmt.Errorf("parse phase time %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}

// Event is the EventBridge envelope of a CodeBuild notification.
type Event struct {
	Account    string    `json:"account"`
	Region     string    `json:"region"`
	DetailType string    `json:"detail-type"`
	Source     string    `json:"source"`
	Time       time.Time `json:"time"`
	ID         string    `json:"id"`
	Resources  []string  `json:"resources"`
	Detail     Detail    `json:"detail"`
}

type Detail struct {
	BuildStatus           string                `json:"build-status"`
	ProjectName           string                `json:"project-name"`
	BuildID               string                `json:"build-id"`
	CurrentPhase          string                `json:"current-phase"`
	CurrentPhaseContext   string                `json:"current-phase-context"`
	AdditionalInformation AdditionalInformation `json:"additional-information"`
}

type AdditionalInformation struct {
	BuildComplete  bool       `json:"build-complete"`
	Initiator      string     `json:"initiator"`
	BuildStartTime *PhaseTime `json:"build-start-time"`
	Phases         []Phase    `json:"phases"`
}

type Phase struct {
	PhaseContext      []*string  `json:"phase-context"`
	StartTime         PhaseTime  `json:"start-time"`
	EndTime           *PhaseTime `json:"end-time"`
	DurationInSeconds *int64     `json:"duration-in-seconds"`
	PhaseType         string     `json:"phase-type"`
	PhaseStatus       string     `json:"phase-status"`
}

// Terminal reports whether the notification closes the build.
func (e *Event) Terminal() bool {
	return e.Detail.CurrentPhase == PhaseCompleted
}

// Message is the phase context joined by newlines for failed phases, nil otherwise.
func (p Phase) Message() *string {
	if p.PhaseStatus != PhaseStatusFailed {
		return nil
	}
	parts := make([]string, 0, len(p.PhaseContext))
	for _, c := range p.PhaseContext {
		if c == nil {
			parts = append(parts, "")
			continue
		}
		parts = append(parts, *c)
	}
	msg := strings.Join(parts, "\n")
	return &msg
}

// End is the phase end time, falling back to its start when CodeBuild left it open.
func (p Phase) End() time.Time {
	if p.EndTime == nil || p.EndTime.IsZero() {
		return p.StartTime.Time
	}
	return p.EndTime.Time
}

// ParseEvent decodes a CodeBuild notification body.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if strings.TrimSpace(event.Detail.BuildID) == "" {
		return nil, fmt.Errorf("%w: missing build-id", ErrMalformedNotification)
	}
	return &event, nil
}

// SortPhases orders phases by end time, open phases last, keeping the input
// order among equal keys. The input is not modified.
func SortPhases(phases []Phase) []Phase {
	sorted := make([]Phase, len(phases))
	copy(sorted, phases)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].EndTime, sorted[j].EndTime
		switch {
		case a == nil || a.IsZero():
			return false
		case b == nil || b.IsZero():
			return true
		default:
			return a.Before(b.Time)
		}
	})
	return sorted
}

// BuildStart describes a build the console has just asked CodeBuild to run.
type BuildStart struct {
	OrganizationName string
	ProjectID        snowflake.ID
	UserID           int64
	Environment      string
	CommitHash       string
	BuildArn         string
	StartTime        time.Time
}
