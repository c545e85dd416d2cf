package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	buildeventdomain "github.com/xtages/console/internal/buildevent/domain"
	"github.com/xtages/console/internal/clock"
	"github.com/xtages/console/internal/config"
	"github.com/xtages/console/internal/dedup"
	ledgerdomain "github.com/xtages/console/internal/ledger/domain"
	"github.com/xtages/console/internal/ledger/ledgertest"
	ledgerrepo "github.com/xtages/console/internal/ledger/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	accountID = "123456789012"
	buildArn  = "arn:aws:codebuild:us-east-1:123456789012:build/acme-web-ci:42"
)

var started = time.Date(2024, time.May, 20, 8, 0, 0, 0, time.UTC)

type phaseJSON struct {
	PhaseType    string   `json:"phase-type"`
	PhaseStatus  string   `json:"phase-status,omitempty"`
	StartTime    string   `json:"start-time"`
	EndTime      string   `json:"end-time,omitempty"`
	PhaseContext []string `json:"phase-context,omitempty"`
}

func phaseTime(t time.Time) string {
	return t.Format(buildeventdomain.PhaseTimeLayout)
}

func payload(t *testing.T, detailType, currentPhase, buildStatus string, phases []phaseJSON) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"account":     accountID,
		"region":      "us-east-1",
		"detail-type": detailType,
		"source":      buildeventdomain.EventSource,
		"time":        started.Add(10 * time.Minute).Format(time.RFC3339),
		"detail": map[string]any{
			"build-status":  buildStatus,
			"build-id":      buildArn,
			"current-phase": currentPhase,
			"additional-information": map[string]any{
				"phases": phases,
			},
		},
	})
	require.NoError(t, err)
	return body
}

// completedPhases lists the phases of a successful build out of order, the COMPLETED one still open.
func completedPhases() []phaseJSON {
	return []phaseJSON{
		{PhaseType: "BUILD", PhaseStatus: "SUCCEEDED", StartTime: phaseTime(started.Add(2 * time.Minute)), EndTime: phaseTime(started.Add(6 * time.Minute))},
		{PhaseType: "COMPLETED", StartTime: phaseTime(started.Add(7 * time.Minute))},
		{PhaseType: "SUBMITTED", PhaseStatus: "SUCCEEDED", StartTime: phaseTime(started), EndTime: phaseTime(started.Add(time.Minute))},
	}
}

type fixture struct {
	db    *gorm.DB
	svc   buildeventdomain.Service
	build *ledgerdomain.Build
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := ledgertest.NewDB(t)
	node := ledgertest.NewNode(t)
	ledger := ledgerrepo.Provide()

	svc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(started),
		Config: config.Config{AWS: config.AWSConfig{AccountID: accountID}},
		Ledger: ledger,
		Dedup:  dedup.New(dedup.Params{Ledger: ledger, Log: zap.NewNop()}),
	})

	build, err := svc.RecordBuildStarted(context.Background(), buildeventdomain.BuildStart{
		OrganizationName: "acme",
		ProjectID:        node.Generate(),
		UserID:           7,
		Environment:      "Staging",
		CommitHash:       "abc123",
		BuildArn:         buildArn,
	})
	require.NoError(t, err)
	return &fixture{db: db, svc: svc, build: build}
}

func (f *fixture) events(t *testing.T, notificationID string) []ledgerdomain.BuildEvent {
	t.Helper()
	var rows []ledgerdomain.BuildEvent
	require.NoError(t, f.db.Where("notification_id = ?", notificationID).Order("end_time ASC").Find(&rows).Error)
	return rows
}

func (f *fixture) reload(t *testing.T) ledgerdomain.Build {
	t.Helper()
	var b ledgerdomain.Build
	require.NoError(t, f.db.First(&b, "id = ?", f.build.ID).Error)
	return b
}

func TestRecordBuildStartedWritesBootstrap(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "staging", f.build.Environment)
	assert.Equal(t, ledgerdomain.BuildStatusInProgress, f.build.Status)
	assert.Equal(t, started, f.build.StartTime)

	bootstrap, err := ledgerrepo.Provide().FindBootstrapEvent(context.Background(), f.db, buildArn)
	require.NoError(t, err)
	require.NotNil(t, bootstrap)
	assert.Equal(t, f.build.ID, bootstrap.BuildID)
	assert.Equal(t, "abc123", bootstrap.CommitHash)
	assert.Nil(t, bootstrap.NotificationID)
}

func TestRecordBuildStartedValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordBuildStarted(context.Background(), buildeventdomain.BuildStart{OrganizationName: "acme", BuildArn: "arn:2", Environment: "qa"})
	require.ErrorIs(t, err, buildeventdomain.ErrInvalidBuildStart)

	_, err = f.svc.RecordBuildStarted(context.Background(), buildeventdomain.BuildStart{OrganizationName: "acme", Environment: "dev"})
	require.ErrorIs(t, err, buildeventdomain.ErrInvalidBuildStart)
}

func TestNonTerminalStatusChangeAppendsOneRow(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleNotification(context.Background(), "msg-1", payload(t, buildeventdomain.DetailTypeStateChange, "BUILD", "IN_PROGRESS", nil))
	require.NoError(t, err)

	rows := f.events(t, "msg-1")
	require.Len(t, rows, 1)
	assert.Equal(t, "BUILD", rows[0].Name)
	assert.Equal(t, "IN_PROGRESS", rows[0].Status)
	assert.WithinDuration(t, started.Add(10*time.Minute), rows[0].StartTime, 0)
	assert.WithinDuration(t, rows[0].StartTime, rows[0].EndTime, 0)
	assert.Equal(t, "acme", rows[0].OrganizationName)
	assert.Equal(t, int64(7), rows[0].UserID)
	assert.Equal(t, "staging", rows[0].Environment)
	assert.Equal(t, f.build.ID, rows[0].BuildID)

	assert.Equal(t, ledgerdomain.BuildStatusInProgress, f.reload(t).Status)
}

func TestCompletedStatusChangeOrdersPhasesAndClosesBuild(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleNotification(context.Background(), "msg-done", payload(t, buildeventdomain.DetailTypeStateChange, "COMPLETED", "SUCCEEDED", completedPhases()))
	require.NoError(t, err)

	rows := f.events(t, "msg-done")
	require.Len(t, rows, 3)
	assert.Equal(t, "SUBMITTED", rows[0].Name)
	assert.Equal(t, "BUILD", rows[1].Name)
	assert.Equal(t, "COMPLETED", rows[2].Name)
	assert.Equal(t, "SUCCEEDED", rows[2].Status)
	assert.WithinDuration(t, started.Add(7*time.Minute), rows[2].EndTime, 0)
	for _, row := range rows {
		assert.Nil(t, row.Message)
	}

	build := f.reload(t)
	assert.Equal(t, ledgerdomain.BuildStatusSucceeded, build.Status)
	require.NotNil(t, build.EndTime)
	assert.WithinDuration(t, started.Add(7*time.Minute), *build.EndTime, 0)
}

func TestSameNotificationTwiceWritesOnce(t *testing.T) {
	f := newFixture(t)
	body := payload(t, buildeventdomain.DetailTypeStateChange, "COMPLETED", "SUCCEEDED", completedPhases())

	require.NoError(t, f.svc.HandleNotification(context.Background(), "msg-dup", body))
	require.NoError(t, f.svc.HandleNotification(context.Background(), "msg-dup", body))

	assert.Len(t, f.events(t, "msg-dup"), 3)
}

func TestFailedPhaseCarriesMessageAndFailsBuild(t *testing.T) {
	f := newFixture(t)
	phases := []phaseJSON{
		{PhaseType: "SUBMITTED", PhaseStatus: "SUCCEEDED", StartTime: phaseTime(started), EndTime: phaseTime(started.Add(time.Minute))},
		{PhaseType: "BUILD", PhaseStatus: "FAILED", StartTime: phaseTime(started.Add(time.Minute)), EndTime: phaseTime(started.Add(3 * time.Minute)),
			PhaseContext: []string{"COMMAND_EXECUTION_ERROR: Error while executing command", "exit status 2"}},
		{PhaseType: "COMPLETED", StartTime: phaseTime(started.Add(4 * time.Minute))},
	}

	err := f.svc.HandleNotification(context.Background(), "msg-failed", payload(t, buildeventdomain.DetailTypeStateChange, "COMPLETED", "FAILED", phases))
	require.NoError(t, err)

	rows := f.events(t, "msg-failed")
	require.Len(t, rows, 3)
	require.NotNil(t, rows[1].Message)
	assert.Equal(t, "COMMAND_EXECUTION_ERROR: Error while executing command\nexit status 2", *rows[1].Message)
	assert.Equal(t, ledgerdomain.BuildStatusFailed, f.reload(t).Status)
}

func TestCompletedWithoutTrailingCompletedPhaseIsMalformed(t *testing.T) {
	f := newFixture(t)
	phases := []phaseJSON{
		{PhaseType: "SUBMITTED", PhaseStatus: "SUCCEEDED", StartTime: phaseTime(started), EndTime: phaseTime(started.Add(time.Minute))},
		{PhaseType: "BUILD", PhaseStatus: "SUCCEEDED", StartTime: phaseTime(started.Add(time.Minute))},
		{PhaseType: "COMPLETED", StartTime: phaseTime(started.Add(4 * time.Minute)), EndTime: phaseTime(started.Add(4 * time.Minute))},
	}

	err := f.svc.HandleNotification(context.Background(), "msg-bad", payload(t, buildeventdomain.DetailTypeStateChange, "COMPLETED", "SUCCEEDED", phases))
	require.ErrorIs(t, err, buildeventdomain.ErrMalformedNotification)
	assert.Empty(t, f.events(t, "msg-bad"))
	assert.Equal(t, ledgerdomain.BuildStatusInProgress, f.reload(t).Status)
}

func TestCompletedWithoutPhasesIsMalformed(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleNotification(context.Background(), "msg-empty", payload(t, buildeventdomain.DetailTypeStateChange, "COMPLETED", "SUCCEEDED", nil))
	require.ErrorIs(t, err, buildeventdomain.ErrMalformedNotification)
}

func TestPhaseChangeIsDropped(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleNotification(context.Background(), "msg-phase", payload(t, buildeventdomain.DetailTypePhaseChange, "BUILD", "IN_PROGRESS", nil))
	require.NoError(t, err)
	assert.Empty(t, f.events(t, "msg-phase"))
}

func TestForeignAccountIsMalformed(t *testing.T) {
	f := newFixture(t)
	body := payload(t, buildeventdomain.DetailTypeStateChange, "BUILD", "IN_PROGRESS", nil)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	raw["account"] = "999999999999"
	foreign, err := json.Marshal(raw)
	require.NoError(t, err)

	err = f.svc.HandleNotification(context.Background(), "msg-foreign", foreign)
	require.ErrorIs(t, err, buildeventdomain.ErrMalformedNotification)
	assert.Empty(t, f.events(t, "msg-foreign"))
}

func TestUnknownBuildArnIsMissingBootstrap(t *testing.T) {
	f := newFixture(t)
	body := payload(t, buildeventdomain.DetailTypeStateChange, "BUILD", "IN_PROGRESS", nil)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	raw["detail"].(map[string]any)["build-id"] = "arn:aws:codebuild:us-east-1:123456789012:build/other:1"
	orphan, err := json.Marshal(raw)
	require.NoError(t, err)

	err = f.svc.HandleNotification(context.Background(), "msg-orphan", orphan)
	require.ErrorIs(t, err, buildeventdomain.ErrMissingBootstrapContext)
	assert.Empty(t, f.events(t, "msg-orphan"))
}

func TestRollUp(t *testing.T) {
	row := func(name, status string) *ledgerdomain.BuildEvent {
		return &ledgerdomain.BuildEvent{Name: name, Status: status}
	}

	assert.Equal(t, ledgerdomain.BuildStatusSucceeded, rollUp([]*ledgerdomain.BuildEvent{row("BUILD", "SUCCEEDED"), row("COMPLETED", "SUCCEEDED")}))
	assert.Equal(t, ledgerdomain.BuildStatusFailed, rollUp([]*ledgerdomain.BuildEvent{row("BUILD", "FAILED"), row("COMPLETED", "SUCCEEDED")}))
	assert.Equal(t, ledgerdomain.BuildStatusUnknown, rollUp([]*ledgerdomain.BuildEvent{row("BUILD", "STOPPED")}))
}
