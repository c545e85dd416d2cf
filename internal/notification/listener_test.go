package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	buildeventdomain "github.com/xtages/console/internal/buildevent/domain"
	"github.com/xtages/console/internal/config"
	"github.com/xtages/console/internal/dedup"
	ledgerdomain "github.com/xtages/console/internal/ledger/domain"
	notificationdomain "github.com/xtages/console/internal/notification/domain"
	"go.uber.org/zap"
)

const buildQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/build-updates-queue"

type fakeQueue struct {
	mu       sync.Mutex
	batch    []notificationdomain.Message
	opts     notificationdomain.ReceiveOptions
	err      error
	deleted  []string
	received int
}

func (q *fakeQueue) Receive(_ context.Context, _ string, opts notificationdomain.ReceiveOptions) ([]notificationdomain.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.opts = opts
	q.received++
	return q.batch, q.err
}

func (q *fakeQueue) Delete(_ context.Context, _ string, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

type fakeBuildEvents struct {
	mu    sync.Mutex
	calls map[string][]byte
	errs  map[string]error
}

func (f *fakeBuildEvents) HandleNotification(_ context.Context, notificationID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string][]byte{}
	}
	f.calls[notificationID] = payload
	return f.errs[notificationID]
}

func (f *fakeBuildEvents) RecordBuildStarted(context.Context, buildeventdomain.BuildStart) (*ledgerdomain.Build, error) {
	return nil, errors.New("not used")
}

type fakeDeployments struct{}

func (fakeDeployments) HandleSteadyState(context.Context, string, []byte) error     { return nil }
func (fakeDeployments) HandleScaleIn(context.Context, string, []byte) error         { return nil }
func (fakeDeployments) HandleDeployCompleted(context.Context, string, []byte) error { return nil }

func envelope(t *testing.T, snsID, message string) string {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"Type":      "Notification",
		"MessageId": snsID,
		"TopicArn":  "arn:aws:sns:us-east-1:123456789012:build-updates",
		"Message":   message,
	})
	require.NoError(t, err)
	return string(body)
}

func buildQueue() config.QueueConfig {
	return config.QueueConfig{
		Name:              config.QueueBuildUpdates,
		URL:               buildQueueURL,
		Enabled:           true,
		MaxMessages:       10,
		WaitSeconds:       20,
		VisibilityTimeout: 60,
		Concurrency:       2,
		HandlerTimeout:    time.Second,
	}
}

func newListener(queue *fakeQueue, builds *fakeBuildEvents) *Listener {
	return New(Params{
		Log:         zap.NewNop(),
		Listeners:   config.NewStaticListenerConfig(config.ListenerConfig{Queues: []config.QueueConfig{buildQueue()}}),
		Queue:       queue,
		BuildEvents: builds,
		Deployments: fakeDeployments{},
	})
}

func TestPollOnceDeletesOnlySuccessfulMessages(t *testing.T) {
	queue := &fakeQueue{batch: []notificationdomain.Message{
		{ID: "sqs-1", ReceiptHandle: "r-ok", Body: envelope(t, "sns-ok", `{"ok":true}`)},
		{ID: "sqs-2", ReceiptHandle: "r-bad", Body: envelope(t, "sns-bad", `{}`)},
		{ID: "sqs-3", ReceiptHandle: "r-busy", Body: envelope(t, "sns-busy", `{}`)},
		{ID: "sqs-4", ReceiptHandle: "r-transient", Body: envelope(t, "sns-transient", `{}`)},
	}}
	builds := &fakeBuildEvents{errs: map[string]error{
		"sns-bad":       buildeventdomain.ErrMalformedNotification,
		"sns-busy":      dedup.ErrNotificationInFlight,
		"sns-transient": errors.New("connection reset"),
	}}

	require.NoError(t, newListener(queue, builds).PollOnce(context.Background(), buildQueue()))

	assert.Equal(t, []string{"r-ok"}, queue.deleted)
	assert.Equal(t, []byte(`{"ok":true}`), builds.calls["sns-ok"])
	assert.Len(t, builds.calls, 4)
	assert.Equal(t, notificationdomain.ReceiveOptions{MaxMessages: 10, WaitSeconds: 20, VisibilityTimeout: 60}, queue.opts)
}

func TestPollOnceLeavesMalformedEnvelopesQueued(t *testing.T) {
	queue := &fakeQueue{batch: []notificationdomain.Message{
		{ID: "sqs-1", ReceiptHandle: "r-1", Body: `not an envelope`},
	}}
	builds := &fakeBuildEvents{}

	require.NoError(t, newListener(queue, builds).PollOnce(context.Background(), buildQueue()))

	assert.Empty(t, queue.deleted)
	assert.Empty(t, builds.calls)
}

func TestPollOnceRecoversFromHandlerPanic(t *testing.T) {
	queue := &fakeQueue{batch: []notificationdomain.Message{
		{ID: "sqs-1", ReceiptHandle: "r-1", Body: envelope(t, "sns-1", `{}`)},
	}}
	l := newListener(queue, &fakeBuildEvents{})
	l.handlers[config.QueueBuildUpdates] = func(context.Context, string, []byte) error {
		panic("boom")
	}

	require.NoError(t, l.PollOnce(context.Background(), buildQueue()))
	assert.Empty(t, queue.deleted)
}

func TestPollOnceReturnsReceiveErrors(t *testing.T) {
	boom := errors.New("throttled")
	queue := &fakeQueue{err: boom}

	err := newListener(queue, &fakeBuildEvents{}).PollOnce(context.Background(), buildQueue())
	assert.ErrorIs(t, err, boom)
}

func TestPollOnceUnknownQueue(t *testing.T) {
	err := newListener(&fakeQueue{}, &fakeBuildEvents{}).PollOnce(context.Background(), config.QueueConfig{Name: "unknown"})
	assert.Error(t, err)
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	queue := &fakeQueue{}
	l := newListener(queue, &fakeBuildEvents{})
	l.idle = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return queue.received > 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}
