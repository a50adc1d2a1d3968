package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testRequest(id string) *Request {
	return &Request{
		EscalationID: id,
		AndonID:      "andon-1",
		Equipment:    "BAG1",
		Line:         "L1",
		Level:        1,
		Priority:     models.PriorityCritical,
		Status:       models.AndonOpen,
		Recipients:   []string{"shift-lead"},
		Channel:      models.ChannelSMS,
		Message:      "BAG1 E-STOP",
		At:           time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func testServiceConfig(queue int) *config.NotificationsConfig {
	return &config.NotificationsConfig{QueueSize: queue, RatePerSecond: 1000, Burst: 100}
}

func TestServiceDispatchesToEverySender(t *testing.T) {
	ctrl := gomock.NewController(t)

	var wg sync.WaitGroup

	wg.Add(2)

	first := NewMockSender(ctrl)
	first.EXPECT().Name().Return("first").AnyTimes()
	first.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req *Request) error {
		defer wg.Done()

		assert.Equal(t, "andon-1:1", req.EscalationID)

		return errors.New("boom")
	})

	second := NewMockSender(ctrl)
	second.EXPECT().Name().Return("second").AnyTimes()
	second.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, *Request) error {
		wg.Done()
		return nil
	})

	svc := NewService(testServiceConfig(4), nil, nil, first, second)
	svc.Start(context.Background())

	require.NoError(t, svc.Enqueue(testRequest("andon-1:1")))

	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, svc.Stop(ctx))
	assert.ErrorIs(t, svc.Enqueue(testRequest("andon-1:2")), ErrServiceStopped)
}

func TestServiceEnqueueRejects(t *testing.T) {
	svc := NewService(testServiceConfig(1), nil, nil)

	noRecipients := testRequest("a")
	noRecipients.Recipients = nil
	require.ErrorIs(t, svc.Enqueue(noRecipients), ErrInvalidRequest)

	badChannel := testRequest("a")
	badChannel.Channel = "pager"
	require.ErrorIs(t, svc.Enqueue(badChannel), ErrInvalidRequest)

	// not started: the single slot fills and the next request is refused
	require.NoError(t, svc.Enqueue(testRequest("a")))
	require.ErrorIs(t, svc.Enqueue(testRequest("b")), ErrQueueFull)
}

func TestServiceStopDeadline(t *testing.T) {
	ctrl := gomock.NewController(t)

	started := make(chan struct{})

	slow := NewMockSender(ctrl)
	slow.EXPECT().Name().Return("slow").AnyTimes()
	slow.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ *Request) error {
		close(started)
		<-ctx.Done()

		return ctx.Err()
	})

	svc := NewService(testServiceConfig(2), nil, nil, slow)
	svc.Start(context.Background())

	require.NoError(t, svc.Enqueue(testRequest("a")))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, svc.Stop(ctx), context.DeadlineExceeded)
}
