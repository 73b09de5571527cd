package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
)

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) (interfaces.SubscriptionID, error) {
	args := m.Called(eventType, handler)
	return args.Get(0).(interfaces.SubscriptionID), args.Error(1)
}

func (m *mockEvents) Unsubscribe(id interfaces.SubscriptionID) error {
	return m.Called(id).Error(0)
}

func (m *mockEvents) Publish(ctx context.Context, event interfaces.Event) error {
	return m.Called(event.Type).Error(0)
}

func (m *mockEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return m.Called(event.Type).Error(0)
}

func (m *mockEvents) Close() error {
	return m.Called().Error(0)
}

func TestNotifier_ThrottlesJobProgress(t *testing.T) {
	events := &mockEvents{}
	events.On("Publish", interfaces.EventJobProgress).Return(nil)
	n := NewNotifier(events, time.Hour, models.LogLevelInfo, arbor.NewLogger())

	job := models.Job{ID: "j1", GroupID: "g1", TotalRows: 10}
	job.NextRowIndex = 1
	n.JobProgress(t.Context(), job)
	job.NextRowIndex = 2
	n.JobProgress(t.Context(), job) // Throttled
	job.NextRowIndex = 10
	n.JobProgress(t.Context(), job) // Final progress always goes out

	events.AssertNumberOfCalls(t, "Publish", 2)
}

func TestNotifier_ZeroIntervalDisablesThrottle(t *testing.T) {
	events := &mockEvents{}
	events.On("Publish", interfaces.EventGroupProgress).Return(nil)
	n := NewNotifier(events, 0, models.LogLevelInfo, arbor.NewLogger())

	group := models.Group{ID: "g1", Status: models.StatusRunning}
	for i := 0; i < 3; i++ {
		n.GroupProgress(t.Context(), group)
	}
	events.AssertNumberOfCalls(t, "Publish", 3)
}

func TestNotifier_FiltersJobLogsByLevel(t *testing.T) {
	events := &mockEvents{}
	events.On("Publish", interfaces.EventJobLog).Return(nil)
	n := NewNotifier(events, 0, models.LogLevelWarn, arbor.NewLogger())

	n.JobLog(t.Context(), models.JobLogEntry{JobID: "j1", Level: models.LogLevelDebug, Message: "noise"})
	n.JobLog(t.Context(), models.JobLogEntry{JobID: "j1", Level: models.LogLevelInfo, Message: "noise"})
	n.JobLog(t.Context(), models.JobLogEntry{JobID: "j1", Level: models.LogLevelWarn, Message: "row failed"})
	n.JobLog(t.Context(), models.JobLogEntry{JobID: "j1", Level: models.LogLevelError, Message: "job failed"})

	events.AssertNumberOfCalls(t, "Publish", 2)
}

func TestNotifier_PublishErrorsAreAbsorbed(t *testing.T) {
	events := &mockEvents{}
	events.On("Publish", interfaces.EventJobStatus).Return(errors.New("bus closed"))
	n := NewNotifier(events, 0, models.LogLevelInfo, arbor.NewLogger())

	n.JobStatusChanged(t.Context(), models.Job{ID: "j1", Status: models.StatusRunning})
	events.AssertExpectations(t)
}

func TestNotifier_RowErrorUsesOneBasedRow(t *testing.T) {
	events := &recordingEvents{}
	n := NewNotifier(events, 0, models.LogLevelInfo, arbor.NewLogger())

	n.RowError(t.Context(), models.Job{ID: "j1", GroupID: "g1"}, 4, "download failed")

	published := events.ofType(interfaces.EventJobError)
	if len(published) != 1 {
		t.Fatalf("expected one job_error event, got %d", len(published))
	}
	payload := published[0].Payload.(models.JobEvent)
	if payload.Row != 5 || payload.Message != "download failed" {
		t.Errorf("unexpected payload %+v", payload)
	}
}
