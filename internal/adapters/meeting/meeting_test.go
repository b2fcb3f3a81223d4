package meeting

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) FindMeeting(ctx context.Context, ref string) (*Meeting, error) {
	args := m.Called(ctx, ref)
	if v := args.Get(0); v != nil {
		return v.(*Meeting), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) SaveMeeting(ctx context.Context, mt *Meeting) error {
	return m.Called(ctx, mt).Error(0)
}

func (m *mockRepo) SaveSummary(ctx context.Context, rec *SummaryRecord) error {
	return m.Called(ctx, rec).Error(0)
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	if v := args.Get(0); v != nil {
		return v.(*asynq.TaskInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func sampleSummary() domain.RoomSummary {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.RoomSummary{
		RoomID:     "R1",
		MeetingRef: "m-1",
		Participants: []domain.Participant{
			{UserID: "a", DisplayName: "A", Role: domain.RoleHost},
			{UserID: "b", DisplayName: "B", Role: domain.RoleParticipant},
		},
		CreatedAt: start,
		ClosedAt:  start.Add(90 * time.Second),
		Duration:  90 * time.Second,
	}
}

func TestStoreCanJoin(t *testing.T) {
	repo := &mockRepo{}
	store := NewStore(repo)
	ctx := context.Background()

	repo.On("SaveMeeting", ctx, mock.Anything).Return(nil)
	m, err := store.CreateMeeting(ctx, config.Meeting{Ref: "m-1", Title: "Standup", Password: "hunter2", Capacity: 4})
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", m.PasswordHash)

	repo.On("FindMeeting", ctx, "m-1").Return(m, nil)
	repo.On("FindMeeting", ctx, "gone").Return(nil, ErrMeetingNotFound)
	repo.On("FindMeeting", ctx, "locked").Return(&Meeting{Ref: "locked", Locked: true}, nil)
	repo.On("FindMeeting", ctx, "broken").Return(nil, errors.New("db down"))

	adm, err := store.CanJoin(ctx, "m-1", "hunter2")
	require.NoError(t, err)
	assert.True(t, adm.Allowed)
	assert.Equal(t, 4, adm.Capacity)

	adm, err = store.CanJoin(ctx, "m-1", "wrong")
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "wrong password", adm.Reason)

	adm, _ = store.CanJoin(ctx, "gone", "")
	assert.False(t, adm.Allowed)
	adm, _ = store.CanJoin(ctx, "locked", "")
	assert.False(t, adm.Allowed)

	_, err = store.CanJoin(ctx, "broken", "")
	assert.Error(t, err)

	adm, err = store.CanJoin(ctx, "", "")
	require.NoError(t, err)
	assert.True(t, adm.Allowed)
}

func TestStoreSeed(t *testing.T) {
	repo := &mockRepo{}
	var saved []*Meeting
	repo.On("SaveMeeting", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = append(saved, args.Get(1).(*Meeting))
	}).Return(nil)
	store := NewStore(repo)

	err := store.Seed(context.Background(), []config.Meeting{
		{Ref: "open", Title: "Open room"},
		{Ref: "board", Password: "s3cret", Capacity: 3, Locked: true},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Empty(t, saved[0].PasswordHash)
	assert.True(t, saved[1].Locked)
	assert.Equal(t, 3, saved[1].Capacity)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(saved[1].PasswordHash), []byte("s3cret")))

	err = store.Seed(context.Background(), []config.Meeting{{Ref: "   "}})
	assert.Error(t, err)
}

func TestStoreHandoffWritesRecord(t *testing.T) {
	repo := &mockRepo{}
	var saved *SummaryRecord
	repo.On("SaveSummary", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*SummaryRecord)
	}).Return(nil)

	require.NoError(t, NewStore(repo).Handoff(context.Background(), sampleSummary()))
	require.NotNil(t, saved)
	assert.Equal(t, "R1", saved.RoomID)
	assert.Equal(t, 2, saved.ParticipantCount)
	assert.Equal(t, int64(90), saved.DurationSeconds)

	var ps []map[string]any
	require.NoError(t, json.Unmarshal([]byte(saved.Participants), &ps))
	assert.Equal(t, "host", ps[0]["role"])
}

func TestOpenGate(t *testing.T) {
	adm, err := OpenGate{}.CanJoin(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.True(t, adm.Allowed)
}

func TestQueueHandoffEnqueuesSummaryTask(t *testing.T) {
	enq := &mockEnqueuer{}
	var task *asynq.Task
	enq.On("EnqueueContext", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		task = args.Get(1).(*asynq.Task)
	}).Return(&asynq.TaskInfo{ID: "t-1"}, nil)

	q := &Queue{client: enq}
	require.NoError(t, q.Handoff(context.Background(), sampleSummary()))
	require.NotNil(t, task)
	assert.Equal(t, TypeRoomSummary, task.Type())

	got, err := ParseSummaryTask(task)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("R1"), got.RoomID)
	assert.Len(t, got.Participants, 2)
	assert.NoError(t, q.Close())
}

func TestQueueHandoffError(t *testing.T) {
	enq := &mockEnqueuer{}
	enq.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))
	err := (&Queue{client: enq}).Handoff(context.Background(), sampleSummary())
	assert.ErrorContains(t, err, "redis down")
}

type sinkFunc func(ctx context.Context, s domain.RoomSummary) error

func (f sinkFunc) Handoff(ctx context.Context, s domain.RoomSummary) error { return f(ctx, s) }

func TestSummaryHandler(t *testing.T) {
	var got domain.RoomSummary
	h := NewSummaryHandler(sinkFunc(func(_ context.Context, s domain.RoomSummary) error {
		got = s
		return nil
	}))
	task, err := NewSummaryTask(sampleSummary())
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, "m-1", got.MeetingRef)

	err = h.ProcessTask(context.Background(), asynq.NewTask(TypeRoomSummary, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	failing := NewSummaryHandler(sinkFunc(func(context.Context, domain.RoomSummary) error {
		return errors.New("db down")
	}))
	err = failing.ProcessTask(context.Background(), task)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}
