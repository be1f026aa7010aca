package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echogate/internal/apperr"
	"echogate/internal/models"
	"echogate/internal/service/graph"
	"echogate/internal/worker"
)

type countingProcessor struct {
	calls int
	out   string
	err   error
	echo  bool
}

func (p *countingProcessor) Process(_ context.Context, input string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	if p.echo {
		return input, nil
	}
	return p.out, nil
}

type memorySink struct {
	mu        sync.Mutex
	logs      []*models.ChatLog
	nextID    int64
	inserts   int
	insertErr error
}

func (s *memorySink) Insert(_ context.Context, model, user, assistant string) (*models.ChatLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	s.nextID++
	entry := &models.ChatLog{ID: s.nextID, Model: model, UserMessage: user, AssistantMessage: assistant, CreatedAt: time.Now().UTC()}
	s.logs = append(s.logs, entry)
	return entry, nil
}

func (s *memorySink) List(_ context.Context, limit int) ([]*models.ChatLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ChatLog, 0, limit)
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

func (s *memorySink) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.logs {
		if entry.ID == id {
			s.logs = append(s.logs[:i], s.logs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type busyPool struct{}

func (busyPool) Do(context.Context, string, func(context.Context) error) error {
	return worker.ErrDispatcherBusy
}

type writeCounter struct {
	ops map[string]int
}

func (w *writeCounter) RecordLogWrite(_ context.Context, op string, err error) {
	if w.ops == nil {
		w.ops = map[string]int{}
	}
	key := op
	if err != nil {
		key += ":error"
	}
	w.ops[key]++
}

func userRequest(content string) *models.ChatCompletionRequest {
	return &models.ChatCompletionRequest{
		Model:    "echo-x",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: content}},
	}
}

func newTestService(t *testing.T, proc graph.Processor, sink *memorySink, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(proc, sink, opts...)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(nil, &memorySink{})
	assert.Error(t, err)
	_, err = NewService(&countingProcessor{}, nil)
	assert.Error(t, err)
}

func TestCompleteEchoesAndPersists(t *testing.T) {
	sink := &memorySink{}
	rec := &writeCounter{}
	svc := newTestService(t, &countingProcessor{echo: true}, sink, WithRecorder(rec))

	res, err := svc.Complete(context.Background(), userRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Content)
	assert.Equal(t, "echo-x", res.Model)
	require.NotNil(t, res.Log)
	assert.Equal(t, "hello", res.Log.UserMessage)
	assert.Equal(t, "hello", res.Log.AssistantMessage)
	assert.Equal(t, 1, rec.ops["insert"])

	logs, err := svc.ListLogs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, res.Log.ID, logs[0].ID)
}

func TestCompleteUsesLastUserMessage(t *testing.T) {
	proc := &countingProcessor{echo: true}
	svc := newTestService(t, proc, &memorySink{})

	req := &models.ChatCompletionRequest{
		Model: "echo-x",
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "be brief"},
			{Role: models.RoleUser, Content: "first"},
			{Role: models.RoleAssistant, Content: "first"},
			{Role: models.RoleUser, Content: "second"},
		},
	}
	res, err := svc.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Content)
}

func TestCompleteValidationFailuresSkipProcessing(t *testing.T) {
	cases := map[string]struct {
		req  *models.ChatCompletionRequest
		code string
	}{
		"nil request":    {nil, apperr.CodeInvalidRequest},
		"missing model":  {&models.ChatCompletionRequest{Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "x"}}}, apperr.CodeInvalidRequest},
		"unknown role":   {&models.ChatCompletionRequest{Model: "m", Messages: []models.ChatMessage{{Role: "tool", Content: "x"}}}, apperr.CodeInvalidRequest},
		"empty messages": {&models.ChatCompletionRequest{Model: "m", Messages: []models.ChatMessage{}}, apperr.CodeMissingUserMessage},
		"no user turn":   {&models.ChatCompletionRequest{Model: "m", Messages: []models.ChatMessage{{Role: models.RoleSystem, Content: "x"}}}, apperr.CodeMissingUserMessage},
		"empty content":  {userRequest(""), apperr.CodeMissingUserMessage},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			proc := &countingProcessor{echo: true}
			sink := &memorySink{}
			svc := newTestService(t, proc, sink)

			_, err := svc.Complete(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Equal(t, tc.code, apperr.As(err).Code)
			assert.Zero(t, proc.calls)
			assert.Zero(t, sink.inserts)
		})
	}
}

func TestCompleteProcessingFailure(t *testing.T) {
	for name, procErr := range map[string]error{
		"node error":       errors.New("model unavailable"),
		"undefined output": graph.ErrUndefinedOutput,
	} {
		t.Run(name, func(t *testing.T) {
			sink := &memorySink{}
			svc := newTestService(t, &countingProcessor{err: procErr}, sink)

			_, err := svc.Complete(context.Background(), userRequest("hello"))
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindProcessing))
			assert.ErrorIs(t, err, procErr)
			assert.Zero(t, sink.inserts)
		})
	}
}

func TestCompletePersistenceFailureIsFatal(t *testing.T) {
	sink := &memorySink{insertErr: errors.New("disk full")}
	rec := &writeCounter{}
	proc := &countingProcessor{echo: true}
	svc := newTestService(t, proc, sink, WithRecorder(rec))

	res, err := svc.Complete(context.Background(), userRequest("hello"))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperr.Is(err, apperr.KindPersistence))
	assert.Equal(t, apperr.CodePersistenceFailed, apperr.As(err).Code)
	assert.Equal(t, 1, proc.calls)
	assert.Equal(t, 1, rec.ops["insert:error"])
}

func TestCompleteThroughPool(t *testing.T) {
	d := worker.NewDispatcher(1, 2, 4, time.Minute)
	defer d.Close()
	svc := newTestService(t, &countingProcessor{echo: true}, &memorySink{}, WithPool(d))

	res, err := svc.Complete(context.Background(), userRequest("pooled"))
	require.NoError(t, err)
	assert.Equal(t, "pooled", res.Content)
}

func TestCompleteBusyPool(t *testing.T) {
	sink := &memorySink{}
	svc := newTestService(t, &countingProcessor{echo: true}, sink, WithPool(busyPool{}))

	_, err := svc.Complete(context.Background(), userRequest("hello"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBusy))
	assert.Zero(t, sink.inserts)
}

func TestListLogsLimitBounds(t *testing.T) {
	svc := newTestService(t, &countingProcessor{echo: true}, &memorySink{})
	for _, limit := range []int{-1, 101} {
		_, err := svc.ListLogs(context.Background(), limit)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "limit %d", limit)
	}
	for _, limit := range []int{1, 100} {
		_, err := svc.ListLogs(context.Background(), limit)
		assert.NoError(t, err, "limit %d", limit)
	}
}

func TestListLogsNewestFirst(t *testing.T) {
	svc := newTestService(t, &countingProcessor{echo: true}, &memorySink{})
	for _, msg := range []string{"one", "two", "three"} {
		_, err := svc.Complete(context.Background(), userRequest(msg))
		require.NoError(t, err)
	}
	logs, err := svc.ListLogs(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "three", logs[0].UserMessage)
	assert.Equal(t, "two", logs[1].UserMessage)
}

func TestDeleteLogNeverSucceedsTwice(t *testing.T) {
	svc := newTestService(t, &countingProcessor{echo: true}, &memorySink{})
	res, err := svc.Complete(context.Background(), userRequest("hello"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLog(context.Background(), res.Log.ID))
	for i := 0; i < 2; i++ {
		err = svc.DeleteLog(context.Background(), res.Log.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	}
	assert.True(t, apperr.Is(svc.DeleteLog(context.Background(), 999999), apperr.KindNotFound))
}
