package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"echogate/internal/apperr"
	"echogate/internal/models"
	"echogate/internal/service/graph"
	"echogate/internal/storage"
	"echogate/internal/worker"
)

const (
	DefaultLogLimit = 20
	MaxLogLimit     = 100
)

// Pool runs generation work; *worker.Dispatcher satisfies it.
type Pool interface {
	Do(ctx context.Context, key string, fn func(context.Context) error) error
}

// Recorder receives persistence outcomes; *metrics.Recorder satisfies it.
type Recorder interface {
	RecordLogWrite(ctx context.Context, op string, err error)
}

// Service drives one chat exchange from validated request to persisted reply.
type Service struct {
	processor graph.Processor
	sink      storage.Sink
	pool      Pool
	recorder  Recorder
}

type Option func(*Service)

// WithPool routes generation through a bounded worker pool.
func WithPool(pool Pool) Option {
	return func(s *Service) { s.pool = pool }
}

func WithRecorder(rec Recorder) Option {
	return func(s *Service) { s.recorder = rec }
}

func NewService(processor graph.Processor, sink storage.Sink, opts ...Option) (*Service, error) {
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if sink == nil {
		return nil, errors.New("log sink is required")
	}
	s := &Service{processor: processor, sink: sink}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Result is a processed and persisted exchange, ready to be shaped for the client.
type Result struct {
	Model   string
	Content string
	Log     *models.ChatLog
}

// Complete validates req, runs the processor on the last user message and
// persists the exchange. Nothing is returned to the caller unless the log
// write succeeded.
func (s *Service) Complete(ctx context.Context, req *models.ChatCompletionRequest) (*Result, error) {
	if req == nil {
		return nil, apperr.InvalidRequest("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidRequest, err.Error(), err)
	}
	userMessage, ok := req.LastUserMessage()
	if !ok {
		return nil, apperr.MissingUserMessage()
	}

	content, err := s.process(ctx, req.Model, userMessage)
	if err != nil {
		return nil, err
	}

	entry, err := s.sink.Insert(ctx, req.Model, userMessage, content)
	s.recordWrite(ctx, "insert", err)
	if err != nil {
		logrus.WithError(err).WithField("model", req.Model).Error("persist chat log")
		return nil, apperr.Wrap(apperr.KindPersistence, apperr.CodePersistenceFailed, "Failed to persist chat log", err)
	}

	return &Result{Model: req.Model, Content: content, Log: entry}, nil
}

func (s *Service) process(ctx context.Context, model, userMessage string) (string, error) {
	var content string
	run := func(ctx context.Context) error {
		out, err := s.processor.Process(ctx, userMessage)
		if err != nil {
			return err
		}
		content = out
		return nil
	}

	var err error
	if s.pool != nil {
		err = s.pool.Do(ctx, model, run)
	} else {
		err = run(ctx)
	}

	switch {
	case err == nil:
		return content, nil
	case errors.Is(err, worker.ErrDispatcherBusy):
		return "", apperr.Wrap(apperr.KindBusy, apperr.CodeServerBusy, "Server is busy, retry later", err)
	case errors.Is(err, graph.ErrUndefinedOutput):
		return "", apperr.Wrap(apperr.KindProcessing, apperr.CodeProcessingFailed, "Processor produced no output", err)
	default:
		logrus.WithError(err).WithField("model", model).Error("conversation processor failed")
		return "", apperr.Wrap(apperr.KindProcessing, apperr.CodeProcessingFailed, "Failed to process message", err)
	}
}

// ListLogs returns at most limit entries, newest first. A zero limit means the default.
func (s *Service) ListLogs(ctx context.Context, limit int) ([]*models.ChatLog, error) {
	if limit == 0 {
		limit = DefaultLogLimit
	}
	if limit < 1 || limit > MaxLogLimit {
		return nil, apperr.InvalidRequest(fmt.Sprintf("limit must be between 1 and %d", MaxLogLimit))
	}
	logs, err := s.sink.List(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, apperr.CodePersistenceFailed, "Failed to list chat logs", err)
	}
	return logs, nil
}

// DeleteLog removes one entry. A missing id is reported as NotFound every time.
func (s *Service) DeleteLog(ctx context.Context, id int64) error {
	removed, err := s.sink.Delete(ctx, id)
	s.recordWrite(ctx, "delete", err)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, apperr.CodePersistenceFailed, "Failed to delete chat log", err)
	}
	if !removed {
		return apperr.NotFound("Log not found")
	}
	return nil
}

func (s *Service) recordWrite(ctx context.Context, op string, err error) {
	if s.recorder != nil {
		s.recorder.RecordLogWrite(ctx, op, err)
	}
}
