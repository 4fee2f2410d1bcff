package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"recordapi/internal/logging"
	"recordapi/internal/model"
	"recordapi/internal/repository"
	"recordapi/internal/storage"
	"recordapi/internal/validate"
)

const (
	DefaultProbeTimeout = 3 * time.Second

	defaultListLimit = 10
	maxListLimit     = 100
)

var (
	ErrIDRequired       = errors.New("id is required")
	ErrFilenameRequired = errors.New("filename is required")
	ErrNotFound         = errors.New("record not found")
	ErrFileNotFound     = errors.New("file not found")
)

// Attachment is the file half of a submission. Reader is consumed by exactly one writer.
type Attachment struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

// RecordListResult is the service-level DTO for paginated records.
type RecordListResult struct {
	Items []model.Record `json:"data"`
	Total int            `json:"total"`
}

// RecordValidator turns a raw payload into a normalized record.
type RecordValidator interface {
	Validate(raw []byte) (*model.Record, error)
}

// RecordService defines the use cases for records and their attachments.
type RecordService interface {
	// Submit validates payload, stores the record and the attachment concurrently and
	// reconciles both results into exactly one terminal Outcome. It never returns
	// before both writes have settled.
	Submit(ctx context.Context, payload []byte, att Attachment) Outcome

	// Fetch streams a stored attachment. There is no check that the file belongs to a record.
	Fetch(ctx context.Context, filename string) (io.ReadCloser, storage.ObjectInfo, error)

	// Get returns a record by its id.
	Get(ctx context.Context, id string) (*model.Record, error)

	// List returns records using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*RecordListResult, error)

	// Ping checks that the document store answers.
	Ping(ctx context.Context) error
}

// Option configures the record service.
type Option func(*recordService)

// WithProbeTimeout bounds the liveness probe run before any write.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *recordService) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *recordService) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics counts every terminal outcome.
func WithMetrics(m *OutcomeMetrics) Option {
	return func(s *recordService) { s.metrics = m }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *recordService) {
		if t != nil {
			s.tracer = t
		}
	}
}

// recordService is the paired-write coordinator.
type recordService struct {
	repo      repository.RecordRepository
	store     storage.Storage
	validator RecordValidator

	probeTimeout time.Duration
	log          *slog.Logger
	metrics      *OutcomeMetrics
	tracer       trace.Tracer
}

// NewRecordService constructs a new RecordService. The store clients are shared by
// every request and must be safe for concurrent use.
func NewRecordService(repo repository.RecordRepository, store storage.Storage, v RecordValidator, opts ...Option) RecordService {
	s := &recordService{
		repo:         repo,
		store:        store,
		validator:    v,
		probeTimeout: DefaultProbeTimeout,
		log:          logging.Discard(),
		tracer:       otel.Tracer("recordapi/internal/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type insertResult struct {
	handle repository.Handle
	err    error
}

type writeResult struct {
	info storage.ObjectInfo
	err  error
}

func (s *recordService) Submit(ctx context.Context, payload []byte, att Attachment) (out Outcome) {
	ctx, span := s.tracer.Start(ctx, "RecordService.Submit")
	defer func() {
		if r := recover(); r != nil {
			out = unexpected(StageNone, out.Record, out.Filename, fmt.Errorf("panic: %v", r))
		}
		s.report(ctx, span, out)
		span.End()
	}()

	rec, err := s.validator.Validate(payload)
	if err != nil {
		return rejected(err)
	}
	if att.Reader == nil {
		return rejected(&validate.RejectedError{Errors: []validate.FieldError{{Field: "file", Message: "field required"}}})
	}

	filename := rec.ID + filepath.Ext(att.Filename)
	span.SetAttributes(attribute.String("record.id", rec.ID), attribute.String("record.filename", filename))
	s.log.InfoContext(ctx, "submission received",
		"record_id", rec.ID,
		"filename", filename,
		"declared_name", att.Filename,
		"size", att.Size,
	)

	if err := s.probe(ctx); err != nil {
		return unexpected(StageProbe, rec, filename, fmt.Errorf("%w: %v", repository.ErrUnreachable, err))
	}

	// Once started, neither write is cancelled by the caller going away.
	writeCtx := context.WithoutCancel(ctx)

	var (
		ins insertResult
		put writeResult
		g   errgroup.Group
	)
	g.Go(func() error {
		ins.handle, ins.err = s.insert(writeCtx, rec)
		return nil
	})
	g.Go(func() error {
		put.info, put.err = s.write(writeCtx, filename, att)
		return nil
	})
	_ = g.Wait()

	switch {
	case ins.err != nil:
		if put.err == nil {
			s.compensate(writeCtx, filename)
		}
		return unexpected(StageDocumentInsert, rec, filename, ins.err)
	case errors.Is(put.err, storage.ErrAlreadyExists):
		return partialFailure(StageFileExists, rec, filename, false, put.err)
	case put.err != nil:
		return partialFailure(StageFileSave, rec, filename, false, put.err)
	}

	if err := s.append(writeCtx, ins.handle, filename); err != nil {
		return partialFailure(StageDocumentUpdate, rec, filename, true, err)
	}
	rec.AttachedFiles = append(rec.AttachedFiles, filename)
	return committed(rec, filename)
}

// probe checks the document store within probeTimeout.
func (s *recordService) probe(ctx context.Context) (err error) {
	defer recoverInto(&err)
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	return s.repo.Ping(ctx)
}

func (s *recordService) insert(ctx context.Context, rec *model.Record) (h repository.Handle, err error) {
	defer recoverInto(&err)
	ctx, span := s.tracer.Start(ctx, "document.insert")
	defer endSpan(span, &err)

	return s.repo.Insert(ctx, rec)
}

func (s *recordService) write(ctx context.Context, filename string, att Attachment) (info storage.ObjectInfo, err error) {
	defer recoverInto(&err)
	ctx, span := s.tracer.Start(ctx, "blob.write", trace.WithAttributes(attribute.String("blob.key", filename)))
	defer endSpan(span, &err)

	return s.store.Put(ctx, filename, att.Reader, storage.PutObjectOptions{
		Size:        att.Size,
		ContentType: att.ContentType,
		Metadata: map[string]string{
			"original-filename": att.Filename,
		},
	})
}

func (s *recordService) append(ctx context.Context, h repository.Handle, filename string) (err error) {
	defer recoverInto(&err)
	ctx, span := s.tracer.Start(ctx, "document.append")
	defer endSpan(span, &err)

	return s.repo.AppendFilename(ctx, h, filename)
}

// compensate removes a blob written for a record that never landed. Failure is
// logged and does not change the outcome.
func (s *recordService) compensate(ctx context.Context, filename string) {
	err := func() (err error) {
		defer recoverInto(&err)
		return s.store.Delete(ctx, filename)
	}()
	if err != nil {
		s.log.WarnContext(ctx, "compensating delete failed",
			"filename", filename,
			"error", err.Error(),
		)
		return
	}
	s.log.InfoContext(ctx, "orphaned file removed", "filename", filename)
}

func (s *recordService) report(ctx context.Context, span trace.Span, o Outcome) {
	s.metrics.observe(o)

	span.SetAttributes(
		attribute.String("outcome.kind", string(o.Kind)),
		attribute.String("outcome.stage", string(o.Stage)),
	)

	attrs := []any{
		"kind", string(o.Kind),
		"stage", string(o.Stage),
		"data_saved", o.DataSaved,
		"file_saved", o.FileSaved,
	}
	if o.Record != nil {
		attrs = append(attrs, "record_id", o.Record.ID, "filename", o.Filename)
	}
	if o.Err != nil {
		attrs = append(attrs, "error", o.Err.Error())
	}

	switch o.Kind {
	case KindCommitted:
		span.SetStatus(codes.Ok, "")
		s.log.InfoContext(ctx, "submission committed", attrs...)
	case KindRejected:
		s.log.InfoContext(ctx, "submission rejected", attrs...)
	case KindPartialFailure:
		span.SetStatus(codes.Error, o.Reason())
		s.log.WarnContext(ctx, "submission partially failed", attrs...)
	default:
		span.SetStatus(codes.Error, o.Reason())
		s.log.ErrorContext(ctx, "submission failed", attrs...)
	}
}

func (s *recordService) Fetch(ctx context.Context, filename string) (io.ReadCloser, storage.ObjectInfo, error) {
	if filename == "" {
		return nil, storage.ObjectInfo{}, ErrFilenameRequired
	}
	rc, info, err := s.store.Get(ctx, filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return nil, storage.ObjectInfo{}, ErrFileNotFound
		}
		return nil, storage.ObjectInfo{}, err
	}
	return rc, info, nil
}

func (s *recordService) Get(ctx context.Context, id string) (*model.Record, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns paginated records without exposing repository types.
func (s *recordService) List(ctx context.Context, limit, offset int) (*RecordListResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &RecordListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *recordService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// recoverInto turns a panic in the deferring function into an error.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}
