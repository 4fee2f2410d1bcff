package service

import (
	"errors"

	"recordapi/internal/model"
	"recordapi/internal/validate"
)

// OutcomeKind is the terminal state of one submission.
type OutcomeKind string

const (
	KindCommitted      OutcomeKind = "committed"
	KindPartialFailure OutcomeKind = "partial_failure"
	KindRejected       OutcomeKind = "rejected"
	KindUnexpected     OutcomeKind = "unexpected"
)

// Stage names the step an unsuccessful submission stopped at.
type Stage string

const (
	StageNone Stage = ""

	// Partial failures: the record was stored.
	StageDocumentUpdate Stage = "document-update"
	StageFileExists     Stage = "file-exists"
	StageFileSave       Stage = "file-save"

	// Unexpected outcomes: the record was not stored.
	StageProbe          Stage = "probe"
	StageDocumentInsert Stage = "document-insert"
)

// Outcome is the coordinator's report for one submission. It is built once and
// never changed afterwards.
type Outcome struct {
	Kind  OutcomeKind
	Stage Stage
	// Err is the reason for every kind except KindCommitted.
	Err error

	// Record is the validated record, nil when the submission was rejected.
	Record *model.Record
	// Filename is the derived stored name of the attachment.
	Filename string

	DataSaved bool
	FileSaved bool
}

// Reason returns the failure text, or "" for a committed outcome.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// FieldErrors lists the per-field problems of a rejected submission.
func (o Outcome) FieldErrors() []validate.FieldError {
	var rej *validate.RejectedError
	if errors.As(o.Err, &rej) {
		return rej.Errors
	}
	return nil
}

func committed(rec *model.Record, filename string) Outcome {
	return Outcome{Kind: KindCommitted, Record: rec, Filename: filename, DataSaved: true, FileSaved: true}
}

func rejected(err error) Outcome {
	return Outcome{Kind: KindRejected, Err: err}
}

func partialFailure(stage Stage, rec *model.Record, filename string, fileSaved bool, err error) Outcome {
	return Outcome{
		Kind:      KindPartialFailure,
		Stage:     stage,
		Err:       err,
		Record:    rec,
		Filename:  filename,
		DataSaved: true,
		FileSaved: fileSaved,
	}
}

func unexpected(stage Stage, rec *model.Record, filename string, err error) Outcome {
	return Outcome{Kind: KindUnexpected, Stage: stage, Err: err, Record: rec, Filename: filename}
}
