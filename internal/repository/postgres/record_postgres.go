package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"recordapi/internal/model"
	"recordapi/internal/repository"
)

// RecordPostgres is a PostgreSQL implementation of repository.RecordRepository.
// It uses database/sql with parameterized queries and contains no business logic.
//
// Rows are keyed by a serial doc_id; the record id column is indexed but not
// unique, so a repeated id inserts a second row.
type RecordPostgres struct {
	db *sql.DB
}

// NewRecordPostgres creates a new RecordPostgres repository.
func NewRecordPostgres(db *sql.DB) *RecordPostgres {
	return &RecordPostgres{db: db}
}

var _ repository.RecordRepository = (*RecordPostgres)(nil)

// Ping verifies the database connection.
func (r *RecordPostgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Insert adds a record row and returns its doc_id as the handle.
func (r *RecordPostgres) Insert(ctx context.Context, rec *model.Record) (repository.Handle, error) {
	const q = `
		INSERT INTO records (id, user_email, institution, created_at, attached_files)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING doc_id
	`
	files, err := json.Marshal(nonNil(rec.AttachedFiles))
	if err != nil {
		return "", fmt.Errorf("encode attached files: %w", err)
	}
	var docID int64
	if err := r.db.QueryRowContext(ctx, q,
		rec.ID,
		rec.OwnerEmail,
		rec.Institution,
		rec.CreatedAt,
		string(files),
	).Scan(&docID); err != nil {
		return "", err
	}
	return repository.Handle(strconv.FormatInt(docID, 10)), nil
}

// AppendFilename pushes filename onto the row's attached_files array.
func (r *RecordPostgres) AppendFilename(ctx context.Context, h repository.Handle, filename string) error {
	docID, err := strconv.ParseInt(string(h), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid handle %q: %w", h, err)
	}
	const q = `
		UPDATE records
		SET attached_files = attached_files || jsonb_build_array($2::text)
		WHERE doc_id = $1
	`
	res, err := r.db.ExecContext(ctx, q, docID, filename)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return repository.ErrNotModified
	}
	return nil
}

// FindByID fetches the earliest row stored for the record id.
func (r *RecordPostgres) FindByID(ctx context.Context, id string) (*model.Record, error) {
	const q = `
		SELECT id, user_email, institution, created_at, attached_files
		FROM records
		WHERE id = $1
		ORDER BY doc_id
		LIMIT 1
	`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns records using LIMIT/OFFSET pagination and a total count.
func (r *RecordPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Record], error) {
	const qCount = `SELECT COUNT(*) FROM records`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT id, user_email, institution, created_at, attached_files
		FROM records
		ORDER BY created_at DESC, doc_id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Record]{
		Items: items,
		Total: total,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*model.Record, error) {
	var (
		rec   model.Record
		files []byte
	)
	if err := s.Scan(
		&rec.ID,
		&rec.OwnerEmail,
		&rec.Institution,
		&rec.CreatedAt,
		&files,
	); err != nil {
		return nil, err
	}
	rec.AttachedFiles = []string{}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &rec.AttachedFiles); err != nil {
			return nil, fmt.Errorf("decode attached files: %w", err)
		}
	}
	return &rec, nil
}

func nonNil(files []string) []string {
	if files == nil {
		return []string{}
	}
	return files
}
