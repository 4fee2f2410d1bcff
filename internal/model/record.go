package model

import "time"

// Record is the metadata document submitted alongside an attachment.
// This is a pure domain model with no database-specific dependencies or tags;
// each document store adapter maps it to its own persisted shape.
//
// ID never changes once assigned. AttachedFiles only grows, and only after the
// matching blob write has committed.
type Record struct {
	ID            string    `json:"id"`
	OwnerEmail    string    `json:"user_email"`
	Institution   string    `json:"institution"`
	CreatedAt     time.Time `json:"date"`
	AttachedFiles []string  `json:"files"`
}
