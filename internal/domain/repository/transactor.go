package repository

import (
	"context"
	"errors"
)

// Transactor runs fn inside a database transaction. Repository calls made with the
// ctx passed to fn join that transaction; fn returning an error rolls it back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

var (
	// ErrSlotTaken is returned when a write would overlap an existing active appointment.
	ErrSlotTaken = errors.New("appointment slot already taken")
	// ErrReferenceNotFound is returned when a referenced doctor or patient row is missing.
	ErrReferenceNotFound = errors.New("referenced record not found")
	ErrDuplicate         = errors.New("duplicate record")
)
