package store

import (
	"context"
	"errors"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

// ErrNotFound is returned when nothing is stored for the requested key
var ErrNotFound = errors.New("not found")

// BioCodeStore persists generated bio-code sequences per mission day
type BioCodeStore interface {
	Save(ctx context.Context, seq *biocode.Sequence) error
	Load(ctx context.Context, day uint16) (*biocode.Sequence, error)
	Close() error
}

// AuditStore archives operations log entries
type AuditStore interface {
	Append(ctx context.Context, entry model.AuditEntry) error
	List(ctx context.Context) ([]model.AuditEntry, error)
	Close() error
}
