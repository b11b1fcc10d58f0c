package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	twinerrors "github.com/LemonScripter/metaspace-fdir-public/internal/errors"
	"github.com/LemonScripter/metaspace-fdir-public/internal/storage/biofile"
)

// FileBioCodeStore writes each sequence as a BIO1/BIO2/BIO3 file set
type FileBioCodeStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileBioCodeStore creates a store rooted at dir
func NewFileBioCodeStore(dir string, logger *zap.Logger) *FileBioCodeStore {
	return &FileBioCodeStore{dir: dir, logger: logger}
}

// Dir returns the storage directory
func (s *FileBioCodeStore) Dir() string {
	return s.dir
}

// Save implements BioCodeStore
func (s *FileBioCodeStore) Save(ctx context.Context, seq *biocode.Sequence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ts := seq.GeneratedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	paths, err := biofile.WriteSequence(s.dir, seq, ts)
	if err != nil {
		return twinerrors.PersistenceFailed("failed to write bio-code files", err)
	}
	s.logger.Debug("Bio-code persisted",
		zap.Uint16("mission_day", seq.MissionDay),
		zap.String("level3", paths.Level3))
	return nil
}

// Load implements BioCodeStore
func (s *FileBioCodeStore) Load(ctx context.Context, day uint16) (*biocode.Sequence, error) {
	set, err := biofile.Latest(s.dir, day)
	if err != nil {
		if twinerrors.GetCode(err) == twinerrors.ErrCodeNotFound {
			return nil, fmt.Errorf("day %d: %w", day, ErrNotFound)
		}
		return nil, err
	}
	return biofile.ReadSequence(set)
}

// Close implements BioCodeStore
func (s *FileBioCodeStore) Close() error {
	return nil
}
