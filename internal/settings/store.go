package settings

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/logging"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/pkg/fileutil"
)

// Store binds the settings document operations to one file on disk.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store for the given settings.json path.
func NewStore(path string) *Store {
	return &Store{path: path, logger: logging.NewDiscard()}
}

// NewStoreWithLogger creates a store that logs mutations.
func NewStoreWithLogger(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the backing file path.
func (st *Store) Path() string { return st.path }

// Load reads and parses the settings file. A missing file yields the empty
// default; an empty or malformed file is a configuration error.
func (st *Store) Load() (*Settings, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, paccerr.Filesystem("io", "reading %s", st.path).WithCause(err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Save validates and atomically writes the document, creating a .backup of
// any existing file. The backup is retained so a failed follow-up step can
// roll back; completed transactions clear it via [Store.CommitBackup].
func (st *Store) Save(s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := s.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return paccerr.Filesystem("io", "creating settings directory").WithCause(err)
	}
	if err := fileutil.AtomicWriteWithBackup(st.path, data, 0o644); err != nil {
		return paccerr.Filesystem("io", "writing %s", st.path).WithCause(err)
	}
	return nil
}

// CommitBackup removes the .backup left by Save once a transaction is done.
func (st *Store) CommitBackup() {
	if err := fileutil.RemoveBackup(st.path); err != nil {
		st.logger.Warn("failed to remove settings backup", "path", st.path, "error", err)
	}
}

// Rollback restores the settings file from its .backup, if one exists.
func (st *Store) Rollback() error {
	restored, err := fileutil.RestoreBackup(st.path)
	if err != nil {
		return err
	}
	if restored {
		st.logger.Info("restored settings from backup", "path", st.path)
	}
	return nil
}

// UpdateAtomic runs load -> transform -> validate -> save as one transaction.
// On a failed save the prior file is restored from backup and false is
// returned alongside the error. A transform returning an error aborts before
// anything is written.
func (st *Store) UpdateAtomic(transform func(*Settings) error) (bool, error) {
	s, err := st.Load()
	if err != nil {
		return false, err
	}
	if err := transform(s); err != nil {
		return false, err
	}
	if err := st.Save(s); err != nil {
		if rbErr := st.Rollback(); rbErr != nil {
			st.logger.Error("rollback failed", "path", st.path, "error", rbErr)
		}
		return false, err
	}
	st.CommitBackup()
	return true, nil
}

// AddRecord appends a record to the kind's array in one transaction.
func (st *Store) AddRecord(kind extension.Kind, rec extension.Record) error {
	_, err := st.UpdateAtomic(func(s *Settings) error {
		return s.AddRecord(kind, rec)
	})
	return err
}

// RemoveRecord deletes the named record in one transaction. Returns whether
// a record was removed.
func (st *Store) RemoveRecord(kind extension.Kind, name string) (bool, error) {
	removed := false
	_, err := st.UpdateAtomic(func(s *Settings) error {
		removed = s.RemoveRecord(kind, name)
		return nil
	})
	return removed, err
}

// ListRecords returns the records of one kind, or of every store kind in
// canonical order when kind is KindNone.
func (st *Store) ListRecords(kind extension.Kind) ([]extension.Record, error) {
	s, err := st.Load()
	if err != nil {
		return nil, err
	}
	if kind != extension.KindNone {
		return append([]extension.Record(nil), s.Records[kind]...), nil
	}
	var out []extension.Record
	for _, k := range extension.StoreKinds {
		out = append(out, s.Records[k]...)
	}
	return out, nil
}
