// Package store persists bulk transfer batches as JSON files and is the
// single durable witness of transfer progress. Every record mutation is
// validated against the forward-only lifecycle and written atomically, so a
// crash at any point leaves the batch resumable at the first non-terminal
// record.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/solbeam/solbeam/internal/batch"
)

// SchemaVersion is the current schema version of batch state files.
const SchemaVersion = 1

// Store errors surfaced to the operator.
var (
	// ErrAlreadyExists indicates the batch was already initialized. A second
	// init is a no-op, never an overwrite.
	ErrAlreadyExists = errors.New("batch state file already exists")

	// ErrNotFound indicates no batch state file exists for the identity.
	ErrNotFound = errors.New("batch state file not found")

	// ErrCorrupted indicates the state file exists but is unreadable or
	// structurally invalid. It is never silently reset.
	ErrCorrupted = errors.New("batch state file corrupted")

	// ErrConcurrentAccess indicates another invocation or worker already
	// holds the record or the batch.
	ErrConcurrentAccess = errors.New("batch record already in progress")
)

// Identity names a persisted batch: the environment it targets plus the input
// file it was loaded from. Re-running against the same input resumes the same
// batch.
type Identity struct {
	Env    string
	Source string
}

// NewIdentity builds an identity from an environment name and an input file
// path. Only the base name of the path participates, matching how the state
// file is derived from the input CSV.
func NewIdentity(env, inputPath string) Identity {
	name := filepath.Base(inputPath)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return Identity{Env: env, Source: name}
}

// String returns the identity in its file-name form.
func (id Identity) String() string {
	return fmt.Sprintf("%s_%s", id.Env, id.Source)
}

// batchFile is the serialized form of a batch state file.
type batchFile struct {
	Version   int                    `json:"version"`
	BatchID   string                 `json:"batch_id"`
	Env       string                 `json:"env"`
	Source    string                 `json:"source"`
	CreatedAt time.Time              `json:"created_at"`
	Records   []batch.TransferRecord `json:"records"`
}

// Store manages batch state files under a single data directory.
type Store struct {
	dir string

	// claims marks records with an in-flight submit or confirm so workers
	// within this process never race on the same record.
	mu     sync.Mutex
	claims map[string]map[int]bool
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &Store{
		dir:    dir,
		claims: make(map[string]map[int]bool),
	}, nil
}

// Dir returns the store's data directory.
func (s *Store) Dir() string {
	return s.dir
}

// filePath returns the state file path for an identity.
func (s *Store) filePath(id Identity) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, id.String())
	return filepath.Join(s.dir, safe+".json")
}

// Initialize persists a freshly loaded batch under the given identity,
// assigning it a ULID. Returns ErrAlreadyExists if a state file is already
// present, making repeated init calls safe.
func (s *Store) Initialize(id Identity, b *batch.Batch) (*batch.Batch, error) {
	unlock, err := s.acquireFileLock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	path := s.filePath(id)
	if _, statErr := os.Stat(path); statErr == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	} else if !os.IsNotExist(statErr) {
		return nil, fmt.Errorf("checking state file %s: %w", path, statErr)
	}

	file := batchFile{
		Version:   SchemaVersion,
		BatchID:   ulid.Make().String(),
		Env:       id.Env,
		Source:    id.Source,
		CreatedAt: time.Now().UTC(),
		Records:   b.Records,
	}
	if writeErr := s.writeFile(path, &file); writeErr != nil {
		return nil, writeErr
	}
	return fileToBatch(&file), nil
}

// Load reads the batch persisted under the given identity. Returns
// ErrNotFound when absent and ErrCorrupted when the file cannot be decoded or
// violates record invariants.
func (s *Store) Load(id Identity) (*batch.Batch, error) {
	file, err := s.readFile(s.filePath(id))
	if err != nil {
		return nil, err
	}
	return fileToBatch(file), nil
}

// Snapshot returns a read-only copy of the record sequence for reporting.
func (s *Store) Snapshot(id Identity) ([]batch.TransferRecord, error) {
	b, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	return b.Records, nil
}

// Update applies one state transition to exactly one record and persists it
// before returning. The record is re-read from disk under the file lock so
// the mutation always applies to the latest durable state, and the transition
// is validated so a partial or conflicting write can never produce an invalid
// record.
func (s *Store) Update(id Identity, index int, mutate func(*batch.TransferRecord)) error {
	unlock, err := s.acquireFileLock(id)
	if err != nil {
		return err
	}
	defer unlock()

	path := s.filePath(id)
	file, err := s.readFile(path)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(file.Records) {
		return fmt.Errorf("record index %d out of range (batch has %d records)", index, len(file.Records))
	}

	record := file.Records[index]
	before := record.State
	mutate(&record)

	if record.State != before && !batch.ValidTransition(before, record.State) {
		return fmt.Errorf("%w: record %d: %s -> %s", batch.ErrInvalidTransition, index, before, record.State)
	}
	if record.Attempts < file.Records[index].Attempts {
		return fmt.Errorf("record %d: attempts may not decrease", index)
	}
	if validateErr := record.Validate(); validateErr != nil {
		return fmt.Errorf("%w: %w", batch.ErrInvalidTransition, validateErr)
	}

	file.Records[index] = record
	return s.writeFile(path, file)
}

// Claim marks a record as having an in-flight submit or confirm. A second
// claim before Release fails with ErrConcurrentAccess. Claims are scoped to
// this Store handle; cross-process exclusion is provided by AcquireRun.
func (s *Store) Claim(id Identity, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.String()
	if s.claims[key] == nil {
		s.claims[key] = make(map[int]bool)
	}
	if s.claims[key][index] {
		return fmt.Errorf("%w: record %d", ErrConcurrentAccess, index)
	}
	s.claims[key][index] = true
	return nil
}

// Release clears a record claim. Releasing an unclaimed record is a no-op.
func (s *Store) Release(id Identity, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if claims := s.claims[id.String()]; claims != nil {
		delete(claims, index)
	}
}

// AcquireRun takes the batch-wide run lock, serializing mutating executor
// passes (run, confirm) across processes so concurrent invocations cannot
// double-submit. Returns a release function. A held lock belonging to a dead
// process is treated as stale and broken.
func (s *Store) AcquireRun(id Identity) (func(), error) {
	lockPath := s.filePath(id) + ".run.lock"
	// Two attempts: the second only succeeds after a stale lock was broken.
	release, err := acquireLockFile(lockPath, 2, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: another run is active for %s", ErrConcurrentAccess, id)
	}
	return release, nil
}

// readFile decodes and validates a batch state file.
func (s *Store) readFile(path string) (*batchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (run init first)", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}

	var file batchFile
	if unmarshalErr := json.Unmarshal(data, &file); unmarshalErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupted, path, unmarshalErr)
	}
	if file.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d (expected %d)",
			ErrCorrupted, path, file.Version, SchemaVersion)
	}
	for i := range file.Records {
		if validateErr := file.Records[i].Validate(); validateErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorrupted, path, validateErr)
		}
	}
	return &file, nil
}

// writeFile persists a batch state file atomically via temp file + rename.
func (s *Store) writeFile(path string, file *batchFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling batch state: %w", err)
	}

	tmpPath := path + ".tmp"
	if writeErr := os.WriteFile(tmpPath, data, 0o600); writeErr != nil {
		return fmt.Errorf("writing batch state temp file: %w", writeErr)
	}
	if renameErr := os.Rename(tmpPath, path); renameErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming batch state temp file: %w", renameErr)
	}
	return nil
}

// acquireFileLock takes the short-lived advisory lock guarding individual
// reads-modify-writes of a state file.
func (s *Store) acquireFileLock(id Identity) (func(), error) {
	const maxRetries = 50
	const retryDelay = 100 * time.Millisecond

	lockPath := s.filePath(id) + ".lock"
	release, err := acquireLockFile(lockPath, maxRetries, retryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock on %s: %w", lockPath, err)
	}
	return release, nil
}

// acquireLockFile creates lockPath exclusively, retrying up to maxRetries
// with stale lock detection. The lock file records the owning PID; a lock
// whose owner is dead and whose file is older than the stale age is removed.
func acquireLockFile(lockPath string, maxRetries int, retryDelay time.Duration) (func(), error) {
	const staleLockAge = 30 * time.Second

	for range maxRetries {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}

		if removeStaleLock(lockPath, staleLockAge) {
			continue
		}
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("could not acquire lock on %s after retries", lockPath)
}

// removeStaleLock removes the lock file if it is old and its owning process
// is gone. Returns true when the caller should retry immediately.
func removeStaleLock(lockPath string, staleLockAge time.Duration) bool {
	info, statErr := os.Stat(lockPath)
	if statErr != nil || time.Since(info.ModTime()) <= staleLockAge {
		return false
	}
	if isLockHeldByLiveProcess(lockPath) {
		return false
	}
	_ = os.Remove(lockPath)
	return true
}

// isLockHeldByLiveProcess reads the PID from a lock file and reports whether
// that process is still alive.
func isLockHeldByLiveProcess(lockPath string) bool {
	pidData, readErr := os.ReadFile(lockPath)
	if readErr != nil || len(pidData) == 0 {
		return false
	}
	var pid int
	if _, scanErr := fmt.Sscanf(string(pidData), "%d", &pid); scanErr != nil || pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 tests process existence without sending a signal.
	return proc.Signal(syscall.Signal(0)) == nil
}

// fileToBatch converts a decoded state file to the in-memory batch form.
func fileToBatch(file *batchFile) *batch.Batch {
	records := make([]batch.TransferRecord, len(file.Records))
	copy(records, file.Records)
	return &batch.Batch{
		ID:      file.BatchID,
		Source:  file.Source,
		Records: records,
	}
}
