// Package journal records which images of an upload run are done so an
// interrupted run can resume where it stopped.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PauloBoaventura/lightly/pkg/models"
)

// DefaultInterval is the number of completed files between two saves
const DefaultInterval = 10

// Manager handles journal operations with async write support.
// A nil *Manager is valid and records nothing.
type Manager struct {
	path     string
	journal  *models.Journal
	mu       sync.RWMutex
	logger   *slog.Logger
	interval int // Save every N completed files
	counter  int // Completions since last save

	// Async write support
	writeChan   chan *models.Journal
	writeWg     sync.WaitGroup
	stopWriter  chan struct{}
	closeOnce   sync.Once
	writerError error
	errorMu     sync.Mutex
	writeMu     sync.Mutex // Protects concurrent disk writes
}

// New creates a manager for a fresh journal
func New(path, datasetID string, mode models.UploadMode, interval int, logger *slog.Logger) *Manager {
	return newManager(path, &models.Journal{
		SessionID: uuid.New().String(),
		CreatedAt: time.Now(),
		DatasetID: datasetID,
		Mode:      mode,
		Completed: make(map[string]bool),
	}, interval, logger)
}

// Open resumes the journal at path if it belongs to the same dataset and
// mode. Otherwise, or if there is no journal yet, a fresh one is started.
func Open(path, datasetID string, mode models.UploadMode, interval int, logger *slog.Logger) (*Manager, error) {
	j, err := Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("No journal found, starting fresh", "path", path)
		return New(path, datasetID, mode, interval, logger), nil
	case err != nil:
		return nil, err
	}

	if err := Validate(j, datasetID, mode); err != nil {
		logger.Warn("Ignoring journal from a different upload", "path", path, "reason", err)
		return New(path, datasetID, mode, interval, logger), nil
	}

	logger.Info("Journal loaded",
		"session_id", j.SessionID,
		"dataset_id", j.DatasetID,
		"completed_files", len(j.Completed))
	return newManager(path, j, interval, logger), nil
}

func newManager(path string, j *models.Journal, interval int, logger *slog.Logger) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if j.Completed == nil {
		j.Completed = make(map[string]bool)
	}
	m := &Manager{
		path:       path,
		journal:    j,
		logger:     logger.With("component", "journal"),
		interval:   interval,
		writeChan:  make(chan *models.Journal, 10), // Buffer up to 10 pending writes
		stopWriter: make(chan struct{}),
	}
	m.startAsyncWriter()
	return m
}

// Load reads a journal from disk
func Load(path string) (*models.Journal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	var j models.Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journal %s: %w", path, err)
	}
	return &j, nil
}

// Validate verifies a journal was written for the given dataset and mode
func Validate(j *models.Journal, datasetID string, mode models.UploadMode) error {
	if j.DatasetID != datasetID {
		return fmt.Errorf("journal was written for dataset %s, not %s", j.DatasetID, datasetID)
	}
	if j.Mode != mode {
		return fmt.Errorf("journal was written for upload mode %s, not %s", j.Mode, mode)
	}
	return nil
}

// ProgressPercentage returns the share of total files recorded as done
func ProgressPercentage(j *models.Journal, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(len(j.Completed)) / float64(total) * 100.0
}

// startAsyncWriter starts the background writer goroutine
func (m *Manager) startAsyncWriter() {
	m.writeWg.Add(1)
	go func() {
		defer m.writeWg.Done()
		for {
			select {
			case j := <-m.writeChan:
				if err := m.writeToDisk(j); err != nil {
					m.errorMu.Lock()
					m.writerError = err
					m.errorMu.Unlock()
					m.logger.Error("Failed to write journal", "error", err)
				}
			case <-m.stopWriter:
				// Drain remaining writes before stopping
				for len(m.writeChan) > 0 {
					j := <-m.writeChan
					if err := m.writeToDisk(j); err != nil {
						m.logger.Error("Failed to write journal during shutdown", "error", err)
					}
				}
				return
			}
		}
	}()
}

// writeToDisk writes the journal atomically (temp file, then rename)
func (m *Manager) writeToDisk(j *models.Journal) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}

	if dir := filepath.Dir(m.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	tempPath := m.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp journal: %w", err)
	}
	if err := os.Rename(tempPath, m.path); err != nil {
		return fmt.Errorf("failed to rename journal: %w", err)
	}

	m.logger.Debug("Journal saved", "path", m.path, "completed_files", len(j.Completed))
	return nil
}

// Save queues the journal for async write
func (m *Manager) Save() error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	m.journal.LastSavedAt = time.Now()
	jCopy := m.copyJournal()
	m.mu.Unlock()

	select {
	case m.writeChan <- jCopy:
		return nil
	default:
		m.logger.Warn("Journal write buffer full, writing synchronously")
		return m.writeToDisk(jCopy)
	}
}

// SaveSync writes the journal synchronously
func (m *Manager) SaveSync() error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	m.journal.LastSavedAt = time.Now()
	jCopy := m.copyJournal()
	m.mu.Unlock()

	return m.writeToDisk(jCopy)
}

// copyJournal creates a deep copy; callers hold m.mu
func (m *Manager) copyJournal() *models.Journal {
	j := *m.journal
	j.Completed = make(map[string]bool, len(m.journal.Completed))
	for k, v := range m.journal.Completed {
		j.Completed[k] = v
	}
	return &j
}

// IsCompleted reports whether fileName was recorded as uploaded
func (m *Manager) IsCompleted(fileName string) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.journal.Completed[fileName]
}

// MarkCompleted records fileName as uploaded and saves every interval completions
func (m *Manager) MarkCompleted(fileName string, stats models.UploadStats) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	m.journal.Completed[fileName] = true
	m.journal.Stats = stats
	m.counter++
	shouldSave := m.counter >= m.interval
	if shouldSave {
		m.counter = 0
	}
	m.mu.Unlock()

	if shouldSave {
		return m.Save()
	}
	return nil
}

// Snapshot returns a copy of the current journal
func (m *Manager) Snapshot() *models.Journal {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyJournal()
}

// Path returns where the journal is written
func (m *Manager) Path() string {
	if m == nil {
		return ""
	}
	return m.path
}

// Close stops the async writer, waits for pending writes and saves the
// final state
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}

	var err error
	m.closeOnce.Do(func() {
		close(m.stopWriter)
		m.writeWg.Wait()

		m.errorMu.Lock()
		writerErr := m.writerError
		m.errorMu.Unlock()

		err = errors.Join(writerErr, m.SaveSync())
	})
	return err
}
