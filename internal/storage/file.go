package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmr-tortoise/weatherflow-collector/internal/config"
	"github.com/mmr-tortoise/weatherflow-collector/internal/events"
	"github.com/mmr-tortoise/weatherflow-collector/internal/model"
)

// FileStore appends every raw collector message as one JSON line to a
// per-day file under the configured directory. It exists for debugging
// and offline analysis; losing a line is logged, never fatal.
type FileStore struct {
	bus       *events.Bus
	logger    *logrus.Entry
	directory string

	mu       sync.Mutex
	file     *os.File
	day      string
	appended uint64
	failures uint64
	lastErr  error

	now func() time.Time
}

// NewFileStore builds the JSON-lines sink.
func NewFileStore(cfg *config.Config, bus *events.Bus, logger *logrus.Entry) *FileStore {
	return &FileStore{
		bus:       bus,
		logger:    logger,
		directory: cfg.Storage.File.Directory,
		now:       time.Now,
	}
}

// Name identifies the sink in logs and health output.
func (s *FileStore) Name() string { return "file_storage" }

// Run consumes raw collector messages until ctx is cancelled or the bus
// closes.
func (s *FileStore) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.directory, 0o755); err != nil {
		return model.WrapCLIError(model.ExitStorageError, "failed to create file storage directory", err)
	}

	sub := s.bus.Subscribe(events.TopicCollectorData)
	defer sub.Cancel()
	defer s.closeFile()

	s.logger.WithField("directory", s.directory).Info("file storage started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C():
			if !ok {
				return nil
			}
			msg, ok := payload.(*model.Message)
			if !ok {
				continue
			}
			s.append(msg)
		}
	}
}

// append writes one message as a JSON line, rotating to a fresh file
// when the UTC day changes.
func (s *FileStore) append(msg *model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.now().UTC().Format("2006-01-02")
	if s.file == nil || day != s.day {
		if err := s.rotate(day); err != nil {
			s.failures++
			s.lastErr = err
			s.logger.WithError(err).Error("failed to open storage file")
			return
		}
	}

	line, err := json.Marshal(msg)
	if err != nil {
		s.failures++
		s.lastErr = err
		return
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		s.failures++
		s.lastErr = err
		s.logger.WithError(err).Error("failed to append message")
		return
	}
	s.appended++
	s.lastErr = nil
}

func (s *FileStore) rotate(day string) error {
	if s.file != nil {
		s.file.Close()
	}

	path := filepath.Join(s.directory, "weatherflow-"+day+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	s.file = f
	s.day = day
	s.logger.WithField("path", path).Info("storage file opened")
	return nil
}

func (s *FileStore) closeFile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
}

// Status reports sink health for the health endpoint.
func (s *FileStore) Status() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr != nil {
		return false, fmt.Sprintf("last append failed: %v", s.lastErr)
	}
	return true, fmt.Sprintf("%d messages appended, %d failed", s.appended, s.failures)
}
