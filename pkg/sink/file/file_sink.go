package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Avi18971911/Logship/pkg/event/model"
	"go.uber.org/zap"
)

const fileMode = 0644
const dirMode = 0755

// FileSink appends one JSON line per event to a rolling file. When the
// current file exceeds the size limit it is rotated to <path>.1, shifting
// older rotations up and deleting anything beyond the retention count.
type FileSink struct {
	path          string
	sizeLimit     int64
	retainedFiles int
	minLevel      model.Level
	logger        *zap.Logger

	mu          sync.Mutex
	file        *os.File
	currentSize int64
}

func NewFileSink(
	path string,
	sizeLimit int64,
	retainedFiles int,
	minLevel model.Level,
	logger *zap.Logger,
) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("error creating log file directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, fmt.Errorf("error opening log file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error inspecting log file %s: %w", path, err)
	}
	return &FileSink{
		path:          path,
		sizeLimit:     sizeLimit,
		retainedFiles: retainedFiles,
		minLevel:      minLevel,
		logger:        logger,
		file:          f,
		currentSize:   info.Size(),
	}, nil
}

func (s *FileSink) Name() string {
	return "file"
}

func (s *FileSink) MinimumLevel() model.Level {
	return s.minLevel
}

func (s *FileSink) Emit(event model.LogEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal event for the file sink", zap.Error(err))
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return
	}
	if s.sizeLimit > 0 && s.currentSize+int64(len(line)) > s.sizeLimit {
		if err := s.rollLocked(); err != nil {
			s.logger.Error("Failed to roll log file", zap.Error(err))
			return
		}
	}
	n, err := s.file.Write(line)
	if err != nil {
		s.logger.Error("Failed to write to log file", zap.Error(err))
		return
	}
	s.currentSize += int64(n)
}

func (s *FileSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *FileSink) rollLocked() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("error closing log file before roll: %w", err)
	}
	s.file = nil

	oldest := fmt.Sprintf("%s.%d", s.path, s.retainedFiles)
	_ = os.Remove(oldest)
	for i := s.retainedFiles - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", s.path, i)
		to := fmt.Sprintf("%s.%d", s.path, i+1)
		if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, to)
		}
	}
	if err := os.Rename(s.path, s.path+".1"); err != nil {
		return fmt.Errorf("error rotating log file: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("error reopening log file after roll: %w", err)
	}
	s.file = f
	s.currentSize = 0
	return nil
}
