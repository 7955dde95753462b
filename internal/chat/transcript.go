package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/neonspire/docqa/internal/config"
	"github.com/neonspire/docqa/internal/identity"
)

// Transcript event types.
const (
	EventQuestion = "question"
	EventAnswer   = "answer"
	EventFailure  = "failure"
)

// TranscriptEvent is one NDJSON line of a session transcript.
type TranscriptEvent struct {
	Timestamp  string `json:"ts"`
	SessionID  string `json:"session_id"`
	TurnID     string `json:"turn_id"`
	DocID      string `json:"doc_id,omitempty"`
	EventType  string `json:"event_type"`
	Content    string `json:"content"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// TranscriptLogger records questions and answers.
type TranscriptLogger interface {
	Log(event TranscriptEvent)
	// Remove deletes the transcript of a session after every event queued before it.
	Remove(sessionID string)
	Close() error
}

type noopTranscriptLogger struct{}

func (noopTranscriptLogger) Log(TranscriptEvent) {}
func (noopTranscriptLogger) Remove(string)       {}
func (noopTranscriptLogger) Close() error        { return nil }

// transcriptOp is either an event to append or, when remove is set, a session to delete.
type transcriptOp struct {
	event  TranscriptEvent
	remove bool
}

// fileTranscriptLogger appends events to <dir>/<session_id>.ndjson from a single writer goroutine.
type fileTranscriptLogger struct {
	dir    string
	logger *slog.Logger
	queue  chan transcriptOp
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewTranscriptLogger returns a file-backed logger, or a no-op logger when disabled.
func NewTranscriptLogger(cfg config.ConversationLogConfig, logger *slog.Logger) (TranscriptLogger, error) {
	if !cfg.Enabled {
		return noopTranscriptLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 1000
	}

	l := &fileTranscriptLogger{
		dir:    cfg.Dir,
		logger: logger,
		queue:  make(chan transcriptOp, size),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

func (l *fileTranscriptLogger) Log(event TranscriptEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- transcriptOp{event: event}:
	default:
		l.logger.Warn("transcript queue full, dropping event",
			"session_id", event.SessionID,
			"turn_id", event.TurnID,
			"event_type", event.EventType,
		)
	}
}

// Remove queues the deletion of a session transcript. Unlike Log it waits for queue space.
func (l *fileTranscriptLogger) Remove(sessionID string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	l.queue <- transcriptOp{event: TranscriptEvent{SessionID: sessionID}, remove: true}
}

func (l *fileTranscriptLogger) run() {
	defer close(l.done)
	for op := range l.queue {
		if op.remove {
			if err := l.delete(op.event.SessionID); err != nil {
				l.logger.Warn("failed to remove transcript", "session_id", op.event.SessionID, "error", err)
			}
			continue
		}
		if err := l.write(op.event); err != nil {
			l.logger.Warn("failed to write transcript event", "session_id", op.event.SessionID, "error", err)
		}
	}
}

func (l *fileTranscriptLogger) path(sessionID string) (string, error) {
	if !identity.IsValidSessionID(sessionID) {
		return "", fmt.Errorf("refusing transcript path for session %q", sessionID)
	}
	return filepath.Join(l.dir, sessionID+".ndjson"), nil
}

func (l *fileTranscriptLogger) delete(sessionID string) error {
	path, err := l.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove transcript: %w", err)
	}
	return nil
}

func (l *fileTranscriptLogger) write(event TranscriptEvent) error {
	path, err := l.path(event.SessionID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append transcript: %w", err)
	}
	return f.Close()
}

// Close stops accepting events and waits for queued ones to be written.
func (l *fileTranscriptLogger) Close() error {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	<-l.done
	return nil
}
