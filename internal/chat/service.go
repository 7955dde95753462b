// Package chat implements the per-session document Q&A workflow: selecting a
// file, uploading it to the backend and asking questions about it.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neonspire/docqa/internal/domain"
	"github.com/neonspire/docqa/internal/qaclient"
	"github.com/neonspire/docqa/internal/store"
)

// UploadFailedPrefix prefixes the notice shown when an upload cannot reach the backend.
const UploadFailedPrefix = "Upload failed: "

var (
	// ErrNoFile is returned by Upload when no file has been selected.
	ErrNoFile = errors.New("no file selected")
	// ErrNotReady is returned by Ask when the question is blank or no document is active.
	ErrNotReady = errors.New("question or document missing")
	// ErrInvalidPage is returned by Ask when a page number is required but left blank.
	ErrInvalidPage = errors.New("page number is required")
)

// Backend is the document Q&A service.
type Backend interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*qaclient.UploadResponse, error)
	Ask(ctx context.Context, req qaclient.AskRequest) (*qaclient.AskResponse, error)
}

// Notifier receives every committed session state.
type Notifier interface {
	Publish(ctx context.Context, session domain.Session)
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, domain.Session) {}

// Options tune the ask workflow.
type Options struct {
	// RequirePage sends a page_number with every question.
	RequirePage bool
	// AskTimeout bounds a background ask. Zero waits for the backend indefinitely.
	AskTimeout time.Duration
}

// Service coordinates session state with the backend.
type Service struct {
	repo       store.Repository
	backend    Backend
	notifier   Notifier
	transcript TranscriptLogger
	opts       Options

	locks    sync.Map // sessionID -> *sync.Mutex
	owned    sync.Map // turnID -> sessionID, turns a goroutine of this process will resolve
	inflight sync.WaitGroup
	now      func() time.Time
}

// NewService creates a chat service. A nil notifier or transcript logger disables that output.
func NewService(repo store.Repository, backend Backend, notifier Notifier, transcript TranscriptLogger, opts Options) *Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if transcript == nil {
		transcript = noopTranscriptLogger{}
	}
	return &Service{
		repo:       repo,
		backend:    backend,
		notifier:   notifier,
		transcript: transcript,
		opts:       opts,
		now:        time.Now,
	}
}

// PageRequired reports whether questions must carry a page number.
func (s *Service) PageRequired() bool {
	return s.opts.RequirePage
}

func (s *Service) lock(sessionID string) func() {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Forget drops the per-session lock and the transcript of a deleted session.
func (s *Service) Forget(sessionID string) {
	s.locks.Delete(sessionID)
	s.transcript.Remove(sessionID)
}

// load returns the stored session or a fresh one. Callers hold the session lock.
func (s *Service) load(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return domain.NewSession(sessionID, s.now()), nil
	}
	return s.recoverOrphans(ctx, *session)
}

// recoverOrphans fails pending turns that no goroutine of this process will resolve,
// such as turns left behind by a crashed server. Callers hold the session lock.
func (s *Service) recoverOrphans(ctx context.Context, session domain.Session) (domain.Session, error) {
	next, orphans := session, 0
	for _, t := range session.Turns {
		if !t.IsPending() {
			continue
		}
		if _, ok := s.owned.Load(t.ID); ok {
			continue
		}
		next = next.Apply(domain.TurnResolved{TurnID: t.ID, Answer: domain.InterruptedAnswer, Failed: true, At: s.now()})
		orphans++
		slog.Warn("Failing orphaned turn", "session_id", session.ID, "turn_id", t.ID)
	}
	if orphans == 0 {
		return session, nil
	}
	if err := s.repo.SaveSession(ctx, next); err != nil {
		return session, fmt.Errorf("save session %s: %w", session.ID, err)
	}
	s.notifier.Publish(ctx, next)
	return next, nil
}

// commit applies ev, persists the result and publishes it. Callers hold the session lock.
func (s *Service) commit(ctx context.Context, session domain.Session, ev domain.Event) (domain.Session, error) {
	next := session.Apply(ev).Touch(s.now())
	if err := s.repo.SaveSession(ctx, next); err != nil {
		return session, fmt.Errorf("save session %s: %w", session.ID, err)
	}
	s.notifier.Publish(ctx, next)
	return next, nil
}

// EnsureSession creates the session on first sight and records activity.
func (s *Service) EnsureSession(ctx context.Context, sessionID string) error {
	unlock := s.lock(sessionID)
	defer unlock()

	existing, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	now := s.now()
	if existing != nil {
		session, err := s.recoverOrphans(ctx, *existing)
		if err != nil {
			return err
		}
		if now.Sub(session.LastSeenAt) < time.Minute {
			return nil
		}
		return s.repo.SaveSession(ctx, session.Touch(now))
	}
	if err := s.repo.SaveSession(ctx, domain.NewSession(sessionID, now)); err != nil {
		return fmt.Errorf("create session %s: %w", sessionID, err)
	}
	slog.Info("Session created", "session_id", sessionID)
	return nil
}

// Snapshot returns the current state of a session.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (domain.Session, error) {
	unlock := s.lock(sessionID)
	defer unlock()
	return s.load(ctx, sessionID)
}

// SelectFile records the file chosen in the browser. It replaces any earlier selection
// and keeps the active document reference.
func (s *Service) SelectFile(ctx context.Context, sessionID, name, contentType string, data []byte) (domain.Session, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	file := domain.SelectedFile{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		SelectedAt:  s.now(),
	}
	if err := s.repo.SaveFile(ctx, sessionID, file, data); err != nil {
		return session, fmt.Errorf("save selected file: %w", err)
	}

	slog.Info("File selected", "session_id", sessionID, "file_name", name, "size", file.Size)
	return s.commit(ctx, session, domain.FileSelected{File: file, At: file.SelectedAt})
}

// PreviewFile returns the selected file and its bytes.
func (s *Service) PreviewFile(ctx context.Context, sessionID string) (*domain.SelectedFile, []byte, error) {
	file, data, err := s.repo.GetFile(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrNoFile
		}
		return nil, nil, fmt.Errorf("load selected file: %w", err)
	}
	return file, data, nil
}

// Upload sends the selected file to the backend and returns the notice to show the user.
// A response carrying a document id makes it the active document; otherwise the previous
// reference is kept.
func (s *Service) Upload(ctx context.Context, sessionID string) (string, error) {
	file, data, err := s.PreviewFile(ctx, sessionID)
	if err != nil {
		return "", err
	}

	resp, err := s.backend.Upload(ctx, file.Name, bytes.NewReader(data))
	if err != nil {
		slog.Warn("Upload failed", "session_id", sessionID, "file_name", file.Name, "error", err)
		return UploadFailedPrefix + err.Error(), nil
	}

	if resp.DocID == "" {
		slog.Info("Upload rejected", "session_id", sessionID, "file_name", file.Name, "notice", resp.Notice())
		return resp.Notice(), nil
	}

	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if _, err := s.commit(ctx, session, domain.DocumentUploaded{DocID: resp.DocID, At: s.now()}); err != nil {
		return "", err
	}

	slog.Info("Document uploaded",
		"session_id", sessionID,
		"doc_id", resp.DocID,
		"total_pages", resp.TotalPages,
	)
	return resp.Notice(), nil
}

// PageField converts the typed page into the zero-based page_number sent to the backend.
// Input starting with an integer is shifted down by one whatever its range; other non-blank
// input is sent as typed and left for the backend to reject.
func PageField(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidPage
	}
	if n, ok := leadingInt(trimmed); ok {
		return strconv.Itoa(n - 1), nil
	}
	return trimmed, nil
}

// leadingInt parses the optionally signed run of digits at the start of v.
func leadingInt(v string) (int, bool) {
	end := 0
	if end < len(v) && (v[end] == '+' || v[end] == '-') {
		end++
	}
	digits := end
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(v[:end])
	return n, err == nil
}

// Ask appends a pending turn and resolves it in the background. Unmet preconditions make
// it a no-op: no turn is added and nothing is sent.
func (s *Service) Ask(ctx context.Context, sessionID, question, pageInput string) (domain.Turn, error) {
	if strings.TrimSpace(question) == "" {
		return domain.Turn{}, ErrNotReady
	}

	req := qaclient.AskRequest{Question: question}
	display := question
	if s.opts.RequirePage {
		field, err := PageField(pageInput)
		if err != nil {
			return domain.Turn{}, err
		}
		req.PageNumber = field
		display = fmt.Sprintf("(%s) %s", strings.TrimSpace(pageInput), question)
	}

	unlock := s.lock(sessionID)
	session, err := s.load(ctx, sessionID)
	if err != nil {
		unlock()
		return domain.Turn{}, err
	}
	if !session.HasDocument() {
		unlock()
		return domain.Turn{}, ErrNotReady
	}
	req.DocID = session.DocID

	turn := domain.NewTurn(uuid.NewString(), display, s.now())
	s.owned.Store(turn.ID, sessionID)
	if _, err := s.commit(ctx, session, domain.TurnSubmitted{Turn: turn}); err != nil {
		s.owned.Delete(turn.ID)
		unlock()
		return domain.Turn{}, err
	}
	unlock()

	s.transcript.Log(TranscriptEvent{
		SessionID: sessionID,
		TurnID:    turn.ID,
		DocID:     req.DocID,
		EventType: EventQuestion,
		Content:   display,
	})

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.resolve(context.WithoutCancel(ctx), sessionID, turn.ID, req)
	}()

	return turn, nil
}

func (s *Service) resolve(ctx context.Context, sessionID, turnID string, req qaclient.AskRequest) {
	defer s.owned.Delete(turnID)

	askCtx := ctx
	if s.opts.AskTimeout > 0 {
		var cancel context.CancelFunc
		askCtx, cancel = context.WithTimeout(ctx, s.opts.AskTimeout)
		defer cancel()
	}

	start := s.now()
	answer, failed := "", false
	resp, err := s.backend.Ask(askCtx, req)
	if err != nil {
		answer, failed = domain.ErrorAnswerPrefix+err.Error(), true
		slog.Warn("Ask failed", "session_id", sessionID, "turn_id", turnID, "error", err)
	} else {
		answer = resp.Text()
		if resp.Error != "" {
			slog.Info("Backend returned error for question",
				"session_id", sessionID,
				"turn_id", turnID,
				"error", resp.Error,
				"details", resp.Details,
			)
		}
	}

	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		slog.Error("Failed to load session for answer", "session_id", sessionID, "turn_id", turnID, "error", err)
		return
	}
	if t, ok := session.Turn(turnID); !ok || !t.IsPending() {
		slog.Debug("Dropping answer for missing or resolved turn", "session_id", sessionID, "turn_id", turnID)
		return
	}
	if _, err := s.commit(ctx, session, domain.TurnResolved{TurnID: turnID, Answer: answer, Failed: failed, At: s.now()}); err != nil {
		slog.Error("Failed to store answer", "session_id", sessionID, "turn_id", turnID, "error", err)
		return
	}

	eventType := EventAnswer
	if failed {
		eventType = EventFailure
	}
	s.transcript.Log(TranscriptEvent{
		SessionID:  sessionID,
		TurnID:     turnID,
		DocID:      req.DocID,
		EventType:  eventType,
		Content:    answer,
		DurationMS: s.now().Sub(start).Milliseconds(),
	})
	slog.Info("Question answered", "session_id", sessionID, "turn_id", turnID, "failed", failed)
}

// Wait blocks until every in-flight ask has resolved.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// Close waits for in-flight asks and flushes the transcript.
func (s *Service) Close() {
	s.Wait()
	if err := s.transcript.Close(); err != nil {
		slog.Warn("failed to close transcript logger", "error", err)
	}
}
