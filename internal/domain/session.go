package domain

import (
	"time"
)

// Session is an immutable snapshot of one browser session.
// Values are only ever derived through Apply.
type Session struct {
	ID         string        `json:"id"`
	DocID      string        `json:"doc_id,omitempty"`
	File       *SelectedFile `json:"file,omitempty"`
	Turns      []Turn        `json:"turns"`
	CreatedAt  time.Time     `json:"created_at"`
	LastSeenAt time.Time     `json:"last_seen_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// NewSession returns an empty session.
func NewSession(id string, now time.Time) Session {
	return Session{
		ID:         id,
		Turns:      []Turn{},
		CreatedAt:  now,
		LastSeenAt: now,
		UpdatedAt:  now,
	}
}

// Event is a state transition accepted by Session.Apply.
type Event interface {
	apply(s *Session)
}

// FileSelected replaces the selected file.
type FileSelected struct {
	File SelectedFile
	At   time.Time
}

// DocumentUploaded records the document reference returned by an upload.
// An empty DocID leaves the previous reference in place.
type DocumentUploaded struct {
	DocID string
	At    time.Time
}

// TurnSubmitted appends a new turn.
type TurnSubmitted struct {
	Turn Turn
}

// TurnResolved sets the final answer of the turn with the given ID.
type TurnResolved struct {
	TurnID string
	Answer string
	Failed bool
	At     time.Time
}

func (e FileSelected) apply(s *Session) {
	f := e.File
	s.File = &f
	s.UpdatedAt = e.At
}

func (e DocumentUploaded) apply(s *Session) {
	if e.DocID == "" {
		return
	}
	s.DocID = e.DocID
	s.UpdatedAt = e.At
}

func (e TurnSubmitted) apply(s *Session) {
	s.Turns = append(s.Turns, e.Turn)
	s.UpdatedAt = e.Turn.AskedAt
}

func (e TurnResolved) apply(s *Session) {
	for i := range s.Turns {
		t := &s.Turns[i]
		if t.ID != e.TurnID {
			continue
		}
		// A turn is resolved once; late or duplicate replies are dropped.
		if !t.IsPending() {
			return
		}
		at := e.At
		t.Answer = e.Answer
		t.AnsweredAt = &at
		t.Status = TurnAnswered
		if e.Failed {
			t.Status = TurnFailed
		}
		s.UpdatedAt = e.At
		return
	}
}

// Apply returns the session that results from ev. The receiver is left untouched.
func (s Session) Apply(ev Event) Session {
	next := s.Clone()
	if ev != nil {
		ev.apply(&next)
	}
	return next
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	next := s
	next.Turns = make([]Turn, len(s.Turns), len(s.Turns)+1)
	copy(next.Turns, s.Turns)
	if s.File != nil {
		f := *s.File
		next.File = &f
	}
	return next
}

// Touch returns a copy with LastSeenAt moved to now.
func (s Session) Touch(now time.Time) Session {
	next := s.Clone()
	next.LastSeenAt = now
	return next
}

// Turn looks up a turn by ID.
func (s Session) Turn(id string) (Turn, bool) {
	for _, t := range s.Turns {
		if t.ID == id {
			return t, true
		}
	}
	return Turn{}, false
}

// Loading returns true while any question is in flight.
func (s Session) Loading() bool {
	for _, t := range s.Turns {
		if t.IsPending() {
			return true
		}
	}
	return false
}

// HasDocument returns true once an upload produced a document reference.
func (s Session) HasDocument() bool {
	return s.DocID != ""
}

// HasFile returns true if a local file is selected.
func (s Session) HasFile() bool {
	return s.File != nil
}

// SessionTTL returns the time until the session expires.
// Returns 0 if the session has already expired.
func (s Session) SessionTTL(idle time.Duration) time.Duration {
	ttl := time.Until(s.LastSeenAt.Add(idle))
	if ttl < 0 {
		return 0
	}
	return ttl
}
