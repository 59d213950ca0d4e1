// Package session holds per-user chat state: the files already ingested, the transcript,
// and the PDF most recently processed.
package session

import (
	"sync"
	"time"

	"github.com/hyperjump/pachat/internal/models"
)

// Session is the state of one chat. It starts empty and is discarded when it expires.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	processed  map[string]struct{}
	inFlight   map[string]struct{}
	transcript []models.Message
	currentPDF string
}

// New returns an empty session.
func New(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		processed: make(map[string]struct{}),
		inFlight:  make(map[string]struct{}),
	}
}

// IsProcessed reports whether the file name was already ingested in this session.
func (s *Session) IsProcessed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[name]
	return ok
}

// MarkProcessed records a successful ingestion of name.
func (s *Session) MarkProcessed(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[name] = struct{}{}
}

// TryBegin reserves name for ingestion. It returns false when name is already processed
// or another ingestion of it is running. Every successful TryBegin must be paired with Done.
func (s *Session) TryBegin(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[name]; ok {
		return false
	}
	if _, ok := s.inFlight[name]; ok {
		return false
	}
	s.inFlight[name] = struct{}{}
	return true
}

// Done releases the reservation taken by TryBegin, recording name as processed when ok.
func (s *Session) Done(name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, name)
	if ok {
		s.processed[name] = struct{}{}
	}
}

// Processed returns the number of files ingested in this session.
func (s *Session) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

// SetCurrentPDF remembers the last PDF that was ingested.
func (s *Session) SetCurrentPDF(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPDF = name
}

// CurrentPDF returns the last PDF ingested, or "".
func (s *Session) CurrentPDF() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPDF
}

// Append adds a message to the transcript, stamping it if Time is zero.
func (s *Session) Append(msg models.Message) {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, msg)
}

// Transcript returns a copy of the messages so far.
func (s *Session) Transcript() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.transcript...)
}
