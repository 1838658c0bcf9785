// Package session holds per-connection conversational state and the
// process-wide registry of live sessions.
package session

import (
	"sync"
	"time"
)

// Role values for conversation history entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a session's append-only conversation history.
type Message struct {
	Role      string
	Content   string
	Agent     string
	Timestamp time.Time
}

// Snapshot is the client-facing view of collected customer state. It is the
// payload of context_update wire events.
type Snapshot struct {
	Name              string   `json:"name"`
	Email             string   `json:"email"`
	Phone             string   `json:"phone"`
	InfoComplete      bool     `json:"info_complete"`
	ProductsDiscussed []string `json:"products_discussed"`
	SelectedProduct   string   `json:"selected_product"`
	CurrentAgent      string   `json:"current_agent"`
}

// Session is the per-connection record. The turn pipeline is the only
// writer, but the REST surface snapshots a live session from other
// goroutines, so mutations and Snapshot both take the mutex. Reads on the
// turn path itself are ordered by the turn's event channels.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu sync.Mutex

	// Collected customer fields; empty string means not yet collected.
	Name  string
	Email string
	Phone string

	InfoComplete      bool
	ProductsDiscussed []string
	SelectedProduct   string
	Summary           string

	ActiveAgent string
	VoiceID     string

	History []Message

	voiceMode bool
	audio     []byte
}

func newSession(id, agentName, voiceID string) *Session {
	return &Session{
		ID:          id,
		CreatedAt:   time.Now().UTC(),
		ActiveAgent: agentName,
		VoiceID:     voiceID,
	}
}

// AppendHistory records one conversation entry. History is append-only.
func (s *Session) AppendHistory(role, content, agentName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = append(s.History, Message{
		Role:      role,
		Content:   content,
		Agent:     agentName,
		Timestamp: time.Now().UTC(),
	})
}

// SetActiveAgent switches the active agent identity and its voice.
func (s *Session) SetActiveAgent(name, voiceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActiveAgent = name
	s.VoiceID = voiceID
}

func (s *Session) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Name = name
}

func (s *Session) SetEmail(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Email = email
}

func (s *Session) SetPhone(phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Phone = phone
}

// MarkInfoComplete records that all contact fields have been verified.
func (s *Session) MarkInfoComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InfoComplete = true
}

func (s *Session) SetSelectedProduct(product string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SelectedProduct = product
}

func (s *Session) SetSummary(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Summary = summary
}

// SetVoiceMode toggles voice mode between voice_mode_start and
// voice_mode_end.
func (s *Session) SetVoiceMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceMode = on
}

func (s *Session) InVoiceMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceMode
}

// AppendAudio accumulates raw PCM bytes for the current voice turn.
func (s *Session) AppendAudio(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, chunk...)
}

// AudioLen reports the number of buffered audio bytes.
func (s *Session) AudioLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}

// TakeAudio returns the accumulated buffer and clears it. Called at turn
// boundaries.
func (s *Session) TakeAudio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.audio
	s.audio = nil
	return buf
}

// HasContactInfo reports whether all three contact fields are collected.
func (s *Session) HasContactInfo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Name != "" && s.Email != "" && s.Phone != ""
}

// MissingContactFields lists contact fields not yet collected, in a fixed
// order suitable for tool error messages.
func (s *Session) MissingContactFields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []string
	if s.Name == "" {
		missing = append(missing, "name")
	}
	if s.Email == "" {
		missing = append(missing, "email")
	}
	if s.Phone == "" {
		missing = append(missing, "phone")
	}
	return missing
}

// AddProductInterest records a discussed product, de-duplicated.
func (s *Session) AddProductInterest(product string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.ProductsDiscussed {
		if p == product {
			return
		}
	}
	s.ProductsDiscussed = append(s.ProductsDiscussed, product)
}

// Snapshot returns the current client-facing state. The slice is copied so
// the snapshot is stable once taken.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	discussed := make([]string, len(s.ProductsDiscussed))
	copy(discussed, s.ProductsDiscussed)
	return Snapshot{
		Name:              s.Name,
		Email:             s.Email,
		Phone:             s.Phone,
		InfoComplete:      s.InfoComplete,
		ProductsDiscussed: discussed,
		SelectedProduct:   s.SelectedProduct,
		CurrentAgent:      s.ActiveAgent,
	}
}
