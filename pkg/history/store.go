// Package history persists finished conversation transcripts. Sessions
// append as JSON lines, one record per session, so replay tooling can
// stream the file without loading it whole.
package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parlo-app/parlo/pkg/redact"
	"github.com/parlo-app/parlo/pkg/transcript"
)

// Record is one persisted conversation.
type Record struct {
	SessionID string            `json:"session_id"`
	Persona   string            `json:"persona,omitempty"`
	Topic     string            `json:"topic,omitempty"`
	SavedAt   time.Time         `json:"saved_at"`
	Turns     []transcript.Turn `json:"turns"`
}

type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{path: filepath.Join(dir, "sessions.jsonl")}, nil
}

// Save appends one session record. Empty transcripts are skipped; a
// session the user never spoke in carries no replay value.
func (s *Store) Save(persona, topic string, turns []transcript.Turn) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	stored := make([]transcript.Turn, len(turns))
	for i, turn := range turns {
		turn.Text = redact.Text(turn.Text)
		turn.Annotation = redact.Text(turn.Annotation)
		stored[i] = turn
	}
	rec := Record{
		SessionID: uuid.NewString(),
		Persona:   persona,
		Topic:     topic,
		SavedAt:   time.Now().UTC(),
		Turns:     stored,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	if err := enc.Encode(rec); err != nil {
		return "", err
	}
	return rec.SessionID, nil
}

// Load returns every persisted session in append order.
func (s *Store) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			// A torn last line from a crash should not poison the history.
			continue
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}
