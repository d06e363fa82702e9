package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/finagent/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// TranscriptEntry is one persisted conversation turn
type TranscriptEntry struct {
	Conversation string    `json:"conversation"`
	Message      Message   `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// TranscriptStore persists conversation history as one JSONL file per
// conversation key, so a conversation can be resumed across invocations.
type TranscriptStore struct {
	dir        string
	logger     zerolog.Logger
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewTranscriptStore creates the store, creating dir if needed
func NewTranscriptStore(dir string, logger zerolog.Logger) (*TranscriptStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("transcript directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	return &TranscriptStore{
		dir:        dir,
		logger:     logger,
		writeLocks: make(map[string]*sync.Mutex),
	}, nil
}

// validateKey rejects keys that could escape the transcript directory
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("conversation key cannot be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("conversation key cannot contain '..'")
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("conversation key cannot contain path separators")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("conversation key cannot contain null bytes")
	}
	return nil
}

func (ts *TranscriptStore) path(key string) string {
	return filepath.Join(ts.dir, key+".jsonl")
}

func (ts *TranscriptStore) lock(key string) *sync.Mutex {
	ts.locksMu.Lock()
	defer ts.locksMu.Unlock()

	if l, ok := ts.writeLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	ts.writeLocks[key] = l
	return l
}

// Append writes messages to the end of a conversation
func (ts *TranscriptStore) Append(ctx context.Context, key string, msgs ...Message) error {
	if err := validateKey(key); err != nil {
		return err
	}
	for _, m := range msgs {
		if err := m.validate(); err != nil {
			return err
		}
	}

	_, span := tracing.StartSpan(ctx, "session.transcript_append",
		attribute.String("conversation", key),
		attribute.Int("messages", len(msgs)))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	l := ts.lock(key)
	l.Lock()
	defer l.Unlock()

	var file *os.File
	file, err = os.OpenFile(ts.path(key), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open transcript: %w", err)
		return err
	}
	defer file.Close()

	now := time.Now().UTC()
	w := bufio.NewWriter(file)
	for _, m := range msgs {
		var data []byte
		data, err = json.Marshal(TranscriptEntry{Conversation: key, Message: m, Timestamp: now})
		if err != nil {
			err = fmt.Errorf("failed to marshal message: %w", err)
			return err
		}
		if _, err = w.Write(append(data, '\n')); err != nil {
			err = fmt.Errorf("failed to write message: %w", err)
			return err
		}
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = file.Sync(); err != nil {
		err = fmt.Errorf("failed to sync transcript: %w", err)
		return err
	}

	ts.logger.Debug().Str("conversation", key).Int("messages", len(msgs)).Msg("Transcript appended")
	return nil
}

// Load returns a conversation's messages in order. A missing conversation is
// empty; malformed lines are skipped.
func (ts *TranscriptStore) Load(ctx context.Context, key string) ([]Message, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	file, err := os.Open(ts.path(key))
	if os.IsNotExist(err) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	msgs := []Message{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry TranscriptEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			ts.logger.Warn().Str("conversation", key).Int("line", lineNum).Err(err).Msg("Failed to parse line, skipping")
			continue
		}
		if err := entry.Message.validate(); err != nil {
			ts.logger.Warn().Str("conversation", key).Int("line", lineNum).Err(err).Msg("Invalid entry, skipping")
			continue
		}
		msgs = append(msgs, entry.Message)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	return msgs, nil
}

// Delete removes a conversation
func (ts *TranscriptStore) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	l := ts.lock(key)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(ts.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}

// List returns the stored conversation keys, sorted
func (ts *TranscriptStore) List() ([]string, error) {
	entries, err := os.ReadDir(ts.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read transcript directory: %w", err)
	}

	keys := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	sort.Strings(keys)
	return keys, nil
}
