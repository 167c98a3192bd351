// Package json persists conversation transcripts as JSON files so that a run
// can be resumed later.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/mcpbridge"
)

const formatVersion = 1

// envelope is the on-disk transcript format.
type envelope struct {
	Version      int          `json:"version"`
	ID           string       `json:"id"`
	SystemPrompt string       `json:"system_prompt"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Messages     []messageDTO `json:"messages"`
}

// MarshalSession encodes s as an indented transcript.
func MarshalSession(s mcpbridge.Session) ([]byte, error) {
	dtos := make([]messageDTO, 0, len(s.Messages))
	for i, msg := range s.Messages {
		dto, err := marshalMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("json: message %d: %w", i, err)
		}
		dtos = append(dtos, dto)
	}
	return json.MarshalIndent(envelope{
		Version:      formatVersion,
		ID:           s.ID,
		SystemPrompt: s.SystemPrompt,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Messages:     dtos,
	}, "", "  ")
}

// UnmarshalSession decodes a transcript. The restored conversation must
// satisfy [mcpbridge.ValidateConversation], so a resumed run never starts
// with unanswered tool calls.
func UnmarshalSession(data []byte) (mcpbridge.Session, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return mcpbridge.Session{}, fmt.Errorf("json: unmarshal envelope: %w", err)
	}
	if env.Version != formatVersion {
		return mcpbridge.Session{}, fmt.Errorf("json: unsupported envelope version: %d", env.Version)
	}

	s := mcpbridge.Session{
		ID:           env.ID,
		SystemPrompt: env.SystemPrompt,
		CreatedAt:    env.CreatedAt,
		UpdatedAt:    env.UpdatedAt,
		Messages:     make([]mcpbridge.Message, 0, len(env.Messages)),
	}
	for i, dto := range env.Messages {
		msg, err := unmarshalMessage(dto)
		if err != nil {
			return mcpbridge.Session{}, fmt.Errorf("json: message %d: %w", i, err)
		}
		s.Messages = append(s.Messages, msg)
	}
	if err := mcpbridge.ValidateConversation(s.Messages); err != nil {
		return mcpbridge.Session{}, fmt.Errorf("json: %w", err)
	}
	return s, nil
}

// Save writes s to path atomically: the transcript goes to a temporary file
// in the same directory, which then replaces path. Parent directories are
// created as needed.
func Save(path string, s mcpbridge.Session) (err error) {
	data, err := MarshalSession(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("json: create directories: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("json: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()

	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("json: write %s: %w", f.Name(), werr)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("json: replace %s: %w", path, err)
	}
	return nil
}

// Load reads the transcript at path. A missing file yields an error matching
// [os.ErrNotExist].
func Load(path string) (mcpbridge.Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return mcpbridge.Session{}, fmt.Errorf("json: no session at %s: %w", path, err)
	}
	if err != nil {
		return mcpbridge.Session{}, fmt.Errorf("json: %w", err)
	}
	return UnmarshalSession(data)
}
