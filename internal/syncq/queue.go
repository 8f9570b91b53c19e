// Package syncq keeps decisions that could not reach the API in a local
// file so they can be replayed later.
package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Entry is one queued decision submission.
type Entry struct {
	GameID        string          `json:"game_id"`
	ParticipantID string          `json:"participant_id"`
	Round         int             `json:"round"`
	Decision      json.RawMessage `json:"decision"`
	ID            string          `json:"id"`
	QueuedAt      time.Time       `json:"queued_at"`
}

// ErrRejected marks a submission the server refused for good. Drain drops
// such entries instead of retrying them.
var ErrRejected = errors.New("submission rejected")

func queuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".stratsim")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Entry, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Entry{}, nil
	}
	var out []Entry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(entries []Entry) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Push queues e, replacing an earlier entry for the same game, participant
// and round.
func Push(e Entry) error {
	entries, err := Load()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, old := range entries {
		if old.GameID == e.GameID && old.ParticipantID == e.ParticipantID && old.Round == e.Round {
			continue
		}
		kept = append(kept, old)
	}
	return Save(append(kept, e))
}

type Result struct {
	Sent     int
	Rejected []Entry
	Pending  int
}

// Drain replays queued entries in order. Entries that submit accepts or
// rejects with ErrRejected leave the queue; any other error stops the drain
// and keeps the rest for the next attempt.
func Drain(ctx context.Context, submit func(context.Context, Entry) error) (Result, error) {
	entries, err := Load()
	if err != nil {
		return Result{}, err
	}
	var res Result
	i := 0
	var stopErr error
	for ; i < len(entries); i++ {
		err := submit(ctx, entries[i])
		if err == nil {
			res.Sent++
			continue
		}
		if errors.Is(err, ErrRejected) {
			res.Rejected = append(res.Rejected, entries[i])
			continue
		}
		stopErr = err
		break
	}
	rest := entries[i:]
	res.Pending = len(rest)
	if err := Save(rest); err != nil {
		return res, err
	}
	return res, stopErr
}
