package state

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const sessionKeyPrefix = "session:"

// SessionRecord is the journal entry written when a connection closes.
type SessionRecord struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	Subprotocol   string    `json:"subprotocol"`
	OpenedAt      time.Time `json:"opened_at"`
	ClosedAt      time.Time `json:"closed_at"`
	Reason        string    `json:"reason"`
	Updates       int       `json:"updates"`
	FetchFailures int       `json:"fetch_failures"`
}

func SessionKey(id string) string {
	return sessionKeyPrefix + id
}

func SaveSession(ctx context.Context, store Store, record SessionRecord) error {
	if store == nil {
		return nil
	}
	if strings.TrimSpace(record.ID) == "" {
		return errors.New("session id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return store.Set(ctx, SessionKey(record.ID), string(payload))
}

func LoadSession(ctx context.Context, store Store, id string) (SessionRecord, bool, error) {
	if store == nil {
		return SessionRecord{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, SessionKey(id))
	if err != nil {
		return SessionRecord{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return SessionRecord{}, false, nil
	}
	var record SessionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return SessionRecord{}, false, err
	}
	return record, true, nil
}

// ListSessions returns the ids of every journaled session.
func ListSessions(ctx context.Context, store Store) ([]string, error) {
	if store == nil {
		return nil, nil
	}
	keys, err := store.Keys(ctx, sessionKeyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, sessionKeyPrefix))
	}
	return ids, nil
}
