package state

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]string
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]string)
	}
	m.items[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryStore) Close() error {
	return nil
}

func TestSessionRoundTrip(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	opened := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	record := SessionRecord{
		ID:            "c0ffee",
		RemoteAddr:    "127.0.0.1:53211",
		Subprotocol:   "candles.json",
		OpenedAt:      opened,
		ClosedAt:      opened.Add(90 * time.Second),
		Reason:        "client_close",
		Updates:       3,
		FetchFailures: 1,
	}
	if err := SaveSession(ctx, store, record); err != nil {
		t.Fatalf("save session: %v", err)
	}
	got, ok, err := LoadSession(ctx, store, "c0ffee")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if !ok {
		t.Fatalf("expected session to be present")
	}
	if got != record {
		t.Fatalf("unexpected session: %#v", got)
	}
	if _, ok := store.items["session:c0ffee"]; !ok {
		t.Fatalf("expected session stored under session:c0ffee, got %v", store.items)
	}
}

func TestSessionMissing(t *testing.T) {
	store := &memoryStore{}
	got, ok, err := LoadSession(context.Background(), store, "nope")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if ok {
		t.Fatalf("expected no session, got %#v", got)
	}
}

func TestSessionInvalid(t *testing.T) {
	store := &memoryStore{items: map[string]string{SessionKey("bad"): "{"}}
	if _, _, err := LoadSession(context.Background(), store, "bad"); err == nil {
		t.Fatalf("expected error for invalid session JSON")
	}
}

func TestSaveSessionRequiresID(t *testing.T) {
	if err := SaveSession(context.Background(), &memoryStore{}, SessionRecord{}); err == nil {
		t.Fatalf("expected error for empty session id")
	}
}

func TestNilStoreIsNoop(t *testing.T) {
	if err := SaveSession(context.Background(), nil, SessionRecord{ID: "x"}); err != nil {
		t.Fatalf("save with nil store: %v", err)
	}
	if _, ok, err := LoadSession(context.Background(), nil, "x"); err != nil || ok {
		t.Fatalf("load with nil store: ok=%v err=%v", ok, err)
	}
}

func TestListSessions(t *testing.T) {
	store := &memoryStore{items: map[string]string{
		SessionKey("a"): "{}",
		SessionKey("b"): "{}",
		"other:key":     "{}",
	}}
	ids, err := ListSessions(context.Background(), store)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}
