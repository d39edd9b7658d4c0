package message

import (
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T, maxSize int) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, maxSize), mr
}

func TestRedisStoreAppendAndCount(t *testing.T) {
	s, _ := newTestRedisStore(t, 100)

	m1, err := s.Append(draft("hello"))
	if err != nil {
		t.Fatalf("append error: %v", err)
	}
	m2, _ := s.Append(draft("world"))

	if m1.ID != 1 || m2.ID != 2 {
		t.Fatalf("expected IDs 1 and 2, got %d and %d", m1.ID, m2.ID)
	}
	if n, _ := s.Count(); n != 2 {
		t.Fatalf("expected 2 messages, got %d", n)
	}
}

func TestRedisStoreMaxSize(t *testing.T) {
	s, _ := newTestRedisStore(t, 3)

	for i := 0; i < 5; i++ {
		s.Append(draft(fmt.Sprintf("msg-%d", i)))
	}

	if n, _ := s.Count(); n != 3 {
		t.Fatalf("expected 3 messages (max size), got %d", n)
	}
	result, _ := s.Recent(0)
	if len(result) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result))
	}
	if result[0].ID != 3 || result[2].ID != 5 {
		t.Errorf("expected IDs [3..5], got [%d..%d]", result[0].ID, result[2].ID)
	}
}

func TestRedisStoreRecentReturnsLastN(t *testing.T) {
	s, _ := newTestRedisStore(t, 100)
	s.Append(draft("first"))
	s.Append(draft("second"))
	s.Append(draft("third"))

	result, _ := s.Recent(2)
	if len(result) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result))
	}
	if result[0].Text != "second" || result[1].Text != "third" {
		t.Errorf("expected [second, third], got [%s, %s]", result[0].Text, result[1].Text)
	}
}

func TestRedisStoreIDsSurviveNewStore(t *testing.T) {
	s, mr := newTestRedisStore(t, 100)
	s.Append(draft("before restart"))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	restarted := NewRedisStore(client, 100)

	m, err := restarted.Append(draft("after restart"))
	if err != nil {
		t.Fatalf("append error: %v", err)
	}
	if m.ID != 2 {
		t.Errorf("expected ID 2 after restart, got %d", m.ID)
	}
}

func TestRedisStoreSkipsUndecodableEntries(t *testing.T) {
	s, mr := newTestRedisStore(t, 100)
	s.Append(draft("good"))
	mr.Push(redisListKey, "not json")

	result, err := s.Recent(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 || result[0].Text != "good" {
		t.Errorf("expected only the decodable message, got %+v", result)
	}
}

func TestRedisStorePreservesMessageFields(t *testing.T) {
	s, _ := newTestRedisStore(t, 100)
	d := Draft{Text: "hello world", Username: "alice", Timestamp: "2024-05-01T10:00:00.000Z"}
	s.Append(d)

	result, _ := s.Recent(1)
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
	if !d.Matches(result[0]) {
		t.Errorf("expected %+v, got %+v", d, result[0])
	}
}

func TestRedisStoreErrorsWhenServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewRedisStore(client, 100)
	mr.Close()

	if _, err := s.Append(draft("lost")); err == nil {
		t.Fatal("expected append error with redis down")
	}
	if _, err := s.Count(); err == nil {
		t.Fatal("expected count error with redis down")
	}
}
