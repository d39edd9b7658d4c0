package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/christopherjohns/groupchat/internal/chat"
	"github.com/christopherjohns/groupchat/internal/live"
	"github.com/christopherjohns/groupchat/internal/message"
)

type noAPI struct{}

func (noAPI) FetchMessages(ctx context.Context) ([]message.Message, error) { return nil, nil }

func (noAPI) PostMessage(ctx context.Context, d message.Draft) (*message.SendResponse, error) {
	return &message.SendResponse{Success: true}, nil
}

func TestPrinterPrintsEachEntryOnce(t *testing.T) {
	sess := chat.New(chat.Options{API: noAPI{}, Live: live.New("ws://unused/ws"), Username: "me"})
	var out bytes.Buffer
	p := &printer{out: &out, sess: sess}
	sess.OnUpdate(p.update)

	f := sess.Feed()
	f.Replace([]message.Message{{ID: 1, Text: "one", Username: "a", Timestamp: "t1"}})
	f.ApplyIncoming(message.Message{ID: 2, Text: "two", Username: "b", Timestamp: "t2"})
	f.ApplyIncoming(message.Message{ID: 2, Text: "two", Username: "b", Timestamp: "t2"})

	want := "[t1] a: one\n[t2] b: two\n"
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}

	// A smaller snapshot restarts the listing.
	out.Reset()
	f.Replace([]message.Message{{ID: 3, Text: "three", Username: "c", Timestamp: "t3"}})
	if !strings.Contains(out.String(), "[t3] c: three") {
		t.Errorf("expected replayed feed, got %q", out.String())
	}
}
