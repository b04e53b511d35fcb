package redisstream_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/zeni/ledgerflow/notify"
	"github.com/zeni/ledgerflow/notify/redisstream"
)

func newPublisher(t *testing.T) (*redisstream.Publisher, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstream.New(client, redisstream.WithStream("test:mail")), client
}

func TestPublisher_Send(t *testing.T) {
	p, client := newPublisher(t)
	ctx := context.Background()

	if err := p.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	msg := notify.NewMessage("bob@example.com", "You're invited", "Join the ledger")
	msg.Topic = "invite"
	if err := p.Send(ctx, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	entries, err := client.XRange(ctx, "test:mail", "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("stream length = %d, want 1", len(entries))
	}
	vals := entries[0].Values
	if vals["to"] != "bob@example.com" {
		t.Errorf("to = %v, want %q", vals["to"], "bob@example.com")
	}
	if vals["message_id"] != msg.ID.String() {
		t.Errorf("message_id = %v, want %q", vals["message_id"], msg.ID.String())
	}
	if vals["topic"] != "invite" {
		t.Errorf("topic = %v, want %q", vals["topic"], "invite")
	}
}

func TestPublisher_DedupesByMessageID(t *testing.T) {
	p, client := newPublisher(t)
	ctx := context.Background()

	msg := notify.NewMessage("bob@example.com", "Reminder", "")
	for range 3 {
		if err := p.Send(ctx, msg); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	n, err := client.XLen(ctx, "test:mail").Result()
	if err != nil {
		t.Fatalf("XLen: %v", err)
	}
	if n != 1 {
		t.Errorf("stream length = %d, want 1", n)
	}
}

func TestPublisher_DefaultStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := redisstream.New(client)
	if p.Stream() != redisstream.DefaultStream {
		t.Errorf("Stream = %q, want %q", p.Stream(), redisstream.DefaultStream)
	}
}
