package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMarkSeenExactlyOnce(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	first, err := s.MarkSeen(ctx, "deribit_BTC-1001", time.Hour)
	if err != nil || !first {
		t.Fatalf("first MarkSeen = (%v, %v), want (true, nil)", first, err)
	}
	again, err := s.MarkSeen(ctx, "deribit_BTC-1001", time.Hour)
	if err != nil || again {
		t.Fatalf("second MarkSeen = (%v, %v), want (false, nil)", again, err)
	}
	seen, err := s.Seen(ctx, "deribit_BTC-1001")
	if err != nil || !seen {
		t.Fatalf("Seen = (%v, %v), want (true, nil)", seen, err)
	}
}

func TestMarkSeenConcurrent(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	var firsts int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := s.MarkSeen(ctx, "contended", time.Hour)
			if err != nil {
				t.Errorf("MarkSeen: %v", err)
				return
			}
			if first {
				atomic.AddInt64(&firsts, 1)
			}
		}()
	}
	wg.Wait()
	if firsts != 1 {
		t.Fatalf("firsts = %d, want exactly 1", firsts)
	}
}

func TestMarkSeenExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if first, _ := s.MarkSeen(ctx, "short", 10*time.Millisecond); !first {
		t.Fatal("first mark should succeed")
	}
	time.Sleep(20 * time.Millisecond)
	if seen, _ := s.Seen(ctx, "short"); seen {
		t.Fatal("expired key still reported seen")
	}
	if first, _ := s.MarkSeen(ctx, "short", time.Hour); !first {
		t.Fatal("mark after expiry should be first again")
	}
}

func TestQueueOrderAndDrain(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		if err := s.PushQueue(ctx, "block:BTC-44560", []byte(v)); err != nil {
			t.Fatalf("PushQueue: %v", err)
		}
	}
	if n, _ := s.QueueLen(ctx, "block:BTC-44560"); n != 3 {
		t.Fatalf("QueueLen = %d, want 3", n)
	}

	values, err := s.DrainQueue(ctx, "block:BTC-44560")
	if err != nil {
		t.Fatalf("DrainQueue: %v", err)
	}
	if len(values) != 3 || string(values[0]) != "a" || string(values[2]) != "c" {
		t.Fatalf("drained %q, want [a b c]", values)
	}

	values, err = s.DrainQueue(ctx, "block:BTC-44560")
	if err != nil || values != nil {
		t.Fatalf("second drain = (%v, %v), want (nil, nil)", values, err)
	}
	if n, _ := s.QueueLen(ctx, "block:BTC-44560"); n != 0 {
		t.Fatalf("QueueLen after drain = %d, want 0", n)
	}
}

func TestSetGetTTL(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "oi:BTC-26MAY23-27000-C", "142.5", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "oi:BTC-26MAY23-27000-C")
	if err != nil || !ok || v != "142.5" {
		t.Fatalf("Get = (%q, %v, %v)", v, ok, err)
	}

	if err := s.Set(ctx, "ephemeral", "x", 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "ephemeral"); ok {
		t.Fatal("expired value still returned")
	}

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("missing key reported present")
	}
}
