package watcher

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"
)

type sliceStream struct {
	ids []string
	pos int
	err error
}

func (s *sliceStream) Next(context.Context) bool {
	if s.pos >= len(s.ids) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) BatchID() (string, error) {
	id := s.ids[s.pos-1]
	if id == "" {
		return "", errors.New("decode change event: missing document key")
	}
	return id, nil
}

func (s *sliceStream) ResumeToken() bson.Raw {
	return bson.Raw("token-" + s.ids[s.pos-1])
}

func (s *sliceStream) Err() error { return s.err }

func (s *sliceStream) Close(context.Context) error { return nil }

func TestRunDispatchesEventsAndResumes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		handled []string
		tokens  []string
		opens   int
	)
	source := SourceFunc(func(_ context.Context, token bson.Raw) (Stream, error) {
		mu.Lock()
		defer mu.Unlock()
		opens++
		tokens = append(tokens, string(token))
		switch opens {
		case 1:
			return &sliceStream{ids: []string{"b1", "", "b2"}, err: errors.New("connection closed")}, nil
		case 2:
			return &sliceStream{ids: []string{"b3"}}, nil
		default:
			cancel()
			return nil, errors.New("context canceled")
		}
	})
	handle := func(_ context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, id)
		if id == "b2" {
			return errors.New("persist decision: timeout")
		}
		return nil
	}

	w := New(source, handle, 2, zaptest.NewLogger(t))
	w.reopenDelay = time.Millisecond

	if err := w.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sort.Strings(handled)
	if len(handled) != 3 || handled[0] != "b1" || handled[1] != "b2" || handled[2] != "b3" {
		t.Errorf("unexpected handled batches %v", handled)
	}
	if len(tokens) < 2 || tokens[0] != "" || tokens[1] != "token-b2" {
		t.Errorf("expected the second stream to resume after b2, got %v", tokens)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ids := []string{"b1", "b2", "b3", "b4", "b5", "b6"}
	var opened atomic.Bool
	source := SourceFunc(func(context.Context, bson.Raw) (Stream, error) {
		if opened.Swap(true) {
			cancel()
			return nil, errors.New("closed")
		}
		return &sliceStream{ids: ids}, nil
	})

	var inFlight, peak, total atomic.Int32
	handle := func(context.Context, string) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		total.Add(1)
		return nil
	}

	w := New(source, handle, 2, zaptest.NewLogger(t))
	w.reopenDelay = time.Millisecond
	_ = w.Run(ctx)

	if total.Load() != int32(len(ids)) {
		t.Errorf("expected %d handled events, got %d", len(ids), total.Load())
	}
	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent handlers, saw %d", peak.Load())
	}
}
