package throttle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWait(t *testing.T) {
	t.Run("unlimited", func(t *testing.T) {
		l := NewLimiter(0)
		for i := 0; i < 5; i++ {
			if err := Wait(context.Background(), l); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	})

	t.Run("deadline shorter than next slot", func(t *testing.T) {
		l := NewLimiter(0.01)
		if err := Wait(context.Background(), l); err != nil {
			t.Fatalf("unexpected error on first slot: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := Wait(ctx, l)
		if !errors.Is(err, ErrWait) {
			t.Fatalf("expected ErrWait, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := Wait(ctx, NewLimiter(1)); !errors.Is(err, ErrWait) {
			t.Fatalf("expected ErrWait, got %v", err)
		}
	})
}
