package pool

import "testing"

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New[int](2)

	h1, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	*p.At(h1) = 42

	h2, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	*p.At(h2) = 7

	if _, err := p.Acquire(); err != ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}

	p.Release(h1)
	h3, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if *p.At(h3) != 0 {
		t.Errorf("expected zeroed cell after release, got %d", *p.At(h3))
	}
	if *p.At(h2) != 7 {
		t.Errorf("unrelated live cell mutated: got %d", *p.At(h2))
	}
}

func TestZeroCapacity(t *testing.T) {
	p := New[int](0)
	if _, err := p.Acquire(); err != ErrExhausted {
		t.Fatalf("expected ErrExhausted on zero-capacity pool, got %v", err)
	}
}

func TestDoubleReleasePanics(t *testing.T) {
	p := New[int](1)
	h, _ := p.Acquire()
	p.Release(h)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double release")
		}
	}()
	p.Release(h)
}

func TestLiveCount(t *testing.T) {
	p := New[int](4)
	if p.Live() != 0 {
		t.Fatalf("expected 0 live, got %d", p.Live())
	}
	h1, _ := p.Acquire()
	h2, _ := p.Acquire()
	if p.Live() != 2 {
		t.Fatalf("expected 2 live, got %d", p.Live())
	}
	p.Release(h1)
	if p.Live() != 1 {
		t.Fatalf("expected 1 live after release, got %d", p.Live())
	}
	p.Release(h2)
	if p.Live() != 0 {
		t.Fatalf("expected 0 live, got %d", p.Live())
	}
}
