package observable

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func next[T any](t *testing.T, s *Stream[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	v, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return v
}

func expectEOF[T any](t *testing.T, s *Stream[T]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func expectPending[T any](t *testing.T, s *Stream[T]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if v, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected no pending item, got %v (err=%v)", v, err)
	}
}

func TestValue_SingleObserver(t *testing.T) {
	v := NewValue("foo")
	s := v.Observe()
	if got := next(t, s); got != "foo" {
		t.Fatalf("first item should be the starting value, got %q", got)
	}

	if old := v.Replace("foo"); old != "foo" {
		t.Fatalf("Replace returned %q", old)
	}
	if old := v.Replace("bar"); old != "foo" {
		t.Fatalf("Replace returned %q", old)
	}
	if got := next(t, s); got != "bar" {
		t.Fatalf("second item should be the next new value, got %q", got)
	}

	v.Close()
	expectEOF(t, s)
}

func TestValue_MultipleObserversAndPurge(t *testing.T) {
	v := NewValue('a')
	s1 := v.Observe()
	v.Replace('b')
	s2 := v.Observe()

	if got := next(t, s1); got != 'a' {
		t.Fatalf("s1 first = %c", got)
	}
	if got := next(t, s1); got != 'b' {
		t.Fatalf("s1 second = %c", got)
	}
	if got := next(t, s2); got != 'b' {
		t.Fatalf("s2 first = %c", got)
	}

	v.Replace('c')
	s3 := v.Observe()
	for i, s := range []*Stream[rune]{s1, s2, s3} {
		if got := next(t, s); got != 'c' {
			t.Fatalf("stream %d: got %c, want c", i+1, got)
		}
	}

	_ = s1.Close()
	v.Replace('c')
	if n := len(v.c.observers); n != 2 {
		t.Fatalf("replace with an equal value should purge detached observers, have %d", n)
	}

	_ = s2.Close()
	v.Replace('d')
	if n := len(v.c.observers); n != 1 {
		t.Fatalf("replace should purge detached observers, have %d", n)
	}
	if got := next(t, s3); got != 'd' {
		t.Fatalf("s3 = %c", got)
	}
	_ = s3.Close()
	if n := v.Observers(); n != 0 {
		t.Fatalf("expected no observers, have %d", n)
	}
	if _, err := s3.Next(t.Context()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Next after Close: %v", err)
	}
}

func TestStream_NextHonoursContext(t *testing.T) {
	v := NewValue(1)
	s := v.Observe()
	next(t, s)
	expectPending(t, s)
}

func TestMap_InsertAndRemove(t *testing.T) {
	m := NewMap[rune, int]()
	s1 := m.Observe('a')
	if got := next(t, s1); got.Present {
		t.Fatalf("missing key should first stream an absent entry, got %+v", got)
	}

	if _, had := m.Insert('a', 1); had {
		t.Fatal("first insert should report no previous value")
	}
	if old, had := m.Insert('a', 1); !had || old != 1 {
		t.Fatalf("Insert = %d,%v", old, had)
	}
	if old, _ := m.Insert('a', 2); old != 1 {
		t.Fatalf("Insert returned %d", old)
	}
	m.Insert('b', 3)

	s2 := m.Observe('b')
	if got := next(t, s1); got != (Entry[int]{Value: 1, Present: true}) {
		t.Fatalf("s1 = %+v", got)
	}
	if got := next(t, s1); got != (Entry[int]{Value: 2, Present: true}) {
		t.Fatalf("s1 = %+v", got)
	}
	if got := next(t, s2); got != (Entry[int]{Value: 3, Present: true}) {
		t.Fatalf("s2 = %+v", got)
	}

	if old, had := m.Remove('a'); !had || old != 2 {
		t.Fatalf("Remove = %d,%v", old, had)
	}
	if _, had := m.Remove('a'); had {
		t.Fatal("removing an absent key twice should report nothing")
	}
	if _, had := m.Remove('c'); had {
		t.Fatal("removing a never-seen key should report nothing")
	}
	m.Insert('a', 4)

	if got := next(t, s1); got.Present {
		t.Fatalf("s1 should see the removal, got %+v", got)
	}
	if got := next(t, s1); got != (Entry[int]{Value: 4, Present: true}) {
		t.Fatalf("s1 = %+v", got)
	}

	_ = s1.Close()
	if old, had := m.Remove('a'); !had || old != 4 {
		t.Fatalf("Remove = %d,%v", old, had)
	}
	if m.Has('a') {
		t.Fatal("unobserved key should be dropped on Remove")
	}

	m.Close()
	expectEOF(t, s2)
}

func TestMap_Sync(t *testing.T) {
	m := NewMap[rune, int]()
	m.Sync(map[rune]int{'a': 1})

	s1 := m.Observe('a')
	s2 := m.Observe('b')
	if got := next(t, s1); got.Value != 1 {
		t.Fatalf("s1 = %+v", got)
	}
	if got := next(t, s2); got.Present {
		t.Fatalf("s2 = %+v", got)
	}

	m.Sync(map[rune]int{'a': 2, 'b': 3})
	s3 := m.Observe('b')
	if got := next(t, s1); got.Value != 2 {
		t.Fatalf("s1 = %+v", got)
	}
	if got := next(t, s2); got.Value != 3 {
		t.Fatalf("s2 = %+v", got)
	}
	if got := next(t, s3); got.Value != 3 {
		t.Fatalf("s3 = %+v", got)
	}

	m.Sync(map[rune]int{'b': 3, 'a': 2})
	m.Sync(map[rune]int{'b': 3, 'c': 4})
	if got := next(t, s1); got.Present {
		t.Fatalf("s1 should see 'a' removed, got %+v", got)
	}
	expectPending(t, s1)

	_ = s1.Close()
	_ = s2.Close()
	m.Sync(map[rune]int{'b': 3, 'c': 4})
	if m.Has('a') {
		t.Fatal("sync should drop unobserved absent keys")
	}
	if n := m.Observers('b'); n != 1 {
		t.Fatalf("expected one observer left on 'b', have %d", n)
	}

	m.Close()
	expectEOF(t, s3)
}

func TestMap_ObserveAfterClose(t *testing.T) {
	m := NewMap[string, int]()
	m.Insert("x", 9)
	m.Close()

	s := m.Observe("x")
	if got := next(t, s); got.Value != 9 {
		t.Fatalf("got %+v", got)
	}
	expectEOF(t, s)
}
