package memory

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateGetSetRelease(t *testing.T) {
	s := New()
	ref := Allocate(s, "metric:reps", "block-1", int64(21), Inherited)

	got, err := Get(s, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(21), got)

	require.NoError(t, Set(s, ref, int64(15)))
	got, err = Get(s, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got)

	s.Release(ref.Reference)
	_, err = Get(s, ref)
	require.Error(t, err)
	assert.True(t, IsStaleReference(err))
	assert.True(t, errors.Is(err, ErrStaleReference))

	err = Set(s, ref, int64(9))
	assert.True(t, IsStaleReference(err))
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := New()
	ref := s.Allocate("timer", "b", int64(0), Private)
	s.Release(ref)
	s.Release(ref)
	assert.Equal(t, 0, s.Len())
}

func TestZeroReferenceIsStale(t *testing.T) {
	s := New()
	var ref Reference
	assert.True(t, ref.IsZero())
	_, err := s.Get(ref)
	assert.True(t, IsStaleReference(err))
}

func TestAllocateDefaultsToPrivate(t *testing.T) {
	s := New()
	ref := s.Allocate("x", "owner", 1, "")
	assert.Equal(t, Private, ref.Visibility)
}

func TestTypedGetMismatch(t *testing.T) {
	s := New()
	ref := s.Allocate("metric:reps", "b", "twenty-one", Public)

	_, err := Get(s, As[int64](ref))
	require.Error(t, err)
	assert.True(t, IsTypeMismatch(err))
	assert.Contains(t, err.Error(), "int64")
	assert.Contains(t, err.Error(), "string")
}

func TestSearchAllocationOrder(t *testing.T) {
	s := New()
	a := s.Allocate("round", "parent", 0, Public)
	s.Allocate("timer", "parent", 0, Public)
	b := s.Allocate("round", "child", 0, Public)
	c := s.Allocate("round", "grandchild", 0, Public)

	refs := s.Search(Filter{Type: "round"})
	assert.Equal(t, []Reference{a, b, c}, refs)

	s.Release(b)
	refs = s.Search(Filter{Type: "round"})
	assert.Equal(t, []Reference{a, c}, refs)

	refs = s.Search(Filter{Type: "round", OwnerID: "grandchild"})
	assert.Equal(t, []Reference{c}, refs)
}

func TestSearchVisibility(t *testing.T) {
	chain := map[string]string{"child": "root", "grandchild": "child"}
	lineage := LineageFunc(func(ancestor, descendant string) bool {
		for cur := chain[descendant]; cur != ""; cur = chain[cur] {
			if cur == ancestor {
				return true
			}
		}
		return false
	})
	s := New(WithLineage(lineage))

	priv := s.Allocate("state", "root", 1, Private)
	pub := s.Allocate("state", "root", 2, Public)
	inh := s.Allocate("state", "root", 3, Inherited)
	childInh := s.Allocate("state", "child", 4, Inherited)

	tests := []struct {
		name      string
		requester string
		want      []Reference
	}{
		{"owner sees all its cells", "root", []Reference{priv, pub, inh}},
		{"child sees public and ancestor inherited", "child", []Reference{pub, inh, childInh}},
		{"grandchild sees both inherited", "grandchild", []Reference{pub, inh, childInh}},
		{"stranger sees public only", "other", []Reference{pub}},
		{"external reader sees public and inherited", "", []Reference{pub, inh, childInh}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Search(Filter{Type: "state", Requester: tt.requester}))
		})
	}
}

func TestSearchInheritedFromAnyAncestor(t *testing.T) {
	active := map[string]bool{"root": true, "loop": true}
	parents := map[string]string{"loop": "root", "effort": "loop"}
	s := New(WithLineage(LineageFunc(func(ancestor, descendant string) bool {
		for cur := parents[descendant]; cur != ""; cur = parents[cur] {
			if cur == ancestor {
				return active[ancestor]
			}
		}
		return false
	})))

	Allocate(s, "metric:reps", "loop", int64(21), Inherited)

	v, _, ok := Find[int64](s, Filter{Type: "metric:reps", Visibility: Inherited, Requester: "effort"})
	require.True(t, ok)
	assert.Equal(t, int64(21), v)

	active["loop"] = false
	_, _, ok = Find[int64](s, Filter{Type: "metric:reps", Visibility: Inherited, Requester: "effort"})
	assert.False(t, ok, "inherited cells of inactive ancestors are hidden")
}

func TestFindReturnsNearest(t *testing.T) {
	s := New(WithLineage(LineageFunc(func(a, d string) bool { return true })))
	Allocate(s, "metric:reps", "outer", int64(21), Inherited)
	inner := Allocate(s, "metric:reps", "inner", int64(10), Inherited)

	v, ref, ok := Find[int64](s, Filter{Type: "metric:reps", Requester: "leaf"})
	require.True(t, ok)
	assert.Equal(t, int64(10), v)
	assert.Equal(t, inner, ref)

	_, _, ok = Find[string](s, Filter{Type: "metric:reps", Requester: "leaf"})
	assert.False(t, ok, "type mismatches are skipped")
}

func TestSubscribe(t *testing.T) {
	s := New()
	ref := s.Allocate("timer:elapsed", "b", int64(0), Public)

	var seen []any
	unsub, err := s.Subscribe(ref, func(r Reference, v any) {
		assert.Equal(t, ref, r)
		seen = append(seen, v)
	})
	require.NoError(t, err)

	require.NoError(t, s.Set(ref, int64(1000)))
	require.NoError(t, s.Set(ref, int64(2000)))
	unsub()
	unsub()
	require.NoError(t, s.Set(ref, int64(3000)))

	assert.Equal(t, []any{int64(1000), int64(2000)}, seen)

	s.Release(ref)
	_, err = s.Subscribe(ref, func(Reference, any) {})
	assert.True(t, IsStaleReference(err))
}

func TestSubscriberMayReadStore(t *testing.T) {
	s := New()
	ref := s.Allocate("round", "b", 0, Public)
	done := false
	_, err := s.Subscribe(ref, func(r Reference, _ any) {
		v, err := s.Get(r)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
		done = true
	})
	require.NoError(t, err)
	require.NoError(t, s.Set(ref, 1))
	assert.True(t, done)
}

func TestContextRelease(t *testing.T) {
	s := New()
	ctx := s.Context("block-7")
	a := Own(ctx, "round", int64(0), Public)
	b := ctx.Allocate("timer", int64(0), Private)
	other := s.Allocate("round", "someone-else", 0, Public)

	assert.Equal(t, "block-7", ctx.Owner())
	assert.Equal(t, "block-7", a.OwnerID)
	assert.Len(t, ctx.References(), 2)
	assert.Same(t, s, ctx.Store())

	ctx.Release()
	assert.True(t, ctx.Released())
	_, err := Get(s, a)
	assert.True(t, IsStaleReference(err))
	_, err = s.Get(b)
	assert.True(t, IsStaleReference(err))
	_, err = s.Get(other)
	assert.NoError(t, err)

	ctx.Release()
	assert.Empty(t, ctx.References())
}

func TestParseVisibility(t *testing.T) {
	for _, in := range []string{"private", "public", "inherited"} {
		v, err := ParseVisibility(in)
		require.NoError(t, err)
		assert.Equal(t, Visibility(in), v)
	}
	v, err := ParseVisibility("")
	require.NoError(t, err)
	assert.Equal(t, Private, v)

	_, err = ParseVisibility("Public")
	assert.ErrorContains(t, err, "invalid visibility")
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	ref := Allocate(s, "counter", "b", 0, Public)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				_ = Set(s, ref, i*100+j)
				_, _ = Get(s, ref)
				_ = s.Search(Filter{Type: "counter"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.Len())
}
