package vector

import (
	"context"
	"testing"
)

func TestMemoryIndex_UpsertSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	ids := []string{"a", "b", "c"}
	if err := idx.Upsert(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("top result should be a, got %s", results[0].ID)
	}
}

func TestMemoryIndex_UpsertReplacesByID(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Upsert(ctx, []string{"x"}, [][]float32{{0, 1}}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Fatalf("upsert of existing id must not grow the index, size=%d", idx.Size())
	}
	results, _ := idx.Search(ctx, []float32{1, 0}, 2, nil)
	if results[0].Score != 0 || results[1].Score != 0 {
		t.Errorf("x should have been replaced: %+v %+v", results[0], results[1])
	}
}

func TestMemoryIndex_SearchTiesKeepInsertionOrder(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	ids := []string{"first", "second", "third"}
	_ = idx.Upsert(ctx, ids, [][]float32{{1, 0}, {1, 0}, {1, 0}})
	for i := 0; i < 5; i++ {
		results, err := idx.Search(ctx, []float32{1, 0}, 3, nil)
		if err != nil {
			t.Fatal(err)
		}
		for j, r := range results {
			if r.ID != ids[j] {
				t.Fatalf("run %d: position %d = %s, want %s", i, j, r.ID, ids[j])
			}
		}
	}
}

func TestMemoryIndex_SearchAllowFilter(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []string{"a", "b", "c"}, [][]float32{{1, 0}, {0.5, 0.5}, {0, 1}})
	allowed := map[string]bool{"b": true, "c": true}
	results, err := idx.Search(ctx, []float32{1, 0}, 5, func(id string) bool { return allowed[id] })
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ID != "b" {
		t.Errorf("unexpected filtered results: %+v", results)
	}
	none, _ := idx.Search(ctx, []float32{1, 0}, 5, func(string) bool { return false })
	if len(none) != 0 {
		t.Errorf("expected no results, got %d", len(none))
	}
}

func TestMemoryIndex_lazyDimensions(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	results, err := idx.Search(ctx, []float32{1, 2, 3}, 1, nil)
	if err != nil || len(results) != 0 {
		t.Fatalf("empty index search: %v %v", results, err)
	}
	if err := idx.Upsert(ctx, []string{"a"}, [][]float32{{1, 2, 3}}); err != nil {
		t.Fatal(err)
	}
	if idx.Dimensions() != 3 {
		t.Errorf("Dimensions=%d", idx.Dimensions())
	}
	if err := idx.Upsert(ctx, []string{"b"}, [][]float32{{1, 2}}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Remove(ctx, []string{"x"}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
	_ = idx.Upsert(ctx, []string{"y"}, [][]float32{{1, 0}})
	if idx.Size() != 1 {
		t.Errorf("upsert after remove should replace y, size=%d", idx.Size())
	}
}

func TestCodec(t *testing.T) {
	in := []float32{0.5, -1, 3.25}
	out, err := DecodeFloat32s(EncodeFloat32s(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("index %d: got %v want %v", i, out[i], in[i])
		}
	}
	if _, err := DecodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
