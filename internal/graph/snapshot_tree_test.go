package graph

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSnapshotTreeInsertAndLen(t *testing.T) {
	tree := NewSnapshotTree()
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ok := tree.Insert(base.AddDate(0, 0, i*7), NewMappedGraph())
		if !ok {
			t.Fatalf("Insert(%d) = false, want true", i)
		}
	}
	if tree.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", tree.Len())
	}
}

func TestSnapshotTreeRejectsDuplicateTimestamp(t *testing.T) {
	tree := NewSnapshotTree()
	ts := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	if ok := tree.Insert(ts, NewMappedGraph()); !ok {
		t.Fatal("first insert should succeed")
	}
	if ok := tree.Insert(ts, NewMappedGraph()); ok {
		t.Fatal("duplicate-timestamp insert should be rejected")
	}
	if tree.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tree.Len())
	}
}

func TestSnapshotTreeFindMaxValueLessThan(t *testing.T) {
	tree := NewSnapshotTree()
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	week1 := NewMappedGraph()
	week1.AddNeighbor("BTC", "USD1", decimal.NewFromInt(1), false)
	week2 := NewMappedGraph()
	week2.AddNeighbor("BTC", "USD2", decimal.NewFromInt(1), false)
	week3 := NewMappedGraph()
	week3.AddNeighbor("BTC", "USD3", decimal.NewFromInt(1), false)

	tree.Insert(base, week1)
	tree.Insert(base.AddDate(0, 0, 7), week2)
	tree.Insert(base.AddDate(0, 0, 14), week3)

	got, ok := tree.FindMaxValueLessThan(base.AddDate(0, 0, 10))
	if !ok {
		t.Fatal("expected a snapshot to be found")
	}
	if !got.HasEdge("BTC", "USD2") {
		t.Fatal("expected week2 snapshot (the latest before day 10)")
	}

	_, ok = tree.FindMaxValueLessThan(base)
	if ok {
		t.Fatal("expected no snapshot strictly before the earliest timestamp")
	}

	got, ok = tree.FindMaxValueLessThan(base.AddDate(1, 0, 0))
	if !ok || !got.HasEdge("BTC", "USD3") {
		t.Fatal("expected the latest snapshot for a far-future query")
	}
}

func TestSnapshotTreeEmpty(t *testing.T) {
	tree := NewSnapshotTree()
	_, ok := tree.FindMaxValueLessThan(time.Now())
	if ok {
		t.Fatal("expected no result from an empty tree")
	}
}
