package proofclass

import "testing"

func TestRankOrdersRootAheadOfLeaf(t *testing.T) {
	if Rank(BlockRootRollup) >= Rank(PublicVM) {
		t.Fatalf("expected BLOCK_ROOT_ROLLUP to rank ahead of PUBLIC_VM")
	}
}

func TestRankUnknownClassSortsLast(t *testing.T) {
	unknown := Class("SOMETHING_NEW")
	for _, c := range All() {
		if Rank(unknown) <= Rank(c) {
			t.Fatalf("expected unknown class to rank after %s", c)
		}
	}
}

func TestSortByRankPrefersRoot(t *testing.T) {
	in := []Class{PublicVM, BlockRootRollup, MergeRollup}
	out := SortByRank(in)
	if out[0] != BlockRootRollup {
		t.Fatalf("expected BLOCK_ROOT_ROLLUP first, got %v", out)
	}
	if len(out) != len(in) {
		t.Fatalf("expected same length, got %d", len(out))
	}
}

func TestSortByRankStableAmongUnranked(t *testing.T) {
	a, b := Class("UNRANKED_A"), Class("UNRANKED_B")
	in := []Class{a, b, PublicVM}
	out := SortByRank(in)
	// PublicVM is ranked, so it must sort ahead of both unranked entries.
	if out[len(out)-1] != b || out[len(out)-2] != a {
		t.Fatalf("expected unranked entries to keep input order at the tail, got %v", out)
	}
}
