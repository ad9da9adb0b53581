// Package proofclass defines the fixed set of proof kinds the broker
// schedules and the static rank used to choose among them at dispatch.
package proofclass

// Class is a closed enumeration of proof kinds. The set is fixed at design
// time; new values are not expected to be added without also extending
// rankOrder below.
type Class string

const (
	PublicVM                Class = "PUBLIC_VM"
	TubeProof               Class = "TUBE_PROOF"
	PrivateKernelEmpty       Class = "PRIVATE_KERNEL_EMPTY"
	PrivateBaseRollup        Class = "PRIVATE_BASE_ROLLUP"
	PublicBaseRollup         Class = "PUBLIC_BASE_ROLLUP"
	MergeRollup              Class = "MERGE_ROLLUP"
	RootRollup               Class = "ROOT_ROLLUP"
	BlockMergeRollup         Class = "BLOCK_MERGE_ROLLUP"
	BlockRootRollup          Class = "BLOCK_ROOT_ROLLUP"
	EmptyBlockRootRollup     Class = "EMPTY_BLOCK_ROOT_ROLLUP"
	BaseParity               Class = "BASE_PARITY"
	RootParity               Class = "ROOT_PARITY"
)

// rankOrder lists every known class from most to least preferred at
// dispatch. Classes closer to a block's root proof are prioritized so that
// in-flight blocks finish before new ones start (see acquire, §4.3).
var rankOrder = []Class{
	BlockRootRollup,
	BlockMergeRollup,
	RootRollup,
	MergeRollup,
	PublicBaseRollup,
	PrivateBaseRollup,
	PublicVM,
	TubeProof,
	RootParity,
	BaseParity,
	EmptyBlockRootRollup,
	PrivateKernelEmpty,
}

var rankIndex = func() map[Class]int {
	m := make(map[Class]int, len(rankOrder))
	for i, c := range rankOrder {
		m[c] = i
	}
	return m
}()

// unranked is the rank assigned to any class absent from rankOrder. It sorts
// after every known class so that an unrecognized class never starves known
// ones (§9 Design Notes).
const unranked = 1 << 30

// Rank returns the class's position in the dispatch preference order; lower
// is more preferred. Unknown classes return an identical large rank so they
// sort last and tie with each other (SortByRank keeps their input order).
func Rank(c Class) int {
	if r, ok := rankIndex[c]; ok {
		return r
	}
	return unranked
}

// All returns every known class, most preferred first. Callers that need a
// default allow-list (acquire with no explicit classes) use this.
func All() []Class {
	out := make([]Class, len(rankOrder))
	copy(out, rankOrder)
	return out
}

// SortByRank orders classes by dispatch preference, most preferred first.
// Ties (including multiple unranked classes) preserve input order, matching
// the "unranked classes sort after all known classes" rule without imposing
// an order among themselves.
func SortByRank(classes []Class) []Class {
	out := make([]Class, len(classes))
	copy(out, classes)
	// Insertion sort: the allow-lists passed by callers are small (at most
	// the full class set), and stability matters more than asymptotics here.
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && Rank(out[j-1]) > Rank(out[j]) {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}
