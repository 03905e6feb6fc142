package pta

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/tools/container/intsets"
)

// smallCap bounds the sorted-array representation of a points-to set.
// Beyond it the set switches to a sparse bitset.
const smallCap = 8

// PTSet is a monotonically growing set of abstract-object ids. The
// representation is hybrid: empty, an inline singleton, a sorted array of
// up to smallCap ids, then an [intsets.Sparse] bitset. Transitions are
// one-way.
//
// Unions report their delta so the solver can propagate increments only.
// Iteration order is ascending id order in every representation, which
// keeps the solver deterministic.
type PTSet struct {
	single ObjID
	small  []ObjID
	large  *intsets.Sparse
	size   int
}

func (s *PTSet) Len() int      { return s.size }
func (s *PTSet) IsEmpty() bool { return s.size == 0 }

func (s *PTSet) Contains(o ObjID) bool {
	switch {
	case s.large != nil:
		return s.large.Has(int(o))
	case s.size == 1:
		return s.single == o
	default:
		i := sort.Search(len(s.small), func(i int) bool { return s.small[i] >= o })
		return i < len(s.small) && s.small[i] == o
	}
}

// Add inserts o, reporting whether the set grew.
func (s *PTSet) Add(o ObjID) bool {
	switch {
	case s.large != nil:
		if s.large.Insert(int(o)) {
			s.size++
			return true
		}
		return false

	case s.size == 0:
		s.single = o
		s.size = 1
		return true

	case s.size == 1:
		if s.single == o {
			return false
		}
		s.small = make([]ObjID, 0, smallCap)
		if s.single < o {
			s.small = append(s.small, s.single, o)
		} else {
			s.small = append(s.small, o, s.single)
		}
		s.size = 2
		return true

	default:
		i := sort.Search(len(s.small), func(i int) bool { return s.small[i] >= o })
		if i < len(s.small) && s.small[i] == o {
			return false
		}
		if len(s.small) < smallCap {
			s.small = append(s.small, 0)
			copy(s.small[i+1:], s.small[i:])
			s.small[i] = o
			s.size++
			return true
		}
		// Grow into the bitset representation.
		s.large = new(intsets.Sparse)
		for _, x := range s.small {
			s.large.Insert(int(x))
		}
		s.small = nil
		s.large.Insert(int(o))
		s.size++
		return true
	}
}

// AddAll unions other into s and returns the delta: the elements of other
// that were not already present. The delta is nil when nothing was added.
func (s *PTSet) AddAll(other *PTSet) *PTSet {
	if other == nil || other.IsEmpty() {
		return nil
	}

	// Word-parallel path once both sets carry bitsets.
	if s.large != nil && other.large != nil {
		var diff intsets.Sparse
		diff.Difference(other.large, s.large)
		if diff.IsEmpty() {
			return nil
		}
		s.large.UnionWith(&diff)
		s.size = s.large.Len()

		delta := new(PTSet)
		for _, x := range diff.AppendTo(nil) {
			delta.Add(ObjID(x))
		}
		return delta
	}

	var delta *PTSet
	other.ForEach(func(o ObjID) {
		if s.Add(o) {
			if delta == nil {
				delta = new(PTSet)
			}
			delta.Add(o)
		}
	})
	return delta
}

// ForEach visits the elements in ascending id order.
func (s *PTSet) ForEach(f func(ObjID)) {
	switch {
	case s.large != nil:
		for _, x := range s.large.AppendTo(make([]int, 0, s.size)) {
			f(ObjID(x))
		}
	case s.size == 1:
		f(s.single)
	default:
		for _, o := range s.small {
			f(o)
		}
	}
}

// AppendTo appends the elements to dst in ascending order.
func (s *PTSet) AppendTo(dst []ObjID) []ObjID {
	s.ForEach(func(o ObjID) { dst = append(dst, o) })
	return dst
}

// Copy returns an independent set with the same elements.
func (s *PTSet) Copy() *PTSet {
	c := new(PTSet)
	s.ForEach(func(o ObjID) { c.Add(o) })
	return c
}

func (s *PTSet) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	s.ForEach(func(o ObjID) {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&sb, "%d", o)
	})
	sb.WriteByte('}')
	return sb.String()
}
