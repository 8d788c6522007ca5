// Package bpe implements the greedy byte-pair merge loop over a learned
// merge-rank table, with pluggable memoization.
package bpe

import (
	"errors"
	"fmt"
)

// ErrDuplicatePair is wrapped when a merge rule appears twice.
var ErrDuplicatePair = errors.New("duplicate merge pair")

// Pair is an ordered pair of adjacent symbols.
type Pair struct {
	Left  string
	Right string
}

func (p Pair) String() string { return p.Left + " " + p.Right }

// Ranks maps merge pairs to their priority. Lower ranks merge first.
// A Ranks value is read-only after construction and safe for concurrent use.
type Ranks struct {
	ranks map[Pair]int
	pairs []Pair
}

// NewRanks assigns each pair its index in pairs as rank.
func NewRanks(pairs []Pair) (*Ranks, error) {
	r := &Ranks{
		ranks: make(map[Pair]int, len(pairs)),
		pairs: append([]Pair(nil), pairs...),
	}

	for i, p := range pairs {
		if p.Left == "" || p.Right == "" {
			return nil, fmt.Errorf("merge rule %d: empty symbol in %q", i, p.String())
		}
		if prev, ok := r.ranks[p]; ok {
			return nil, fmt.Errorf("merge rule %d: %w %q (first seen at %d)", i, ErrDuplicatePair, p.String(), prev)
		}
		r.ranks[p] = i
	}

	return r, nil
}

// Rank returns the priority of (left, right). ok is false when no rule merges the pair.
func (r *Ranks) Rank(left, right string) (rank int, ok bool) {
	rank, ok = r.ranks[Pair{Left: left, Right: right}]
	return rank, ok
}

// Len returns the number of merge rules.
func (r *Ranks) Len() int { return len(r.pairs) }

// Pairs returns the rules in rank order.
func (r *Ranks) Pairs() []Pair { return append([]Pair(nil), r.pairs...) }

// Apply merges word until no adjacent pair has a rule or a single symbol
// remains. Each round picks the lowest-ranked adjacent pair and replaces all of
// its non-overlapping occurrences, scanning left to right. word is not modified.
func (r *Ranks) Apply(word []string) []string {
	if len(word) < 2 {
		return append([]string(nil), word...)
	}

	cur := append([]string(nil), word...)
	next := make([]string, 0, len(word))

	for len(cur) > 1 {
		best, ok := r.lowestPair(cur)
		if !ok {
			break
		}

		next = next[:0]
		for i := 0; i < len(cur); {
			if i+1 < len(cur) && cur[i] == best.Left && cur[i+1] == best.Right {
				next = append(next, best.Left+best.Right)
				i += 2
				continue
			}
			next = append(next, cur[i])
			i++
		}

		cur, next = next, cur
	}

	return append([]string(nil), cur...)
}

func (r *Ranks) lowestPair(word []string) (Pair, bool) {
	var (
		best     Pair
		bestRank = -1
	)

	for i := 0; i+1 < len(word); i++ {
		rank, ok := r.Rank(word[i], word[i+1])
		if ok && (bestRank < 0 || rank < bestRank) {
			best = Pair{Left: word[i], Right: word[i+1]}
			bestRank = rank
		}
	}

	return best, bestRank >= 0
}
