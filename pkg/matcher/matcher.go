// Package matcher resolves a free-text store token, usually taken from a
// campaign title, to one of the known store entities.
//
// Tiers are tried in order and the first hit wins:
//
//  1. Exact: case-insensitive equality with the display name.
//  2. City and number: a token of two or more words is read as
//     "<city> <number>" and compared with names shaped
//     "<city> - loja <number>".
//  3. City only: a single-word token is compared with the first word of
//     each display name.
//
// A token that names a number never falls through to the city-only tier.
package matcher

import (
	"strings"

	"github.com/agentstation/crmsync/pkg/records"
)

// Tier names the tier that produced a match.
type Tier int

// Tiers.
const (
	TierNone Tier = iota
	TierExact
	TierCityNumber
	TierCityOnly
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierCityNumber:
		return "city_number"
	case TierCityOnly:
		return "city_only"
	default:
		return "none"
	}
}

// numberedWord is the fixed third word of a numbered store name.
const numberedWord = "loja"

type candidate struct {
	entity records.StoreEntity
	words  []string // folded display name words
}

// Index holds candidates prepared for repeated matching. It is read-only
// after construction and safe for concurrent use.
type Index struct {
	candidates []candidate
}

// NewIndex prepares stores for matching. Order is preserved and decides
// ties.
func NewIndex(stores []records.StoreEntity) *Index {
	idx := &Index{candidates: make([]candidate, 0, len(stores))}
	for _, s := range stores {
		idx.candidates = append(idx.candidates, candidate{
			entity: s,
			words:  strings.Fields(Fold(s.Name)),
		})
	}
	return idx
}

// Len returns the number of candidates.
func (idx *Index) Len() int {
	return len(idx.candidates)
}

// Match returns the store token resolves to, or nil and TierNone.
func (idx *Index) Match(token string) (*records.StoreEntity, Tier) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, TierNone
	}

	for i := range idx.candidates {
		if strings.EqualFold(token, strings.TrimSpace(idx.candidates[i].entity.Name)) {
			return idx.hit(i), TierExact
		}
	}

	words := strings.Fields(Fold(token))
	switch {
	case len(words) >= 2:
		city, number := words[0], words[1]
		for i, c := range idx.candidates {
			if isNumbered(c.words) && c.words[0] == city && c.words[3] == number {
				return idx.hit(i), TierCityNumber
			}
		}
	case len(words) == 1:
		for i, c := range idx.candidates {
			if len(c.words) > 0 && c.words[0] == words[0] {
				return idx.hit(i), TierCityOnly
			}
		}
	}
	return nil, TierNone
}

func (idx *Index) hit(i int) *records.StoreEntity {
	e := idx.candidates[i].entity
	return &e
}

// isNumbered reports whether words spell "<city> - loja <number>".
func isNumbered(words []string) bool {
	return len(words) == 4 && words[1] == "-" && words[2] == numberedWord
}

// Match resolves token against candidates without keeping an Index.
func Match(token string, candidates []records.StoreEntity) (*records.StoreEntity, Tier) {
	return NewIndex(candidates).Match(token)
}
