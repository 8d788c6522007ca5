// Package vocab holds the bidirectional token↔id table.
//
// Lookups are deliberately asymmetric: an unknown token resolves to UnknownID
// on the encode side, while an unknown id on the decode side is an error.
package vocab

import (
	"errors"
	"fmt"
	"maps"
)

// UnknownID is returned by TokenToID for tokens that are not in the vocabulary.
const UnknownID = 0

// ErrUnknownID is wrapped by UnknownIDError.
var ErrUnknownID = errors.New("unknown token id")

// UnknownIDError reports an id with no token.
type UnknownIDError struct {
	ID int
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("vocab: %v %d", ErrUnknownID, e.ID)
}

func (e *UnknownIDError) Unwrap() error { return ErrUnknownID }

// Vocabulary is read-only after construction and safe for concurrent use.
type Vocabulary struct {
	ids    map[string]int
	tokens map[int]string
}

// New builds a Vocabulary from a token→id mapping. Ids must be non-negative
// and unique; they need not be contiguous. The input map is copied.
func New(entries map[string]int) (*Vocabulary, error) {
	v := &Vocabulary{
		ids:    make(map[string]int, len(entries)),
		tokens: make(map[int]string, len(entries)),
	}

	for tok, id := range entries {
		if id < 0 {
			return nil, fmt.Errorf("vocab: token %q has negative id %d", tok, id)
		}
		if prev, dup := v.tokens[id]; dup {
			return nil, fmt.Errorf("vocab: id %d assigned to both %q and %q", id, prev, tok)
		}
		v.ids[tok] = id
		v.tokens[id] = tok
	}

	return v, nil
}

// TokenToID returns the id of token, or UnknownID when token is absent.
// Absence is not an error here; see IDToToken for the opposite direction.
func (v *Vocabulary) TokenToID(token string) int {
	if id, ok := v.ids[token]; ok {
		return id
	}
	return UnknownID
}

// Lookup returns the id of token and whether it exists.
func (v *Vocabulary) Lookup(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// IDToToken returns the token for id. Unlike TokenToID, an unknown id is
// never substituted: it yields an *UnknownIDError.
func (v *Vocabulary) IDToToken(id int) (string, error) {
	tok, ok := v.tokens[id]
	if !ok {
		return "", &UnknownIDError{ID: id}
	}
	return tok, nil
}

// Size returns the number of entries.
func (v *Vocabulary) Size() int { return len(v.ids) }

// Map returns a copy of the token→id mapping.
func (v *Vocabulary) Map() map[string]int { return maps.Clone(v.ids) }
