package bpe

// Engine runs Ranks.Apply over byte-encoded spans, consulting a Cache first.
// It is safe for concurrent use when its Cache is.
type Engine struct {
	ranks *Ranks
	cache Cache
}

// NewEngine returns an Engine. A nil cache disables memoization.
func NewEngine(ranks *Ranks, cache Cache) *Engine {
	if cache == nil {
		cache = NopCache{}
	}
	return &Engine{ranks: ranks, cache: cache}
}

// Ranks returns the merge table the engine was built with.
func (e *Engine) Ranks() *Ranks { return e.ranks }

// Merge splits span into single-rune symbols and merges them. The returned
// symbols concatenate to span. The caller owns the returned slice.
func (e *Engine) Merge(span string) []string {
	if span == "" {
		return nil
	}

	if cached, ok := e.cache.Get(span); ok {
		return append([]string(nil), cached...)
	}

	symbols := make([]string, 0, len(span))
	for _, r := range span {
		symbols = append(symbols, string(r))
	}

	merged := e.ranks.Apply(symbols)
	e.cache.Add(span, merged)

	return append([]string(nil), merged...)
}

// CacheLen reports how many spans are memoized.
func (e *Engine) CacheLen() int { return e.cache.Len() }
