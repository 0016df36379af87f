package dag

// Extractor is a pure function applied to an upstream node's value
// before it is bound to a downstream kwarg.
type Extractor func(any) (any, error)

// Edge is a directed, keyword-named arc from one node to another. A
// pair of nodes may carry several edges as long as each has a distinct
// KwargName among the target's in-edges.
type Edge struct {
	From      *Node
	To        *Node
	KwargName string
	Loop      bool
	Extractor Extractor
}

func (e Edge) extract(v any) (any, error) {
	if e.Extractor == nil {
		return v, nil
	}
	return e.Extractor(v)
}
