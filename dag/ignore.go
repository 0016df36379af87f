package dag

// IgnoreResult is the sentinel value a node callable returns to signal
// that it executed but that this branch should not become a parent for
// downstream work. The value is still stored in the scope under the
// node's key; it just never enters the live scope set returned to
// successors.
//
// IgnoreResult is a concrete type rather than a marker interface so
// that the executor recognizes it by a type assertion, not by sniffing
// arbitrary values.
type IgnoreResult struct {
	// Reason is an optional human-readable explanation for why the
	// branch was pruned.
	Reason string
	// Data carries optional diagnostic payload alongside Reason.
	Data any
}

// isIgnoreResult reports whether v is an IgnoreResult, by value or by
// pointer.
func isIgnoreResult(v any) bool {
	switch v.(type) {
	case IgnoreResult, *IgnoreResult:
		return true
	default:
		return false
	}
}
