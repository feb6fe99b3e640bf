package graph

import "context"

type nodeIDKey struct{}

// WithNodeID tags the context with the currently executing node. The engine
// sets this before every node execution; sink nodes use it to label their
// emissions.
func WithNodeID(ctx context.Context, id NodeID) context.Context {
	return context.WithValue(ctx, nodeIDKey{}, id)
}

// NodeIDFromContext returns the executing node id, or None.
func NodeIDFromContext(ctx context.Context) NodeID {
	if id, ok := ctx.Value(nodeIDKey{}).(NodeID); ok {
		return id
	}
	return None
}
