package reranker

import "context"

type queryKey struct{}

// ContextWithQuery attaches the raw query text for rerankers that score
// text rather than vectors.
func ContextWithQuery(ctx context.Context, query string) context.Context {
	return context.WithValue(ctx, queryKey{}, query)
}

// QueryFromContext returns the query stored by ContextWithQuery.
func QueryFromContext(ctx context.Context) (string, bool) {
	query, ok := ctx.Value(queryKey{}).(string)
	return query, ok
}
