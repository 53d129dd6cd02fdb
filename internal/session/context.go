package session

import "context"

type sourceKey struct{}

// Source identifies the front-end a request arrived on
type Source struct {
	Transport string
	RequestID string
}

// WithSource attaches request origin details that end up in the audit trail
func WithSource(ctx context.Context, transport, requestID string) context.Context {
	return context.WithValue(ctx, sourceKey{}, Source{Transport: transport, RequestID: requestID})
}

// SourceFrom returns the request origin stored in ctx
func SourceFrom(ctx context.Context) Source {
	src, _ := ctx.Value(sourceKey{}).(Source)
	return src
}
