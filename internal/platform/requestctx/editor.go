package requestctx

import "context"

// editorIDContextKey is the context key for authenticated editor identity.
type editorIDContextKey struct{}

// WithEditorID stores an editor identifier in context.
func WithEditorID(ctx context.Context, editorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, editorIDContextKey{}, editorID)
}

// EditorIDFromContext returns the editor identifier stored in context.
func EditorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(editorIDContextKey{}).(string)
	return value
}
