package invoke

import "context"

type analysisIDKey struct{}
type userIDKey struct{}

// WithAnalysisID tags the context so usage records can reference the run.
func WithAnalysisID(ctx context.Context, analysisID string) context.Context {
	return context.WithValue(ctx, analysisIDKey{}, analysisID)
}

// AnalysisIDFromContext returns the analysis ID set by WithAnalysisID, if any.
func AnalysisIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(analysisIDKey{}).(string)
	return id
}

// WithUserID tags the context with the calling user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the user ID set by WithUserID, if any.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
