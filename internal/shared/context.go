package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// CurrentUserID resolves the acting user from the request session.
// Returns ErrUnauthenticated when no user is bound to the session.
func CurrentUserID(ctx context.Context) (int64, error) {
	sess := SessionFromContext(ctx)
	if sess == nil || sess.User() <= 0 {
		return 0, ErrUnauthenticated
	}
	return sess.User(), nil
}
