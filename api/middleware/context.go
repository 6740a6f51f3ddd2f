package middleware

import "context"

// Caller is the authenticated principal attached by Auth.
type Caller struct {
	UserID string
	Role   string
	Email  string
}

type callerKey struct{}

// CallerFromContext returns the zero Caller for anonymous requests.
func CallerFromContext(ctx context.Context) Caller {
	if ctx == nil {
		return Caller{}
	}
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, c)
}

func UserIDFromContext(ctx context.Context) string { return CallerFromContext(ctx).UserID }

func RoleFromContext(ctx context.Context) string { return CallerFromContext(ctx).Role }

func EmailFromContext(ctx context.Context) string { return CallerFromContext(ctx).Email }

// WithUserID, WithRole and WithEmail amend one field of the current caller.
// Handler tests use them to fake an authenticated request.
func WithUserID(ctx context.Context, userID string) context.Context {
	c := CallerFromContext(ctx)
	c.UserID = userID
	return WithCaller(ctx, c)
}

func WithRole(ctx context.Context, role string) context.Context {
	c := CallerFromContext(ctx)
	c.Role = role
	return WithCaller(ctx, c)
}

func WithEmail(ctx context.Context, email string) context.Context {
	c := CallerFromContext(ctx)
	c.Email = email
	return WithCaller(ctx, c)
}
