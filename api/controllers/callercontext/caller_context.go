package callercontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kentramx/kentramx-sub001/api/middleware"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

// ResolveUserID extracts the authenticated user from the request context.
func ResolveUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// ResolveAdminID is ResolveUserID for admin-only routes.
func ResolveAdminID(r *http.Request) (uuid.UUID, error) {
	id, err := ResolveUserID(r)
	if err != nil {
		return uuid.Nil, err
	}
	if !middleware.IsAdmin(r) {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	return id, nil
}
