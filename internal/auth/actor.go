package auth

import (
	"context"

	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
	"docreview/review-portal/review-portal-backend/pkg/workflows"
)

// Actor is the caller identity supplied by the identity provider for a single call.
type Actor struct {
	UserID string         `json:"user_id"`
	Role   workflows.Role `json:"role"`
}

// Validate rejects anonymous actors.
func (a Actor) Validate() error {
	if a.UserID == "" {
		return apperrors.New(apperrors.CodePermissionDenied, "actor user id is required")
	}
	if a.Role == "" {
		return apperrors.New(apperrors.CodePermissionDenied, "actor role is required").With("user_id", a.UserID)
	}
	return nil
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor stored in ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
