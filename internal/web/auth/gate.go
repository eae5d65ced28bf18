package auth

import (
	"context"

	"github.com/conduit-lang/admin/internal/orm/crud"
	"github.com/conduit-lang/admin/internal/orm/errs"
	webcontext "github.com/conduit-lang/admin/internal/web/context"
)

// RoleGate returns an executor gate that admits callers carrying role. An
// empty role admits everyone.
func RoleGate(role string) crud.Gate {
	return func(ctx context.Context, entity string, op crud.Operation) error {
		if role == "" {
			return nil
		}
		p := webcontext.GetPrincipal(ctx)
		if p == nil {
			return &errs.ForbiddenError{Entity: entity, Operation: op.String(), Reason: "authentication required"}
		}
		if !p.HasRole(role) {
			return &errs.ForbiddenError{Entity: entity, Operation: op.String(), Reason: "requires role " + role}
		}
		return nil
	}
}
