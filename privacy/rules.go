package privacy

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/syssam/orm"
)

// Viewer is the principal on whose behalf changes are saved.
type Viewer interface {
	GetID() string
	GetRoles() []string
	// GetTenantID is empty outside multi-tenant setups.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer attaches the viewer to ctx.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext returns the attached viewer, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a Viewer holding its values.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

func (v *SimpleViewer) GetID() string { return v.UserID }

func (v *SimpleViewer) GetRoles() []string { return v.Roles }

func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer rejects changes saved without a viewer.
//
//	privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.AlwaysDenyRule(),
//	}
func DenyIfNoViewer() Rule {
	return ContextRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("orm/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole accepts changes of viewers with the role.
func HasRole(role string) Rule {
	return HasAnyRole(role)
}

// HasAnyRole accepts changes of viewers with one of the roles.
func HasAnyRole(roles ...string) Rule {
	return ContextRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		viewerRoles := viewer.GetRoles()
		for _, role := range roles {
			if slices.Contains(viewerRoles, role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner accepts changes whose column value, once written, is the
// viewer ID.
//
//	privacy.Policy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.IsOwner("user_id"),
//	    privacy.AlwaysDenyRule(),
//	}
func IsOwner(column string) Rule {
	return RuleFunc(func(ctx context.Context, c orm.Change) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		value, ok := c.Value(column)
		if !ok || value == nil {
			return Skip
		}
		if idString(value) == viewer.GetID() {
			return Allow
		}
		return Skip
	})
}

// TenantRule accepts changes whose column holds the viewer tenant and
// rejects those holding another one.
func TenantRule(column string) Rule {
	return RuleFunc(func(ctx context.Context, c orm.Change) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		tenant := viewer.GetTenantID()
		if tenant == "" {
			return Skip
		}
		value, ok := c.Value(column)
		if !ok {
			return Skip
		}
		if idString(value) == tenant {
			return Allow
		}
		return Denyf("orm/privacy: tenant mismatch on %s", c.EntityName())
	})
}

func idString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
