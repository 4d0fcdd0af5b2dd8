// Package privacy provides authorization rules evaluated against every
// classified change before the persistence engine executes a statement.
//
// A policy is an ordered list of rules. Each rule returns a decision:
//
//   - Allow: grants the change and stops evaluation
//   - Deny: rejects the change and stops evaluation
//   - Skip (or nil): continues to the next rule
//
// If all rules skip, the change is allowed. A denied change aborts the
// whole save or remove call before any statement is issued:
//
//	manager := persist.NewManager(drv, registry,
//	    persist.WithPolicy(privacy.Policy{
//	        privacy.DenyIfNoViewer(),
//	        privacy.HasRole("admin"),
//	        privacy.OnEntity(privacy.IsOwner("owner_id"), "Document"),
//	        privacy.DenyOperationRule(orm.OpRemove),
//	    }),
//	)
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "42", Roles: []string{"editor"}})
//	err := manager.Save(ctx, doc)
//
// # Built-in Rules
//
//   - DenyIfNoViewer: denies if no viewer is present in context
//   - AlwaysAllowRule, AlwaysDenyRule: fixed decisions
//   - HasRole, HasAnyRole: allow viewers holding a role
//   - IsOwner: allows if a column of the change holds the viewer ID
//   - TenantRule: allows matching tenants, denies others
//   - OnOperation, OnEntity: restrict a rule to operations or entities
//   - AllowOperationRule, DenyOperationRule: decide by operation
//
// Policies combines several policies; an Allow from any of them ends the
// evaluation. DecisionContext attaches a precomputed decision to a context,
// bypassing Policies evaluation, for system tasks:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
package privacy
