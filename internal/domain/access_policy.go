package domain

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Action names used by AccessPolicy. These are coarse permission classes
// (spec §4.6's table), not individual routes.
const (
	ActionViewDashboard     = "view_dashboard"
	ActionSearchPackages    = "search_packages"
	ActionRegisterPackage   = "register_package"
	ActionUpdatePackage     = "update_package_status"
	ActionChangeOwnPassword = "change_own_password"
	ActionManageRecipients  = "manage_recipients"
	ActionViewReports       = "view_reports"
	ActionManageOperators   = "manage_operators"
	ActionManageAdmins      = "manage_admins"
	ActionManageSuperAdmins = "manage_super_admins"
	ActionViewAuditLogs     = "view_audit_logs"
	ActionEditSettings      = "edit_settings"
)

// casbinModel is a role-based-access-control-with-hierarchy model: g encodes
// the super_admin > admin > operator lattice, p encodes the flat permission
// table from spec §4.6. Casbin answers the coarse "is this role allowed to
// perform this class of action" question; the field-level rules below it
// (self-modification, admin-can-only-touch-operator, role-change gating)
// don't fit a flat RBAC matrix and are evaluated in Go on top of it.
const casbinModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

// Decision is the outcome of an AccessPolicy check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Deny returns a Decision with a stable, non-revealing reason code.
func Deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Allow is the permissive Decision.
var Allow = Decision{Allowed: true}

// AccessPolicy is the pure decision module of spec §4.6: given an actor and
// a target/operation, returns allow/deny with rationale.
type AccessPolicy struct {
	enforcer *casbin.Enforcer
}

// NewAccessPolicy builds the role lattice and permission table once at boot.
func NewAccessPolicy() (*AccessPolicy, error) {
	m, err := model.NewModelFromString(casbinModel)
	if err != nil {
		return nil, fmt.Errorf("access policy: parse model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("access policy: new enforcer: %w", err)
	}

	// Role hierarchy: super_admin inherits admin's grants, admin inherits operator's.
	if _, err := enforcer.AddGroupingPolicy(string(RoleAdmin), string(RoleOperator)); err != nil {
		return nil, err
	}
	if _, err := enforcer.AddGroupingPolicy(string(RoleSuperAdmin), string(RoleAdmin)); err != nil {
		return nil, err
	}

	operatorActions := []string{
		ActionViewDashboard, ActionSearchPackages, ActionRegisterPackage,
		ActionUpdatePackage, ActionChangeOwnPassword,
	}
	adminActions := []string{
		ActionManageRecipients, ActionViewReports, ActionManageOperators,
	}
	superAdminActions := []string{
		ActionManageAdmins, ActionManageSuperAdmins, ActionViewAuditLogs, ActionEditSettings,
	}

	for _, act := range operatorActions {
		if _, err := enforcer.AddPolicy(string(RoleOperator), act); err != nil {
			return nil, err
		}
	}
	for _, act := range adminActions {
		if _, err := enforcer.AddPolicy(string(RoleAdmin), act); err != nil {
			return nil, err
		}
	}
	for _, act := range superAdminActions {
		if _, err := enforcer.AddPolicy(string(RoleSuperAdmin), act); err != nil {
			return nil, err
		}
	}

	return &AccessPolicy{enforcer: enforcer}, nil
}

// CanPerform answers the coarse role/action question only (spec §4.6's
// table). It does not know about specific targets; see CanActOn/CanChangeRole
// for the field-level rules layered on top.
func (p *AccessPolicy) CanPerform(role Role, action string) Decision {
	if p == nil || p.enforcer == nil {
		return Deny("access_policy_not_configured")
	}
	ok, err := p.enforcer.Enforce(string(role), action)
	if err != nil || !ok {
		return Deny("not_permitted")
	}
	return Allow
}

// CanActOn applies spec §4.6's additional field-level rules: an admin may
// only act on operator targets; super_admin may act on anyone; actors may
// never strip their own ability to recover.
func (p *AccessPolicy) CanActOn(actorID string, actorRole Role, targetID string, targetRole Role) Decision {
	if actorID == targetID {
		return Deny("self_modification_not_permitted")
	}
	switch actorRole {
	case RoleSuperAdmin:
		return Allow
	case RoleAdmin:
		if targetRole == RoleOperator {
			return Allow
		}
		return Deny("not_permitted")
	default:
		return Deny("not_permitted")
	}
}

// CanChangeRole implements spec §4.6: "changing a user's role is allowed
// only for super_admin", and never onto/away-from oneself in a way that
// removes recovery ability.
func (p *AccessPolicy) CanChangeRole(actorID string, actorRole Role, targetID string) Decision {
	if actorID == targetID {
		return Deny("self_role_change_not_permitted")
	}
	if actorRole != RoleSuperAdmin {
		return Deny("not_permitted")
	}
	return Allow
}

// CanDeactivate implements spec §4.6's no-self-deactivation rule, layered on
// CanActOn's scoping.
func (p *AccessPolicy) CanDeactivate(actorID string, actorRole Role, targetID string, targetRole Role) Decision {
	if actorID == targetID {
		return Deny("self_deactivation_not_permitted")
	}
	return p.CanActOn(actorID, actorRole, targetID, targetRole)
}
