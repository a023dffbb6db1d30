// Package reconcile compares a desired Remote Management configuration
// against the host's current state and applies the difference.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/macos-ard-tool/internal/ard"
	"github.com/haasonsaas/macos-ard-tool/pkg/naprivs"
)

// Service is the Remote Management surface the engine reconciles against.
// *ard.Client satisfies it.
type Service interface {
	Active(ctx context.Context) (bool, error)
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	Preferences() (*ard.Preferences, error)
	WritePreferences(prefs *ard.Preferences) error
	VNCPassword() (string, error)
	SetVNCPassword(password string) error
	UserPrivileges(ctx context.Context, username string) (naprivs.Privileges, error)
	SetUserPrivileges(ctx context.Context, username string, privs naprivs.Privileges) error
}

// Change records one setting that differs from the desired state.
type Change struct {
	Key string `json:"key"`
	Old any    `json:"old"`
	New any    `json:"new"`
}

// UserChange records a privilege difference for one user.
type UserChange struct {
	Username string   `json:"username"`
	Old      []string `json:"old"`
	New      []string `json:"new"`
}

// UserFailure records a user that could not be reconciled. Failures do not
// abort the plan: the remaining users and service settings still converge.
type UserFailure struct {
	Username string `json:"username"`
	Comment  string `json:"comment"`
}

// Plan is the set of changes required to reach the desired state.
type Plan struct {
	Service  []Change      `json:"service,omitempty"`
	Users    []UserChange  `json:"users,omitempty"`
	Failures []UserFailure `json:"failures,omitempty"`
}

// Empty reports whether the host already matches the desired state. A plan
// with only failures is empty: there is nothing to apply.
func (p *Plan) Empty() bool {
	return len(p.Service) == 0 && len(p.Users) == 0
}

// Engine plans and applies desired-state documents.
type Engine struct {
	svc Service
}

func NewEngine(svc Service) *Engine {
	return &Engine{svc: svc}
}

// Plan computes the changes needed without touching the host.
func (e *Engine) Plan(ctx context.Context, cfg *Config) (*Plan, error) {
	plan := &Plan{}

	if cfg.Service != nil {
		if err := e.planService(ctx, cfg.Service, plan); err != nil {
			return nil, err
		}
	}

	usernames := make([]string, 0, len(cfg.Users))
	for username := range cfg.Users {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)

	for _, username := range usernames {
		desired, err := desiredUserPrivs(cfg.Users[username])
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", username, err)
		}
		current, err := e.svc.UserPrivileges(ctx, username)
		if err != nil {
			var notFound *ard.UserNotFoundError
			if errors.As(err, &notFound) {
				plan.Failures = append(plan.Failures, UserFailure{
					Username: username,
					Comment:  fmt.Sprintf("cannot manage privileges for nonexistent user %s", username),
				})
				continue
			}
			return nil, err
		}
		if current.Equal(desired) {
			continue
		}
		plan.Users = append(plan.Users, UserChange{
			Username: username,
			Old:      current.Names(),
			New:      desired.Names(),
		})
	}

	return plan, nil
}

func (e *Engine) planService(ctx context.Context, desired *ServiceConfig, plan *Plan) error {
	active, err := e.svc.Active(ctx)
	if err != nil {
		return err
	}
	if desired.Enabled != nil && *desired.Enabled != active {
		plan.Service = append(plan.Service, Change{Key: "enabled", Old: active, New: *desired.Enabled})
	}

	prefs, err := e.svc.Preferences()
	if err != nil {
		return err
	}

	if desired.AllUsersPrivs != nil {
		wantPrivs, err := parsePrivList(*desired.AllUsersPrivs)
		if err != nil {
			return err
		}
		wantPrivs = withObserveDefault(wantPrivs)
		current, err := prefs.AllUsersPrivileges()
		if err != nil {
			return err
		}
		if !current.Equal(wantPrivs) {
			plan.Service = append(plan.Service, Change{
				Key: "all_users_privs",
				Old: current.Names(),
				New: wantPrivs.Names(),
			})
		}
	}

	if desired.VNCPassword != nil {
		current, err := e.svc.VNCPassword()
		if err != nil {
			return err
		}
		if current != *desired.VNCPassword {
			plan.Service = append(plan.Service, Change{Key: "vnc_password", Old: redact(current), New: redact(*desired.VNCPassword)})
		}
	}

	if desired.DirectoryGroups != nil && !sameSet(prefs.DirectoryGroups, desired.DirectoryGroups) {
		plan.Service = append(plan.Service, Change{
			Key: "directory_groups",
			Old: prefs.DirectoryGroups,
			New: desired.DirectoryGroups,
		})
	}

	for _, flag := range []struct {
		key     string
		desired *bool
		current bool
	}{
		{"allow_all_users", desired.AllowAllUsers, prefs.AllLocalUsers},
		{"enable_menu_extra", desired.EnableMenuExtra, prefs.LoadMenuExtra},
		{"enable_dir_logins", desired.EnableDirLogins, prefs.DirectoryGroupLogins},
		{"enable_legacy_vnc", desired.EnableLegacyVNC, prefs.LegacyVNCEnabled},
		{"allow_vnc_requests", desired.AllowVNCRequests, prefs.ScreenSharingRequests},
		{"allow_wbem_requests", desired.AllowWBEMRequests, prefs.WBEMIncomingAccess},
	} {
		if flag.desired != nil && *flag.desired != flag.current {
			plan.Service = append(plan.Service, Change{Key: flag.key, Old: flag.current, New: *flag.desired})
		}
	}

	return nil
}

// Result reports what Apply did.
type Result struct {
	Plan    *Plan  `json:"plan"`
	Comment string `json:"comment"`
}

// Apply plans against the current state and executes every change.
// Preference-backed settings are written in a single pass; service
// activation happens last so new settings take effect under the restarted
// agent.
func (e *Engine) Apply(ctx context.Context, cfg *Config) (*Result, error) {
	plan, err := e.Plan(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if plan.Empty() {
		return &Result{Plan: plan, Comment: withFailures("no changes required", plan)}, nil
	}

	changed := map[string]bool{}
	for _, change := range plan.Service {
		changed[change.Key] = true
	}

	if changed["vnc_password"] {
		if err := e.svc.SetVNCPassword(*cfg.Service.VNCPassword); err != nil {
			return nil, err
		}
	}

	if err := e.applyPreferences(cfg.Service, changed); err != nil {
		return nil, err
	}

	for _, change := range plan.Users {
		desired, err := desiredUserPrivs(cfg.Users[change.Username])
		if err != nil {
			return nil, err
		}
		if err := e.svc.SetUserPrivileges(ctx, change.Username, desired); err != nil {
			return nil, err
		}
	}

	comment := fmt.Sprintf("applied %d change(s)", len(plan.Service)+len(plan.Users))
	if changed["enabled"] {
		if *cfg.Service.Enabled {
			if err := e.svc.Activate(ctx); err != nil {
				return nil, err
			}
			comment = "remote management enabled"
		} else {
			if err := e.svc.Deactivate(ctx); err != nil {
				return nil, err
			}
			comment = "remote management disabled"
		}
	}

	return &Result{Plan: plan, Comment: withFailures(comment, plan)}, nil
}

// withFailures appends a failure note so skipped users are visible in the
// result, matching how a per-user failure does not block the rest of the
// run.
func withFailures(comment string, plan *Plan) string {
	if len(plan.Failures) == 0 {
		return comment
	}
	return fmt.Sprintf("%s; %d user(s) could not be managed", comment, len(plan.Failures))
}

func (e *Engine) applyPreferences(desired *ServiceConfig, changed map[string]bool) error {
	prefKeys := []string{
		"all_users_privs", "directory_groups", "allow_all_users",
		"enable_menu_extra", "enable_dir_logins", "enable_legacy_vnc",
		"allow_vnc_requests", "allow_wbem_requests",
	}
	dirty := false
	for _, key := range prefKeys {
		if changed[key] {
			dirty = true
		}
	}
	if !dirty {
		return nil
	}

	prefs, err := e.svc.Preferences()
	if err != nil {
		return err
	}

	if changed["all_users_privs"] {
		privs, err := parsePrivList(*desired.AllUsersPrivs)
		if err != nil {
			return err
		}
		prefs.AllLocalUsersPrivs = naprivs.Encode(withObserveDefault(privs)).String()
	}
	if changed["directory_groups"] {
		prefs.DirectoryGroups = desired.DirectoryGroups
	}
	if changed["allow_all_users"] {
		prefs.AllLocalUsers = *desired.AllowAllUsers
	}
	if changed["enable_menu_extra"] {
		prefs.LoadMenuExtra = *desired.EnableMenuExtra
	}
	if changed["enable_dir_logins"] {
		prefs.DirectoryGroupLogins = *desired.EnableDirLogins
	}
	if changed["enable_legacy_vnc"] {
		prefs.LegacyVNCEnabled = *desired.EnableLegacyVNC
	}
	if changed["allow_vnc_requests"] {
		prefs.ScreenSharingRequests = *desired.AllowVNCRequests
	}
	if changed["allow_wbem_requests"] {
		prefs.WBEMIncomingAccess = *desired.AllowWBEMRequests
	}

	return e.svc.WritePreferences(prefs)
}

// desiredUserPrivs parses a desired privilege list, defaulting the observe
// flag to hidden. Decoded current state always carries an observe flag, so
// the default keeps comparisons idempotent when the operator omits it.
func desiredUserPrivs(names []string) (naprivs.Privileges, error) {
	privs, err := naprivs.Parse(strings.Join(names, ","))
	if err != nil {
		return nil, err
	}
	return withObserveDefault(privs), nil
}

func withObserveDefault(privs naprivs.Privileges) naprivs.Privileges {
	if privs[naprivs.ObserveNotified] || privs[naprivs.ObserveHidden] {
		return privs
	}
	out := naprivs.Set(naprivs.ObserveHidden)
	for name := range privs {
		out[name] = true
	}
	return out
}

// redact hides password values in plans while still showing whether a value
// is set.
func redact(password string) string {
	if password == "" {
		return ""
	}
	return "********"
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}
