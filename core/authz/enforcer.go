package authz

import (
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/pkg/errors"
)

// Objects
const (
	ObjProjects      = "projects"
	ObjSubmissions   = "submissions"
	ObjFeedback      = "feedback"
	ObjNotifications = "notifications"
	ObjProfile       = "profile"
	ObjUsers         = "users"
	ObjStats         = "stats"
)

// Actions
const (
	ActRead         = "read"
	ActCreate       = "create"
	ActUpdate       = "update"
	ActUpdateStatus = "update-status"
	ActDelete       = "delete"
)

var (
	//go:embed model.conf
	embeddedModel string

	//go:embed policy.csv
	embeddedPolicy string
)

// Enforcer decides whether a role may perform an action on an object.
// Ownership rules (supervisor-only, member-only...) are not its concern.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the Enforcer from the embedded model & policy.
func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, errors.Wrap(err, "loading casbin model")
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, errors.Wrap(err, "creating casbin enforcer")
	}
	if err = loadPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, errors.Wrap(err, "loading casbin policy")
	}
	return &Enforcer{enforcer: enforcer}, nil
}

// loadPolicy parses "p, sub, obj, act" & "g, sub, role" lines.
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch rule := parts[1:]; parts[0] {
		case "p":
			if len(rule) != 3 {
				return errors.Errorf("malformed policy line %q", line)
			}
			if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
				return errors.Wrapf(err, "adding policy %v", rule)
			}
		case "g":
			if len(rule) != 2 {
				return errors.Errorf("malformed grouping line %q", line)
			}
			if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
				return errors.Wrapf(err, "adding grouping policy %v", rule)
			}
		default:
			return errors.Errorf("unknown policy type %q", parts[0])
		}
	}
	return nil
}

// Allowed reports whether role may perform act on obj.
func (e *Enforcer) Allowed(role, obj, act string) (bool, error) {
	if role == "" {
		return false, nil
	}
	allowed, err := e.enforcer.Enforce(role, obj, act)
	if err != nil {
		return false, errors.Wrap(err, "enforcing policy")
	}
	return allowed, nil
}
