// Package admin manages the role catalog at runtime: operators can inspect
// the active role set and install a replacement snapshot without a restart.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"opsgate/internal/authz/ports"
	id "opsgate/pkg/domain"
	dErrors "opsgate/pkg/domain-errors"
	"opsgate/pkg/platform/audit"
	strutil "opsgate/pkg/platform/strings"
	"opsgate/pkg/requestcontext"
)

//go:generate mockgen -source=admin.go -destination=mocks/mocks.go -package=mocks Catalog,AuditPublisher

// Catalog is the mutable view of the role catalog the admin service manages.
type Catalog interface {
	Lookup(name string) (ports.Role, bool)
	Replace(roles []ports.Role)
	Names() []string
}

// AuditPublisher records catalog changes for compliance review.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// RoleDefinition is the operator-facing shape of one role.
type RoleDefinition struct {
	Name        string   `json:"name"`
	Level       int      `json:"level"`
	Permissions []string `json:"permissions"`
}

// Service validates and applies catalog updates.
type Service struct {
	catalog        Catalog
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

// WithLogger attaches a logger for change reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditPublisher enables audit emission on catalog changes.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

func New(catalog Catalog, opts ...Option) (*Service, error) {
	if catalog == nil {
		return nil, errors.New("role catalog is required")
	}
	s := &Service{
		catalog: catalog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Roles returns the active role set ordered by level.
func (s *Service) Roles(ctx context.Context) []RoleDefinition {
	names := s.catalog.Names()
	defs := make([]RoleDefinition, 0, len(names))
	for _, name := range names {
		role, ok := s.catalog.Lookup(name)
		if !ok {
			continue
		}
		perms := make([]string, 0, len(role.Permissions))
		for action := range role.Permissions {
			perms = append(perms, action.String())
		}
		sort.Strings(perms)
		defs = append(defs, RoleDefinition{
			Name:        role.Name,
			Level:       role.Level,
			Permissions: perms,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Level < defs[j].Level })
	return defs
}

// ReplaceRoles validates defs and installs them as the complete new catalog.
// The swap is wholesale: a partial or inconsistent role set is rejected
// before any reader can observe it.
func (s *Service) ReplaceRoles(ctx context.Context, defs []RoleDefinition) error {
	if len(defs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "role set must not be empty")
	}

	seen := make(map[string]struct{}, len(defs))
	roles := make([]ports.Role, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return dErrors.New(dErrors.CodeValidation, "role name must not be empty")
		}
		if _, dup := seen[def.Name]; dup {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("duplicate role %q", def.Name))
		}
		seen[def.Name] = struct{}{}
		if def.Level <= 0 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("role %q: level must be positive", def.Name))
		}

		perms := make(map[id.Action]bool, len(def.Permissions))
		for _, raw := range strutil.DedupeAndTrim(def.Permissions) {
			action, err := id.ParseAction(raw)
			if err != nil {
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("role %q: invalid permission %q", def.Name, raw))
			}
			perms[action] = true
		}
		roles = append(roles, ports.Role{
			Name:        def.Name,
			Level:       def.Level,
			Permissions: perms,
		})
	}

	s.catalog.Replace(roles)

	s.logger.InfoContext(ctx, "role catalog replaced",
		"roles", len(roles),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.auditPublisher != nil {
		event := audit.Event{
			Category:  audit.CategoryCompliance,
			Name:      audit.EventRoleCatalogReplaced,
			Timestamp: requestcontext.Now(ctx),
			Action:    "replace_role_catalog",
			Decision:  "allow",
			Reason:    fmt.Sprintf("role catalog replaced with %d roles", len(roles)),
			RequestID: requestcontext.RequestID(ctx),
		}
		if err := s.auditPublisher.Emit(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "audit emission failed for catalog replace",
				"error", err,
			)
		}
	}
	return nil
}
