package leave

import (
	"context"
	"strings"
	"time"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// ROLE CHECKS
// =============================================================================

// RequireAuth fails with Forbidden when there is no resolved caller.
func RequireAuth(actor *Employee) error {
	if actor == nil || actor.ID == "" {
		return generic.E(generic.KindForbidden, "Unauthorized")
	}
	return nil
}

// RequireAdmin fails with Forbidden unless the caller is an admin.
func RequireAdmin(actor *Employee) error {
	if err := RequireAuth(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return generic.E(generic.KindForbidden, "Forbidden: Admin access required")
	}
	return nil
}

// =============================================================================
// DIRECTORY - Maps verified identities to employees
// =============================================================================

// Identity is what the external identity provider vouches for.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Directory resolves the current user and manages roles.
type Directory struct {
	store Store
	now   func() time.Time
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store, now: time.Now}
}

// CurrentUser returns the employee for id, creating it on first sight.
//
// Lookup order is subject, then email. An employee found by email gets the
// new subject linked, which covers users who recreated their identity
// provider account. New employees always start with RoleEmployee.
func (d *Directory) CurrentUser(ctx context.Context, id Identity) (*Employee, error) {
	id.Subject = strings.TrimSpace(id.Subject)
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	id.Name = strings.TrimSpace(id.Name)
	if id.Subject == "" {
		return nil, generic.E(generic.KindForbidden, "Unauthorized")
	}

	emp, err := d.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return d.create(ctx, id)
	}
	return d.refresh(ctx, emp, id)
}

func (d *Directory) lookup(ctx context.Context, id Identity) (*Employee, error) {
	emp, err := d.store.FindEmployeeByClerkID(ctx, id.Subject)
	if err == nil {
		return emp, nil
	}
	if !generic.IsNotFound(err) {
		return nil, err
	}
	if id.Email == "" {
		return nil, nil
	}
	emp, err = d.store.FindEmployeeByEmail(ctx, id.Email)
	if err == nil {
		return emp, nil
	}
	if !generic.IsNotFound(err) {
		return nil, err
	}
	return nil, nil
}

func (d *Directory) create(ctx context.Context, id Identity) (*Employee, error) {
	now := d.now().UTC()
	email := id.Email
	if email == "" {
		email = "user-" + id.Subject + "@temp.com"
	}
	name := id.Name
	if name == "" {
		name = id.Email
	}
	if name == "" {
		name = "User"
	}

	emp := Employee{
		ID:        EmployeeID(generic.NewID()),
		ClerkID:   id.Subject,
		Name:      name,
		Email:     email,
		Role:      RoleEmployee,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := d.store.CreateEmployee(ctx, emp)
	if err == nil {
		return &emp, nil
	}
	if !generic.IsKind(err, generic.KindDuplicateKey) {
		return nil, err
	}

	// Lost a race with a concurrent first login.
	existing, lerr := d.lookup(ctx, Identity{Subject: id.Subject, Email: email})
	if lerr != nil {
		return nil, lerr
	}
	if existing == nil {
		return nil, err
	}
	return existing, nil
}

func (d *Directory) refresh(ctx context.Context, emp *Employee, id Identity) (*Employee, error) {
	updated := *emp
	updated.ClerkID = id.Subject
	if id.Email != "" {
		updated.Email = id.Email
	}
	if id.Name != "" {
		updated.Name = id.Name
	}
	if updated.ClerkID == emp.ClerkID && updated.Email == emp.Email && updated.Name == emp.Name {
		return emp, nil
	}

	updated.UpdatedAt = d.now().UTC()
	if err := d.store.UpdateEmployee(ctx, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// SetRole changes the role of the employee with the given email.
func (d *Directory) SetRole(ctx context.Context, email string, role Role) (*Employee, error) {
	if !role.Valid() {
		return nil, generic.Errorf(generic.KindValidation, "Invalid role %q", role)
	}
	emp, err := d.store.FindEmployeeByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if generic.IsNotFound(err) {
			return nil, generic.E(generic.KindNotFound, "User not found")
		}
		return nil, err
	}
	if emp.Role == role {
		return emp, nil
	}
	emp.Role = role
	emp.UpdatedAt = d.now().UTC()
	if err := d.store.UpdateEmployee(ctx, *emp); err != nil {
		return nil, err
	}
	return emp, nil
}
