package leave

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// LEAVE TYPE REGISTRY
// =============================================================================

// DefaultColor is used when a leave type is created without one.
const DefaultColor = "#3b82f6"

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Registry manages leave types and the system config map.
type Registry struct {
	store Store
	now   func() time.Time
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// LeaveTypeInput describes a new leave type.
type LeaveTypeInput struct {
	Name                  string
	Color                 string
	DefaultMonthlyAccrual decimal.NullDecimal
}

// LeaveTypeUpdate is a partial update; nil fields are left unchanged.
type LeaveTypeUpdate struct {
	Name                  *string
	Color                 *string
	DefaultMonthlyAccrual *decimal.NullDecimal
	IsActive              *bool
}

// CreateLeaveType adds an active leave type. Names are unique.
func (r *Registry) CreateLeaveType(ctx context.Context, actor *Employee, in LeaveTypeInput) (*LeaveType, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	return r.createLeaveType(ctx, in)
}

func (r *Registry) createLeaveType(ctx context.Context, in LeaveTypeInput) (*LeaveType, error) {
	now := r.now().UTC()
	lt := LeaveType{
		ID:                    LeaveTypeID(generic.NewID()),
		Name:                  strings.TrimSpace(in.Name),
		Color:                 strings.TrimSpace(in.Color),
		IsActive:              true,
		DefaultMonthlyAccrual: in.DefaultMonthlyAccrual,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if lt.Color == "" {
		lt.Color = DefaultColor
	}
	if err := validateLeaveType(lt); err != nil {
		return nil, err
	}
	if err := r.store.CreateLeaveType(ctx, lt); err != nil {
		if generic.IsKind(err, generic.KindDuplicateKey) {
			return nil, generic.Wrap(generic.KindDuplicateKey, "Leave type with this name already exists", err)
		}
		return nil, err
	}
	return &lt, nil
}

// UpdateLeaveType applies a partial update. Deactivating a type hides it
// from balances and new requests without touching existing requests.
func (r *Registry) UpdateLeaveType(ctx context.Context, actor *Employee, id LeaveTypeID, upd LeaveTypeUpdate) (*LeaveType, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}

	lt, err := r.store.GetLeaveType(ctx, id)
	if err != nil {
		if generic.IsNotFound(err) {
			return nil, generic.E(generic.KindNotFound, "Leave type not found")
		}
		return nil, err
	}
	if upd.Name != nil {
		lt.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Color != nil {
		lt.Color = strings.TrimSpace(*upd.Color)
	}
	if upd.DefaultMonthlyAccrual != nil {
		lt.DefaultMonthlyAccrual = *upd.DefaultMonthlyAccrual
	}
	if upd.IsActive != nil {
		lt.IsActive = *upd.IsActive
	}
	if err := validateLeaveType(*lt); err != nil {
		return nil, err
	}
	lt.UpdatedAt = r.now().UTC()

	if err := r.store.UpdateLeaveType(ctx, *lt); err != nil {
		if generic.IsKind(err, generic.KindDuplicateKey) {
			return nil, generic.Wrap(generic.KindDuplicateKey, "Leave type with this name already exists", err)
		}
		return nil, err
	}
	return lt, nil
}

// ListLeaveTypes returns every leave type, active or not, sorted by name.
func (r *Registry) ListLeaveTypes(ctx context.Context, actor *Employee) ([]LeaveType, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	return r.store.ListLeaveTypes(ctx, false)
}

// ActiveLeaveTypes returns the types employees may request, sorted by name.
func (r *Registry) ActiveLeaveTypes(ctx context.Context) ([]LeaveType, error) {
	return r.store.ListLeaveTypes(ctx, true)
}

func validateLeaveType(lt LeaveType) error {
	if lt.Name == "" {
		return generic.E(generic.KindValidation, "Name is required")
	}
	if !colorPattern.MatchString(lt.Color) {
		return generic.E(generic.KindValidation, "Invalid color format")
	}
	if lt.DefaultMonthlyAccrual.Valid && lt.DefaultMonthlyAccrual.Decimal.IsNegative() {
		return generic.E(generic.KindValidation, "Accrual must be non-negative")
	}
	return nil
}

// =============================================================================
// SYSTEM CONFIG
// =============================================================================

// SystemConfig returns every config key and value.
func (r *Registry) SystemConfig(ctx context.Context, actor *Employee) (map[string]string, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	return r.store.GetConfig(ctx)
}

// UpdateSystemConfig upserts one key.
func (r *Registry) UpdateSystemConfig(ctx context.Context, actor *Employee, key, value string) error {
	if err := RequireAdmin(actor); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return generic.E(generic.KindValidation, "Key is required")
	}
	if key == ConfigDefaultMonthlyAccrual {
		rate, err := generic.ParseDays(value)
		if err != nil || rate.IsNegative() {
			return generic.E(generic.KindValidation, "Accrual must be a non-negative number")
		}
		value = rate.String()
	}
	return r.store.SetConfigValue(ctx, key, value)
}
