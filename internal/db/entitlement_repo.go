package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"simplenotes/internal/types"
)

// EntitlementRepo persists per-user entitlement records.
//
// Key invariants:
//   - billing_customer_ref is first-write-wins; SetCustomerRef never
//     overwrites a non-null value.
//   - SetStatusAndPlan is a full replace of both fields. The
//     entitlements_plan_derived check constraint rejects any write where
//     plan disagrees with subscription_status.
type EntitlementRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewEntitlementRepo creates a new EntitlementRepo backed by the given
// database connection (pool or transaction).
func NewEntitlementRepo(db DBTX, logger *slog.Logger) *EntitlementRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntitlementRepo{db: db, logger: logger}
}

const entitlementColumns = `user_id, billing_customer_ref, subscription_status, plan, created_at, updated_at`

func scanEntitlement(row pgx.Row) (*types.EntitlementRecord, error) {
	var (
		rec    types.EntitlementRecord
		ref    *string
		status *string
		plan   string
	)
	if err := row.Scan(&rec.UserID, &ref, &status, &plan, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.CustomerRef = ref
	if status != nil {
		s := types.SubscriptionStatus(*status)
		rec.SubscriptionStatus = &s
	}
	rec.Plan = types.Plan(plan)
	return &rec, nil
}

// Create inserts the initial {plan: free, subscription_status: null} record
// for a new user.
func (r *EntitlementRepo) Create(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO entitlements (user_id, plan, subscription_status, created_at, updated_at)
		 VALUES ($1, 'free', NULL, NOW(), NOW())`,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create entitlement record", err)
	}
	return nil
}

// Get returns the entitlement record for a user.
// Returns not_found_entitlement if the user has no record.
func (r *EntitlementRepo) Get(ctx context.Context, userID string) (*types.EntitlementRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1`,
		userID,
	)
	rec, err := scanEntitlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundEntitlement, "entitlement record not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve entitlement", err)
	}
	return rec, nil
}

// GetByCustomerRef returns the record owning a billing customer reference.
// Returns not_found_customer if no record matches.
func (r *EntitlementRepo) GetByCustomerRef(ctx context.Context, customerRef string) (*types.EntitlementRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE billing_customer_ref = $1`,
		customerRef,
	)
	rec, err := scanEntitlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundCustomer, "no entitlement record for billing customer", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve entitlement by customer", err)
	}
	return rec, nil
}

// SetCustomerRef stores ref for userID unless a reference is already set.
// It returns the effective reference after the call, which differs from ref
// when an earlier writer won.
func (r *EntitlementRepo) SetCustomerRef(ctx context.Context, userID, ref string) (string, error) {
	var effective string
	err := r.db.QueryRow(ctx,
		`UPDATE entitlements
		 SET billing_customer_ref = COALESCE(billing_customer_ref, $2),
		     updated_at = CASE WHEN billing_customer_ref IS NULL THEN NOW() ELSE updated_at END
		 WHERE user_id = $1
		 RETURNING billing_customer_ref`,
		userID,
		ref,
	).Scan(&effective)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundEntitlement, "entitlement record not found", nil)
		}
		if isUniqueViolation(err, "entitlements_customer_ref_key") {
			return "", types.NewAppError(types.ErrCodeConflictCustomerLinked, "billing customer already linked to another user", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to set billing customer reference", err)
	}

	if effective != ref {
		r.logger.Warn("billing customer reference already set; keeping existing",
			slog.String("user_id", userID),
			slog.String("existing_ref", effective),
			slog.String("rejected_ref", ref),
		)
	}
	return effective, nil
}

// SetStatusAndPlan replaces subscription_status and plan on the record owning
// customerRef. Returns false when no record matches.
func (r *EntitlementRepo) SetStatusAndPlan(ctx context.Context, customerRef string, status *types.SubscriptionStatus, plan types.Plan) (bool, error) {
	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE entitlements
		 SET subscription_status = $2,
		     plan = $3,
		     updated_at = NOW()
		 WHERE billing_customer_ref = $1`,
		customerRef,
		statusArg,
		string(plan),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update entitlement", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListStaleCustomerRefs returns customer references whose record was last
// reconciled before cutoff, oldest first.
func (r *EntitlementRepo) ListStaleCustomerRefs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT billing_customer_ref
		 FROM entitlements
		 WHERE billing_customer_ref IS NOT NULL
		   AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		cutoff,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stale entitlements", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan customer reference", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating entitlements", err)
	}
	return refs, nil
}
