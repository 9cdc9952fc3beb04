package quota

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"simplenotes/internal/types"
)

// EntitlementReader reads the caller's entitlement record.
type EntitlementReader interface {
	Get(ctx context.Context, userID string) (*types.EntitlementRecord, error)
}

// NoteStore counts and inserts notes.
type NoteStore interface {
	Count(ctx context.Context, userID string) (int, error)
	Create(ctx context.Context, n *types.Note) error
}

// SerializedCreator inserts a note with the count check and insert
// serialized per user. Implemented by db.SerializedNoteCreator.
type SerializedCreator interface {
	CreateChecked(ctx context.Context, n *types.Note, allow func(count int) bool) (bool, error)
}

// DenialRecorder counts quota denials.
type DenialRecorder interface {
	RecordQuotaDenial(plan string)
}

// Gate authorizes note creation.
//
// By default the plan read, the count read and the insert are separate
// statements. Two concurrent creations by a free user can both observe a
// count below the limit and both succeed, so the limit may be exceeded by
// at most (concurrent requests - 1). Configure a SerializedCreator with
// WithStrictCreator to close that window.
type Gate struct {
	entitlements EntitlementReader
	notes        NoteStore
	plans        PlanRegistry
	strict       SerializedCreator
	recorder     DenialRecorder
	logger       *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithStrictCreator enables serialized count-then-insert for note creation.
func WithStrictCreator(c SerializedCreator) Option {
	return func(g *Gate) { g.strict = c }
}

// WithDenialRecorder reports each denial to r.
func WithDenialRecorder(r DenialRecorder) Option {
	return func(g *Gate) { g.recorder = r }
}

// NewGate creates a Gate. If plans is nil the default free limit is used.
func NewGate(entitlements EntitlementReader, notes NoteStore, plans PlanRegistry, logger *slog.Logger, opts ...Option) *Gate {
	if plans == nil {
		plans = NewStaticPlanRegistry(DefaultFreeNoteLimit)
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		entitlements: entitlements,
		notes:        notes,
		plans:        plans,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Strict reports whether note creation is serialized per user.
func (g *Gate) Strict() bool {
	return g.strict != nil
}

// snapshot is the pair of reads a quota decision is made from.
type snapshot struct {
	plan     types.Plan
	count    int
	countErr error
}

// read loads the plan and the note count concurrently. A count failure is
// kept on the snapshot so that unlimited plans are not denied by it.
func (g *Gate) read(ctx context.Context, userID string) (snapshot, error) {
	var (
		rec  *types.EntitlementRecord
		snap snapshot
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		rec, err = g.entitlements.Get(egCtx, userID)
		return err
	})
	eg.Go(func() error {
		snap.count, snap.countErr = g.notes.Count(egCtx, userID)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return snapshot{}, err
	}
	snap.plan = rec.Plan
	return snap, nil
}

// CanCreateNote reports whether userID may create one more note. It has no
// side effects and reserves nothing. A missing entitlement record denies.
func (g *Gate) CanCreateNote(ctx context.Context, userID string) (bool, error) {
	snap, err := g.read(ctx, userID)
	if err != nil {
		if types.CodeOf(err) == types.ErrCodeNotFoundEntitlement {
			return false, nil
		}
		return false, err
	}

	limits := g.plans.GetLimits(snap.plan)
	if limits.Unlimited() {
		return true, nil
	}
	if snap.countErr != nil {
		return false, snap.countErr
	}
	return snap.count < limits.MaxNotes, nil
}

// Usage summarizes userID's consumption of the note quota.
func (g *Gate) Usage(ctx context.Context, userID string) (*types.NoteUsage, error) {
	snap, err := g.read(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snap.countErr != nil {
		return nil, snap.countErr
	}

	usage := &types.NoteUsage{Plan: snap.plan, Count: snap.count, CanCreate: true}
	limits := g.plans.GetLimits(snap.plan)
	if !limits.Unlimited() {
		limit := limits.MaxNotes
		remaining := max(limit-snap.count, 0)
		usage.Limit = &limit
		usage.Remaining = &remaining
		usage.CanCreate = snap.count < limit
	}
	return usage, nil
}

// CreateNote inserts n if the owner's quota allows it, returning
// quota_note_limit_reached otherwise.
func (g *Gate) CreateNote(ctx context.Context, n *types.Note) error {
	if g.strict == nil {
		allowed, err := g.CanCreateNote(ctx, n.UserID)
		if err != nil {
			return err
		}
		if !allowed {
			return g.deny(ctx, n.UserID)
		}
		return g.notes.Create(ctx, n)
	}

	rec, err := g.entitlements.Get(ctx, n.UserID)
	if err != nil {
		if types.CodeOf(err) == types.ErrCodeNotFoundEntitlement {
			return g.deny(ctx, n.UserID)
		}
		return err
	}

	limits := g.plans.GetLimits(rec.Plan)
	if limits.Unlimited() {
		return g.notes.Create(ctx, n)
	}

	created, err := g.strict.CreateChecked(ctx, n, func(count int) bool {
		return count < limits.MaxNotes
	})
	if err != nil {
		return err
	}
	if !created {
		return g.denyPlan(ctx, n.UserID, rec.Plan)
	}
	return nil
}

// deny builds the denial for a user whose plan is unknown or free. A missing
// record is reported the same as a free user at the limit.
func (g *Gate) deny(ctx context.Context, userID string) error {
	return g.denyPlan(ctx, userID, types.PlanFree)
}

func (g *Gate) denyPlan(ctx context.Context, userID string, plan types.Plan) error {
	limit := g.plans.GetLimits(plan).MaxNotes
	if g.recorder != nil {
		g.recorder.RecordQuotaDenial(string(plan))
	}
	g.logger.InfoContext(ctx, "note creation denied by quota",
		"user_id", userID,
		"plan", string(plan),
		"limit", limit,
		"strict", g.Strict(),
	)
	return types.NewAppErrorWithDetails(
		types.ErrCodeQuotaNoteLimit,
		"Note limit reached for current plan",
		nil,
		map[string]any{
			"limit": limit,
			"plan":  string(plan),
		},
	)
}
