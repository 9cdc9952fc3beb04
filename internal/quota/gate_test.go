package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"simplenotes/internal/types"
)

// --- Mock implementations ---

type mockEntitlements struct {
	mock.Mock
}

func (m *mockEntitlements) Get(ctx context.Context, userID string) (*types.EntitlementRecord, error) {
	args := m.Called(ctx, userID)
	if rec := args.Get(0); rec != nil {
		return rec.(*types.EntitlementRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockNotes struct {
	mock.Mock
}

func (m *mockNotes) Count(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockNotes) Create(ctx context.Context, n *types.Note) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type mockSerialized struct {
	mock.Mock
	count int
}

func (m *mockSerialized) CreateChecked(ctx context.Context, n *types.Note, allow func(count int) bool) (bool, error) {
	args := m.Called(ctx, n)
	if err := args.Error(0); err != nil {
		return false, err
	}
	return allow(m.count), nil
}

type countingRecorder struct {
	denials map[string]int
}

func (r *countingRecorder) RecordQuotaDenial(plan string) {
	if r.denials == nil {
		r.denials = make(map[string]int)
	}
	r.denials[plan]++
}

// --- Helpers ---

func record(plan types.Plan) *types.EntitlementRecord {
	return &types.EntitlementRecord{UserID: "u1", Plan: plan}
}

func notFound() error {
	return types.NewAppError(types.ErrCodeNotFoundEntitlement, "entitlement record not found", nil)
}

func setupGate(opts ...Option) (*Gate, *mockEntitlements, *mockNotes) {
	ents := new(mockEntitlements)
	notes := new(mockNotes)
	return NewGate(ents, notes, NewStaticPlanRegistry(3), nil, opts...), ents, notes
}

// --- Plan registry ---

func TestStaticPlanRegistry(t *testing.T) {
	r := NewStaticPlanRegistry(3)
	assert.Equal(t, 3, r.GetLimits(types.PlanFree).MaxNotes)
	assert.True(t, r.GetLimits(types.PlanPro).Unlimited())
	assert.Equal(t, 3, r.GetLimits(types.Plan("enterprise")).MaxNotes, "unknown plans fall back to free")

	assert.Equal(t, DefaultFreeNoteLimit, NewStaticPlanRegistry(0).GetLimits(types.PlanFree).MaxNotes)
	assert.Equal(t, 10, NewStaticPlanRegistry(10).GetLimits(types.PlanFree).MaxNotes)
}

// --- CanCreateNote ---

func TestCanCreateNote_FreeBoundary(t *testing.T) {
	tests := []struct {
		count int
		want  bool
	}{
		{0, true},
		{1, true},
		{2, true},
		{3, false},
		{7, false},
	}
	for _, tt := range tests {
		gate, ents, notes := setupGate()
		ents.On("Get", mock.Anything, "u1").Return(record(types.PlanFree), nil)
		notes.On("Count", mock.Anything, "u1").Return(tt.count, nil)

		got, err := gate.CanCreateNote(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "count=%d", tt.count)
	}
}

func TestCanCreateNote_ProAlwaysAllowed(t *testing.T) {
	gate, ents, notes := setupGate()
	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanPro), nil)
	notes.On("Count", mock.Anything, "u1").Return(250, nil)

	got, err := gate.CanCreateNote(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCanCreateNote_ProIgnoresCountFailure(t *testing.T) {
	gate, ents, notes := setupGate()
	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanPro), nil)
	notes.On("Count", mock.Anything, "u1").Return(0, errors.New("count failed"))

	got, err := gate.CanCreateNote(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCanCreateNote_MissingRecordFailsClosed(t *testing.T) {
	gate, ents, notes := setupGate()
	ents.On("Get", mock.Anything, "u1").Return(nil, notFound())
	notes.On("Count", mock.Anything, "u1").Return(0, nil).Maybe()

	got, err := gate.CanCreateNote(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestCanCreateNote_PropagatesStoreErrors(t *testing.T) {
	dbErr := types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve entitlement", errors.New("conn reset"))

	gate, ents, notes := setupGate()
	ents.On("Get", mock.Anything, "u1").Return(nil, dbErr)
	notes.On("Count", mock.Anything, "u1").Return(0, nil).Maybe()

	got, err := gate.CanCreateNote(context.Background(), "u1")
	assert.False(t, got)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestCanCreateNote_FreeCountFailure(t *testing.T) {
	gate, ents, notes := setupGate()
	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanFree), nil)
	notes.On("Count", mock.Anything, "u1").Return(0, errors.New("count failed"))

	got, err := gate.CanCreateNote(context.Background(), "u1")
	assert.False(t, got)
	assert.EqualError(t, err, "count failed")
}

func TestCanCreateNote_UpgradeUnlocksWithoutDeleting(t *testing.T) {
	gate, ents, notes := setupGate()
	notes.On("Count", mock.Anything, "u1").Return(3, nil)

	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanFree), nil).Once()
	before, err := gate.CanCreateNote(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, before)

	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanPro), nil).Once()
	after, err := gate.CanCreateNote(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, after)

	notes.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// --- Usage ---

func TestUsage_Free(t *testing.T) {
	gate, ents, notes := setupGate()
	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanFree), nil)
	notes.On("Count", mock.Anything, "u1").Return(2, nil)

	usage, err := gate.Usage(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, types.PlanFree, usage.Plan)
	assert.Equal(t, 2, usage.Count)
	require.NotNil(t, usage.Limit)
	require.NotNil(t, usage.Remaining)
	assert.Equal(t, 3, *usage.Limit)
	assert.Equal(t, 1, *usage.Remaining)
	assert.True(t, usage.CanCreate)
}

func TestUsage_OverLimitClampsRemaining(t *testing.T) {
	gate, ents, notes := setupGate()
	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanFree), nil)
	notes.On("Count", mock.Anything, "u1").Return(5, nil)

	usage, err := gate.Usage(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, *usage.Remaining)
	assert.False(t, usage.CanCreate)
}

func TestUsage_ProHasNoLimit(t *testing.T) {
	gate, ents, notes := setupGate()
	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanPro), nil)
	notes.On("Count", mock.Anything, "u1").Return(40, nil)

	usage, err := gate.Usage(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, usage.Limit)
	assert.Nil(t, usage.Remaining)
	assert.True(t, usage.CanCreate)
}

// --- CreateNote ---

func TestCreateNote_ApproximateAllows(t *testing.T) {
	gate, ents, notes := setupGate()
	n := &types.Note{ID: "n1", UserID: "u1", Title: "t"}
	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanFree), nil)
	notes.On("Count", mock.Anything, "u1").Return(2, nil)
	notes.On("Create", mock.Anything, n).Return(nil)

	require.NoError(t, gate.CreateNote(context.Background(), n))
	notes.AssertExpectations(t)
}

func TestCreateNote_ApproximateDenies(t *testing.T) {
	rec := &countingRecorder{}
	gate, ents, notes := setupGate(WithDenialRecorder(rec))
	n := &types.Note{ID: "n1", UserID: "u1", Title: "t"}
	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanFree), nil)
	notes.On("Count", mock.Anything, "u1").Return(3, nil)

	err := gate.CreateNote(context.Background(), n)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeQuotaNoteLimit, appErr.Code)
	assert.Equal(t, 403, appErr.HTTPStatus())
	assert.Equal(t, 3, appErr.Details["limit"])
	assert.Equal(t, "free", appErr.Details["plan"])
	assert.Equal(t, 1, rec.denials["free"])
	notes.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateNote_MissingRecordIsGenericDenial(t *testing.T) {
	gate, ents, notes := setupGate()
	ents.On("Get", mock.Anything, "u1").Return(nil, notFound())
	notes.On("Count", mock.Anything, "u1").Return(0, nil).Maybe()

	err := gate.CreateNote(context.Background(), &types.Note{ID: "n1", UserID: "u1"})
	assert.Equal(t, types.ErrCodeQuotaNoteLimit, types.CodeOf(err))
}

func TestCreateNote_StrictUsesSerializedCreator(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		wantErr bool
	}{
		{"under limit", 2, false},
		{"at limit", 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strict := &mockSerialized{count: tt.count}
			gate, ents, notes := setupGate(WithStrictCreator(strict))
			n := &types.Note{ID: "n1", UserID: "u1"}
			ents.On("Get", mock.Anything, "u1").Return(record(types.PlanFree), nil)
			strict.On("CreateChecked", mock.Anything, n).Return(nil)

			err := gate.CreateNote(context.Background(), n)
			if tt.wantErr {
				assert.Equal(t, types.ErrCodeQuotaNoteLimit, types.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
			assert.True(t, gate.Strict())
			notes.AssertNotCalled(t, "Count", mock.Anything, mock.Anything)
			notes.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateNote_StrictProSkipsLock(t *testing.T) {
	strict := &mockSerialized{}
	gate, ents, notes := setupGate(WithStrictCreator(strict))
	n := &types.Note{ID: "n1", UserID: "u1"}
	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanPro), nil)
	notes.On("Create", mock.Anything, n).Return(nil)

	require.NoError(t, gate.CreateNote(context.Background(), n))
	strict.AssertNotCalled(t, "CreateChecked", mock.Anything, mock.Anything)
}

func TestCreateNote_StrictPropagatesTxError(t *testing.T) {
	strict := &mockSerialized{}
	gate, ents, _ := setupGate(WithStrictCreator(strict))
	n := &types.Note{ID: "n1", UserID: "u1"}
	ents.On("Get", mock.Anything, "u1").Return(record(types.PlanFree), nil)
	strict.On("CreateChecked", mock.Anything, n).Return(errors.New("begin transaction: refused"))

	err := gate.CreateNote(context.Background(), n)
	assert.EqualError(t, err, "begin transaction: refused")
}
