package identity

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodtrace/internal/platform/metrics"
	dErrors "foodtrace/pkg/domain-errors"
	audit "foodtrace/pkg/platform/audit"
	auditmemory "foodtrace/pkg/platform/audit/store/memory"
	"foodtrace/pkg/requestcontext"
)

const testAdmin = "admin-1"

func newTestService(t *testing.T) (*Service, *auditmemory.Store) {
	t.Helper()
	events := auditmemory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := audit.NewRecorder(events, logger)
	m := metrics.NewWith(prometheus.NewRegistry())
	return NewService(NewMemoryStore(), testAdmin, &sync.Mutex{}, recorder, m, logger), events
}

func adminCtx() context.Context {
	return requestcontext.WithCaller(context.Background(), testAdmin)
}

func callerCtx(identity string) context.Context {
	return requestcontext.WithCaller(context.Background(), identity)
}

func farmerInput(identity string) RegisterInput {
	return RegisterInput{
		Identity:        identity,
		Role:            RoleFarmer,
		BusinessName:    "Green Acres",
		BusinessLicense: "LIC-" + identity,
		Location:        "Valley",
		Certifications:  []string{"organic"},
	}
}

func TestRegister(t *testing.T) {
	t.Run("assigns registration and activity timestamps from the request clock", func(t *testing.T) {
		svc, events := newTestService(t)
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		ctx := requestcontext.WithTime(adminCtx(), now)

		st, err := svc.Register(ctx, farmerInput("farmer-1"))
		require.NoError(t, err)

		assert.Equal(t, "farmer-1", st.Identity)
		assert.Equal(t, RoleFarmer, st.Role)
		assert.True(t, st.Active)
		assert.Equal(t, now, st.RegisteredAt)
		assert.Equal(t, now, st.LastActivity)

		logged, err := events.ListByEntity(ctx, audit.EntityStakeholder, "farmer-1")
		require.NoError(t, err)
		require.Len(t, logged, 1)
		assert.Equal(t, string(audit.EventStakeholderRegistered), logged[0].Action)
	})

	t.Run("rejects non-admin callers", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(callerCtx("farmer-1"), farmerInput("farmer-1"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("rejects empty required fields", func(t *testing.T) {
		svc, _ := newTestService(t)
		for _, mutate := range []func(*RegisterInput){
			func(in *RegisterInput) { in.Identity = "  " },
			func(in *RegisterInput) { in.BusinessName = "" },
			func(in *RegisterInput) { in.BusinessLicense = "" },
		} {
			in := farmerInput("farmer-1")
			mutate(&in)
			_, err := svc.Register(adminCtx(), in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})

	t.Run("rejects a second live registration for the same identity", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(adminCtx(), farmerInput("farmer-1"))
		require.NoError(t, err)

		in := farmerInput("farmer-1")
		in.BusinessLicense = "LIC-other"
		_, err = svc.Register(adminCtx(), in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("rejects a reused business license even after deactivation", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(adminCtx(), farmerInput("farmer-1"))
		require.NoError(t, err)
		_, err = svc.Deactivate(adminCtx(), "farmer-1")
		require.NoError(t, err)

		in := farmerInput("farmer-2")
		in.BusinessLicense = "LIC-farmer-1"
		_, err = svc.Register(adminCtx(), in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateKey))
	})

	t.Run("allows re-registration under a new role after deactivation", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(adminCtx(), farmerInput("acct-1"))
		require.NoError(t, err)
		_, err = svc.Deactivate(adminCtx(), "acct-1")
		require.NoError(t, err)

		in := RegisterInput{
			Identity:        "acct-1",
			Role:            RoleProcessor,
			BusinessName:    "Mill Works",
			BusinessLicense: "LIC-mill",
		}
		st, err := svc.Register(adminCtx(), in)
		require.NoError(t, err)
		assert.Equal(t, RoleProcessor, st.Role)

		ok, err := svc.IsAuthorized(context.Background(), "acct-1", RoleProcessor)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = svc.IsAuthorized(context.Background(), "acct-1", RoleFarmer)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestDeactivate(t *testing.T) {
	t.Run("soft-deletes the live registration", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(adminCtx(), farmerInput("farmer-1"))
		require.NoError(t, err)

		st, err := svc.Deactivate(adminCtx(), "farmer-1")
		require.NoError(t, err)
		assert.False(t, st.Active)

		_, err = svc.Get(context.Background(), "farmer-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		// The license remains resolvable for historical lookups.
		hist, err := svc.ByLicense(context.Background(), "LIC-farmer-1")
		require.NoError(t, err)
		assert.False(t, hist.Active)
	})

	t.Run("fails when no live registration exists", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Deactivate(adminCtx(), "ghost")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("rejects non-admin callers", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(adminCtx(), farmerInput("farmer-1"))
		require.NoError(t, err)
		_, err = svc.Deactivate(callerCtx("farmer-1"), "farmer-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestUpdateInfo(t *testing.T) {
	t.Run("stakeholders update their own info", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(adminCtx(), farmerInput("farmer-1"))
		require.NoError(t, err)

		st, err := svc.UpdateInfo(callerCtx("farmer-1"), "farmer-1", UpdateInput{
			BusinessName: "Greener Acres",
			Location:     "Hillside",
		})
		require.NoError(t, err)
		assert.Equal(t, "Greener Acres", st.BusinessName)
		assert.Equal(t, "Hillside", st.Location)
		assert.Equal(t, []string{"organic"}, st.Certifications)
	})

	t.Run("admin updates any registration", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(adminCtx(), farmerInput("farmer-1"))
		require.NoError(t, err)

		_, err = svc.UpdateInfo(adminCtx(), "farmer-1", UpdateInput{Location: "Plains"})
		require.NoError(t, err)
	})

	t.Run("other callers are rejected", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(adminCtx(), farmerInput("farmer-1"))
		require.NoError(t, err)

		_, err = svc.UpdateInfo(callerCtx("farmer-2"), "farmer-1", UpdateInput{Location: "Plains"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("fails for a deactivated registration", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Register(adminCtx(), farmerInput("farmer-1"))
		require.NoError(t, err)
		_, err = svc.Deactivate(adminCtx(), "farmer-1")
		require.NoError(t, err)

		_, err = svc.UpdateInfo(callerCtx("farmer-1"), "farmer-1", UpdateInput{Location: "Plains"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestTouchActivity(t *testing.T) {
	svc, _ := newTestService(t)
	registered := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := svc.Register(requestcontext.WithTime(adminCtx(), registered), farmerInput("farmer-1"))
	require.NoError(t, err)

	later := registered.Add(48 * time.Hour)
	require.NoError(t, svc.TouchActivity(requestcontext.WithTime(context.Background(), later), "farmer-1"))

	st, err := svc.Get(context.Background(), "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, later, st.LastActivity)
	assert.Equal(t, registered, st.RegisteredAt)

	err = svc.TouchActivity(context.Background(), "ghost")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestTransferAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.TransferAdmin(adminCtx(), "admin-2"))
	assert.Equal(t, "admin-2", svc.Admin())

	// The old admin loses its privileges immediately.
	_, err := svc.Register(adminCtx(), farmerInput("farmer-1"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = svc.Register(callerCtx("admin-2"), farmerInput("farmer-1"))
	require.NoError(t, err)
}

func TestQueries(t *testing.T) {
	svc, _ := newTestService(t)
	for _, in := range []RegisterInput{
		{Identity: "farmer-1", Role: RoleFarmer, BusinessName: "Green Acres", BusinessLicense: "L1"},
		{Identity: "farmer-2", Role: RoleFarmer, BusinessName: "Sunny Fields", BusinessLicense: "L2"},
		{Identity: "proc-1", Role: RoleProcessor, BusinessName: "Green Mill", BusinessLicense: "L3"},
	} {
		_, err := svc.Register(adminCtx(), in)
		require.NoError(t, err)
	}
	_, err := svc.Deactivate(adminCtx(), "farmer-2")
	require.NoError(t, err)

	t.Run("by role lists live registrations only", func(t *testing.T) {
		farmers, err := svc.ByRole(context.Background(), RoleFarmer)
		require.NoError(t, err)
		require.Len(t, farmers, 1)
		assert.Equal(t, "farmer-1", farmers[0].Identity)
	})

	t.Run("search by name is case sensitive over live registrations", func(t *testing.T) {
		hits, err := svc.SearchByName(context.Background(), "Green")
		require.NoError(t, err)
		assert.Len(t, hits, 2)

		hits, err = svc.SearchByName(context.Background(), "green")
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("unknown license is not found", func(t *testing.T) {
		_, err := svc.ByLicense(context.Background(), "L999")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("is-active-any reflects live standing in any role", func(t *testing.T) {
		active, err := svc.IsActiveAny(context.Background(), "proc-1")
		require.NoError(t, err)
		assert.True(t, active)

		active, err = svc.IsActiveAny(context.Background(), "farmer-2")
		require.NoError(t, err)
		assert.False(t, active)
	})
}
