package product

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

	"foodtrace/internal/identity"
	"foodtrace/internal/market"
	"foodtrace/internal/platform/metrics"
	dErrors "foodtrace/pkg/domain-errors"
	audit "foodtrace/pkg/platform/audit"
	auditmemory "foodtrace/pkg/platform/audit/store/memory"
	"foodtrace/pkg/requestcontext"
)

// fakeRegistry authorizes by a fixed identity-to-role map.
type fakeRegistry struct {
	roles   map[string]identity.Role
	touched []string
}

func (f *fakeRegistry) IsAuthorized(_ context.Context, ident string, role identity.Role) (bool, error) {
	return f.roles[ident] == role, nil
}

func (f *fakeRegistry) TouchActivity(_ context.Context, ident string) error {
	f.touched = append(f.touched, ident)
	return nil
}

func chainRoles() *fakeRegistry {
	return &fakeRegistry{roles: map[string]identity.Role{
		"farmer-1": identity.RoleFarmer,
		"proc-1":   identity.RoleProcessor,
		"dist-1":   identity.RoleDistributor,
		"retail-1": identity.RoleRetailer,
	}}
}

func newTestService(t *testing.T, feed market.Feed) (*Service, *fakeRegistry, *auditmemory.Store) {
	t.Helper()
	registry := chainRoles()
	events := auditmemory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := audit.NewRecorder(events, logger)
	m := metrics.NewWith(prometheus.NewRegistry())
	svc := NewService(NewMemoryStore(), registry, feed, &sync.Mutex{}, recorder, m, logger)
	return svc, registry, events
}

func callerCtx(identity string) context.Context {
	return requestcontext.WithCaller(context.Background(), identity)
}

func steadyFeed() *market.StaticFeed {
	return &market.StaticFeed{Reading: market.Reading{
		Temperature: 18, Humidity: 55, Rainfall: 2, WindSpeed: 8, Price: 100,
		Timestamp: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
	}}
}

func createProduct(t *testing.T, svc *Service) Product {
	t.Helper()
	p, err := svc.Create(callerCtx("farmer-1"), CreateInput{
		Name:        "Organic Apples",
		BatchNumber: "B1",
		Data:        "harvested",
		Location:    "Valley",
	})
	require.NoError(t, err)
	return p
}

func advanceTo(t *testing.T, svc *Service, id uint64, target Stage) Product {
	t.Helper()
	callers := map[Stage]string{
		StageProcessing:   "proc-1",
		StageDistribution: "dist-1",
		StageRetail:       "retail-1",
	}
	var p Product
	for stage := StageProcessing; stage <= target; stage++ {
		var err error
		p, err = svc.Advance(callerCtx(callers[stage]), id, stage, "step data")
		require.NoError(t, err)
	}
	return p
}

func TestCreate(t *testing.T) {
	t.Run("records the farm stage with a market snapshot", func(t *testing.T) {
		svc, registry, events := newTestService(t, steadyFeed())
		p := createProduct(t, svc)

		assert.Equal(t, uint64(1), p.ID)
		assert.Equal(t, StageFarm, p.Stage)
		assert.Equal(t, "farmer-1", p.FarmerIdentity)
		assert.Equal(t, 100.0, p.EstimatedPrice)
		require.Len(t, p.Records, 1)
		assert.Equal(t, "farmer-1", p.Records[0].ActorIdentity)
		assert.Equal(t, HashData("harvested"), p.Records[0].DataHash)
		assert.Equal(t, 100.0, p.Records[0].MarketSnapshot.Price)

		assert.Equal(t, []string{"farmer-1"}, registry.touched)
		logged, err := events.ListByEntity(context.Background(), audit.EntityProduct, "1")
		require.NoError(t, err)
		require.Len(t, logged, 1)
		assert.Equal(t, string(audit.EventProductCreated), logged[0].Action)
	})

	t.Run("substitutes the fallback reading when the feed is down", func(t *testing.T) {
		svc, _, _ := newTestService(t, &market.StaticFeed{Err: context.DeadlineExceeded})
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		p, err := svc.Create(requestcontext.WithTime(callerCtx("farmer-1"), now), CreateInput{
			Name: "Organic Apples", BatchNumber: "B1", Data: "harvested",
		})
		require.NoError(t, err)
		assert.Equal(t, market.DefaultReading(now), p.Records[0].MarketSnapshot)
	})

	t.Run("only farmers may create", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		_, err := svc.Create(callerCtx("proc-1"), CreateInput{Name: "Apples", BatchNumber: "B1", Data: "d"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("batch numbers are never reused", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		createProduct(t, svc)
		_, err := svc.Create(callerCtx("farmer-1"), CreateInput{Name: "Pears", BatchNumber: "B1", Data: "d"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateKey))
	})

	t.Run("rejects empty name and batch", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		_, err := svc.Create(callerCtx("farmer-1"), CreateInput{BatchNumber: "B1", Data: "d"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		_, err = svc.Create(callerCtx("farmer-1"), CreateInput{Name: "Apples", Data: "d"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestAdvance(t *testing.T) {
	t.Run("advances one stage at a time through the role chain", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		p := createProduct(t, svc)

		p = advanceTo(t, svc, p.ID, StageRetail)
		assert.Equal(t, StageRetail, p.Stage)
		require.Len(t, p.Records, 4)
		assert.Equal(t, "proc-1", p.Records[1].ActorIdentity)
		assert.Equal(t, "dist-1", p.Records[2].ActorIdentity)
		assert.Equal(t, "retail-1", p.Records[3].ActorIdentity)
	})

	t.Run("rejects skipping a stage", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		p := createProduct(t, svc)
		_, err := svc.Advance(callerCtx("dist-1"), p.ID, StageDistribution, "d")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("rejects the wrong role for the target stage", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		p := createProduct(t, svc)
		_, err := svc.Advance(callerCtx("retail-1"), p.ID, StageProcessing, "d")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("consumed is not reachable by advance", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		p := createProduct(t, svc)
		advanceTo(t, svc, p.ID, StageRetail)
		_, err := svc.Advance(callerCtx("retail-1"), p.ID, StageConsumed, "d")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("requires stage data", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		p := createProduct(t, svc)
		_, err := svc.Advance(callerCtx("proc-1"), p.ID, StageProcessing, "  ")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("unknown products are not found", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		_, err := svc.Advance(callerCtx("proc-1"), 42, StageProcessing, "d")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("updates the estimated price from the fresh snapshot", func(t *testing.T) {
		feed := steadyFeed()
		svc, _, _ := newTestService(t, feed)
		p := createProduct(t, svc)

		feed.Reading.Price = 104
		p, err := svc.Advance(callerCtx("proc-1"), p.ID, StageProcessing, "milled")
		require.NoError(t, err)
		assert.Equal(t, 104.0, p.EstimatedPrice)
	})

	t.Run("out-of-band conditions emit advisories without blocking", func(t *testing.T) {
		feed := steadyFeed()
		svc, _, events := newTestService(t, feed)
		p := createProduct(t, svc)

		feed.Reading.Temperature = 45
		feed.Reading.Price = 120
		_, err := svc.Advance(callerCtx("proc-1"), p.ID, StageProcessing, "milled")
		require.NoError(t, err)

		logged, err := events.ListByEntity(context.Background(), audit.EntityProduct, "1")
		require.NoError(t, err)
		var advisories []string
		for _, e := range logged {
			if e.Action == string(audit.EventMarketAdvisory) {
				advisories = append(advisories, e.Detail)
			}
		}
		require.Len(t, advisories, 3)
		assert.Contains(t, advisories[0], "temperature")
	})
}

func TestMarkConsumed(t *testing.T) {
	t.Run("consumes a retail product regardless of caller role", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		p := createProduct(t, svc)
		advanceTo(t, svc, p.ID, StageRetail)

		p, err := svc.MarkConsumed(callerCtx("anyone"), p.ID)
		require.NoError(t, err)
		assert.Equal(t, StageConsumed, p.Stage)
		require.Len(t, p.Records, 5)
		assert.Equal(t, "anyone", p.Records[4].ActorIdentity)
	})

	t.Run("rejects consumption before retail", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		p := createProduct(t, svc)
		_, err := svc.MarkConsumed(callerCtx("anyone"), p.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func TestDeactivate(t *testing.T) {
	t.Run("only the originating farmer may deactivate", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		p := createProduct(t, svc)

		err := svc.Deactivate(callerCtx("proc-1"), p.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

		require.NoError(t, svc.Deactivate(callerCtx("farmer-1"), p.ID))
	})

	t.Run("deactivated products become unreachable", func(t *testing.T) {
		svc, _, _ := newTestService(t, steadyFeed())
		p := createProduct(t, svc)
		require.NoError(t, svc.Deactivate(callerCtx("farmer-1"), p.ID))

		_, err := svc.Get(context.Background(), p.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = svc.ByBatch(context.Background(), "B1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = svc.MarkConsumed(callerCtx("anyone"), p.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		// The batch number stays burned.
		_, err = svc.Create(callerCtx("farmer-1"), CreateInput{Name: "Pears", BatchNumber: "B1", Data: "d"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateKey))
	})
}

func TestQueries(t *testing.T) {
	svc, _, _ := newTestService(t, steadyFeed())
	first := createProduct(t, svc)
	second, err := svc.Create(callerCtx("farmer-1"), CreateInput{Name: "Pears", BatchNumber: "B2", Data: "d"})
	require.NoError(t, err)
	advanceTo(t, svc, first.ID, StageProcessing)

	t.Run("by stakeholder follows authorship", func(t *testing.T) {
		mine, err := svc.ByStakeholder(context.Background(), "farmer-1")
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		processed, err := svc.ByStakeholder(context.Background(), "proc-1")
		require.NoError(t, err)
		require.Len(t, processed, 1)
		assert.Equal(t, first.ID, processed[0].ID)
	})

	t.Run("by stage lists current occupants", func(t *testing.T) {
		farm, err := svc.ByStage(context.Background(), StageFarm)
		require.NoError(t, err)
		require.Len(t, farm, 1)
		assert.Equal(t, second.ID, farm[0].ID)
	})

	t.Run("stage counts cover active products", func(t *testing.T) {
		report, err := svc.StageCounts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, report.Total)
		assert.Equal(t, 1, report.Counts[StageFarm.String()])
		assert.Equal(t, 1, report.Counts[StageProcessing.String()])
	})
}
