package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
	"github.com/ManuelReschke/CertFox/internal/pkg/billing"
	"github.com/ManuelReschke/CertFox/internal/pkg/cache"
	"github.com/ManuelReschke/CertFox/internal/pkg/database"
	"github.com/ManuelReschke/CertFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CertFox/internal/pkg/env"
	"github.com/ManuelReschke/CertFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CertFox/internal/pkg/middleware"
)

const jwtSecret = "router-test-secret"

type routerFixture struct {
	app   *fiber.App
	admin *models.Admin
	deps  Dependencies
}

func newRouterFixture(t *testing.T, extraEnv map[string]string, storage fiber.Storage) *routerFixture {
	t.Helper()
	old := env.Env
	env.Env = map[string]string{"JWT_SECRET": jwtSecret, "PAYSTACK_SECRET_KEY": "sk_test"}
	for k, v := range extraEnv {
		env.Env[k] = v
	}
	t.Cleanup(func() { env.Env = old })

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	ctx := context.Background()
	repos := repository.NewRepositories(db)
	_, err = billing.SeedDefaultPlans(ctx, repos.Plan)
	require.NoError(t, err)

	org := models.NewOrganization("Acme", "billing@acme.test", time.Now())
	require.NoError(t, repos.Organization.Create(ctx, org))
	admin := &models.Admin{Name: "Ada", Email: "ada@acme.test", OrganizationID: org.ID, Role: models.AdminRoleOwner}
	require.NoError(t, repos.Admin.Create(ctx, admin))

	m := metrics.New()
	deps := Dependencies{
		Billing:        billing.NewService(repos, billing.NewPaystackClientFromEnv(), billing.WithMetrics(m)),
		Oracle:         entitlements.NewOracle(repos.Organization, repos.Plan, m),
		Metrics:        m,
		LimiterStorage: storage,
		Checks: map[string]func(context.Context) error{
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
	}
	app := fiber.New()
	InstallRouter(app, deps)
	return &routerFixture{app: app, admin: admin, deps: deps}
}

func (f *routerFixture) token(t *testing.T, role string) string {
	t.Helper()
	claims := middleware.AdminClaims{
		OrganizationID: f.admin.OrganizationID,
		Role:           role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   f.admin.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return raw
}

func (f *routerFixture) get(t *testing.T, path, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestBillingRoutesRequireToken(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	status, _ := f.get(t, "/billing/plans", "")
	assert.Equal(t, fiber.StatusOK, status)

	for _, path := range []string{"/billing/dashboard", "/billing/usage", "/billing/invoices", "/billing/entitlements"} {
		status, body := f.get(t, path, "")
		assert.Equal(t, fiber.StatusUnauthorized, status, path)
		assert.Contains(t, body, `"AUTH"`)
	}

	status, body := f.get(t, "/billing/dashboard", f.token(t, models.AdminRoleOwner))
	assert.Equal(t, fiber.StatusOK, status, body)
}

func TestAdminPlanRoutesNeedSuperAdmin(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	status, _ := f.get(t, "/admin/billing/plans", f.token(t, models.AdminRoleOwner))
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := f.get(t, "/admin/billing/plans", f.token(t, models.AdminRoleSuperAdmin))
	require.Equal(t, fiber.StatusOK, status)
	var payload struct {
		Data []models.Plan `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Len(t, payload.Data, 3)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	status, body := f.get(t, "/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"database":"ok"`)

	f.deps.Metrics.Webhook("charge.success", "processed")
	status, body = f.get(t, "/metrics", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, strings.Contains(body, "certfox_webhooks_total"), body)
}

func TestHealthReportsFailingComponent(t *testing.T) {
	app := fiber.New()
	InstallRouter(app, Dependencies{
		Billing: billing.NewService(&repository.Repositories{}, billing.NewPaystackClientFromEnv()),
		Checks: map[string]func(context.Context) error{
			"cache": func(context.Context) error { return errors.New("connection refused") },
		},
	})
	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestBillingRateLimit(t *testing.T) {
	f := newRouterFixture(t, map[string]string{"BILLING_RATE_LIMIT": "2"}, nil)

	for i := 0; i < 2; i++ {
		status, _ := f.get(t, "/billing/plans", "")
		require.Equal(t, fiber.StatusOK, status)
	}
	status, body := f.get(t, "/billing/plans", "")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Contains(t, body, "RATE_LIMITED")
}

func TestRateLimitSharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	old := env.Env
	env.Env = map[string]string{"CACHE_HOST": mr.Host(), "CACHE_PORT": mr.Port()}
	cache.SetupCache()
	storage := cache.NewLimiterStorage()
	env.Env = old
	t.Cleanup(func() {
		_ = storage.Close()
		cache.SetClient(nil)
	})

	// two app instances behind one limiter budget
	first := newRouterFixture(t, map[string]string{"BILLING_RATE_LIMIT": "2"}, storage)
	second := newRouterFixture(t, map[string]string{"BILLING_RATE_LIMIT": "2"}, storage)

	status, _ := first.get(t, "/billing/plans", "")
	require.Equal(t, fiber.StatusOK, status)
	status, _ = second.get(t, "/billing/plans", "")
	require.Equal(t, fiber.StatusOK, status)
	status, _ = first.get(t, "/billing/plans", "")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
}
