package di

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/pkg/config"
	"github.com/prohmpiriya/crowdsense/pkg/logger"
	"github.com/prohmpiriya/crowdsense/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedJSON = `{
  "destinations": [{
    "id": "dest-1",
    "name": "Amber Fort",
    "max_daily_capacity": 1000,
    "zones": [{"id": "zone-1", "name": "Ramparts", "max_capacity": 5}],
    "capacity_rules": [{
      "id": "weekend",
      "name": "Weekend Cap",
      "priority": 10,
      "applicable_days": [0, 6],
      "capacity_percentage": 60
    }]
  }]
}`

func testConfig() *config.Config {
	return &config.Config{
		App:        config.AppConfig{Name: "crowdsense-test", Environment: "test", Timezone: "UTC"},
		Store:      config.StoreConfig{Driver: config.StoreDriverMemory},
		EntryToken: config.EntryTokenConfig{Secret: "test-secret", Issuer: "crowdsense"},
		Admission: config.AdmissionConfig{
			DefaultBasePrice:     100,
			Currency:             "INR",
			EscalationStaleAfter: 5 * time.Minute,
			EscalationBatchSize:  10,
			GeoProofRadiusMeters: 100,
		},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestContainer(t *testing.T) (*Container, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	var seed repository.SeedFile
	require.NoError(t, json.Unmarshal([]byte(seedJSON), &seed))
	require.NoError(t, repository.Seed(store, &seed, time.Now()))

	now := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	c, err := NewContainer(&ContainerConfig{
		Config: testConfig(),
		Repos:  MemoryRepositories(store),
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)
	return c, c.Router(nil)
}

func send(t *testing.T, router *gin.Engine, method, path string, body interface{}) (int, *envelope) {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewBuffer(raw)
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, "visitor-1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, &env
}

func field(t *testing.T, env *envelope, name string) interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &m))
	return m[name]
}

func TestNewContainer_RequiresInputs(t *testing.T) {
	_, err := NewContainer(nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.EntryToken.Secret = ""
	_, err = NewContainer(&ContainerConfig{Config: cfg, Repos: MemoryRepositories(repository.NewMemoryStore())})
	assert.Error(t, err)
}

func TestContainer_VisitRoundTrip(t *testing.T) {
	_, router := newTestContainer(t)

	code, env := send(t, router, http.MethodGet, "/api/v1/destinations/dest-1/capacity", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 600.0, field(t, env, "effective_capacity"))
	assert.Equal(t, "Weekend Cap", field(t, env, "applied_rule"))

	code, env = send(t, router, http.MethodPost, "/api/v1/bookings", map[string]interface{}{
		"destination_id":     "dest-1",
		"zone_id":            "zone-1",
		"visit_date":         "2025-06-14",
		"number_of_visitors": 4,
	})
	require.Equal(t, http.StatusCreated, code, "%+v", env.Error)
	bookingID := field(t, env, "id").(string)

	code, env = send(t, router, http.MethodPost, "/api/v1/bookings/"+bookingID+"/confirm", nil)
	require.Equal(t, http.StatusOK, code)
	token := field(t, env, "entry_token").(string)
	require.NotEmpty(t, token)

	code, env = send(t, router, http.MethodPost, "/api/v1/checkpoints/gate-a/entry", map[string]string{"token": token})
	require.Equal(t, http.StatusOK, code, "%+v", env.Error)
	assert.Equal(t, 4.0, field(t, env, "visitor_count"))

	code, env = send(t, router, http.MethodGet, "/api/v1/destinations/dest-1/occupancy", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 4.0, field(t, env, "current"))
	assert.Equal(t, "store", field(t, env, "source"))

	code, env = send(t, router, http.MethodPost, "/api/v1/checkpoints/gate-a/entry", map[string]string{"token": token})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_CHECKED_IN", env.Error.Code)

	code, _ = send(t, router, http.MethodPost, "/api/v1/checkpoints/gate-b/exit", map[string]string{"token": token})
	require.Equal(t, http.StatusOK, code)

	// A second exit after check-out finds the booking no longer inside
	code, env = send(t, router, http.MethodPost, "/api/v1/checkpoints/gate-b/exit", map[string]string{"token": token})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NOT_CHECKED_IN", env.Error.Code)

	// and a re-entry on a used token is refused
	code, env = send(t, router, http.MethodPost, "/api/v1/checkpoints/gate-a/entry", map[string]string{"token": token})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_USED", env.Error.Code)
}

func TestContainer_RedZoneVetoesEntry(t *testing.T) {
	_, router := newTestContainer(t)

	book := func(visitors int) string {
		code, env := send(t, router, http.MethodPost, "/api/v1/bookings", map[string]interface{}{
			"destination_id":     "dest-1",
			"zone_id":            "zone-1",
			"visit_date":         "2025-06-14",
			"number_of_visitors": visitors,
		})
		require.Equal(t, http.StatusCreated, code, "%+v", env.Error)
		id := field(t, env, "id").(string)
		_, env = send(t, router, http.MethodPost, "/api/v1/bookings/"+id+"/confirm", nil)
		return field(t, env, "entry_token").(string)
	}

	first := book(4)
	second := book(1)

	code, _ := send(t, router, http.MethodPost, "/api/v1/checkpoints/gate-a/entry", map[string]string{"token": first})
	require.Equal(t, http.StatusOK, code)

	// 4 of 5 is 80%, which turns the zone RED
	code, env := send(t, router, http.MethodPost, "/api/v1/checkpoints/gate-a/entry", map[string]string{"token": second})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ZONE_BLOCKED", env.Error.Code)

	// The zone is fully committed, so even a single visitor is denied
	code, env = send(t, router, http.MethodPost, "/api/v1/bookings", map[string]interface{}{
		"destination_id":     "dest-1",
		"zone_id":            "zone-1",
		"visit_date":         "2025-06-14",
		"number_of_visitors": 1,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CAPACITY_EXCEEDED", env.Error.Code)

	// Once the first group leaves the second may enter
	code, _ = send(t, router, http.MethodPost, "/api/v1/checkpoints/gate-b/exit", map[string]string{"token": first})
	require.Equal(t, http.StatusOK, code)
	code, _ = send(t, router, http.MethodPost, "/api/v1/checkpoints/gate-a/entry", map[string]string{"token": second})
	assert.Equal(t, http.StatusOK, code)
}

func TestContainer_ActionOrders(t *testing.T) {
	c, router := newTestContainer(t)

	code, env := send(t, router, http.MethodPost, "/api/v1/action-orders", map[string]interface{}{
		"assigned_to": "staff-1",
		"zone_id":     "zone-1",
		"title":       "Hold the queue at the gate",
		"priority":    "HIGH",
	})
	require.Equal(t, http.StatusCreated, code)
	orderID := field(t, env, "id").(string)

	result, err := c.EscalationSweeper.Sweep(t.Context(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Escalated)

	code, env = send(t, router, http.MethodPost, "/api/v1/action-orders/"+orderID+"/complete", map[string]string{"note": "done"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "COMPLETED", field(t, env, "status"))
	assert.Equal(t, "CRITICAL", field(t, env, "priority"))
}

func TestOpenInfra_MemoryStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o600))

	cfg := testConfig()
	cfg.Store.SeedFile = path

	infra, err := OpenInfra(t.Context(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer infra.Close()

	assert.Nil(t, infra.DB)
	assert.Nil(t, infra.Redis)
	assert.Nil(t, infra.Producer)
	dest, err := infra.Repos.Destinations.GetByID(t.Context(), "dest-1")
	require.NoError(t, err)
	assert.Equal(t, "Amber Fort", dest.Name)

	cfg.Store.SeedFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = OpenInfra(t.Context(), cfg, logger.NewNop())
	assert.Error(t, err)
}
