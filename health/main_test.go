package health

import (
	"context"
	"encoding/json"
	"errors"
	"fitcoachdev/logger"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"
)

type fixedCount int

func (f fixedCount) Len() int { return int(f) }

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func serve(t *testing.T, props HealthConnectProps) (*httptest.ResponseRecorder, Status) {
	props.Logger = logger.Wrap(zaptest.NewLogger(t))
	r := chi.NewRouter()
	NewHealth(props).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid body %q: %v", rec.Body.String(), err)
	}
	return rec, status
}

func TestHealthz(t *testing.T) {
	rec, status := serve(t, HealthConnectProps{Sessions: fixedCount(3)})
	if rec.Code != http.StatusOK || status.Status != "healthy" || status.Sessions != 3 {
		t.Errorf("unexpected response %d %+v", rec.Code, status)
	}
	if _, ok := status.Checks["database"]; ok {
		t.Error("database check reported without a database")
	}
}

func TestHealthzDatabase(t *testing.T) {
	rec, status := serve(t, HealthConnectProps{Sessions: fixedCount(0), Database: fakePinger{}})
	if rec.Code != http.StatusOK || status.Checks["database"] != "ok" {
		t.Errorf("unexpected response %d %+v", rec.Code, status)
	}

	rec, status = serve(t, HealthConnectProps{Sessions: fixedCount(0), Database: fakePinger{err: errors.New("down")}})
	if rec.Code != http.StatusServiceUnavailable || status.Status != "degraded" || status.Checks["database"] != "unreachable" {
		t.Errorf("unexpected response %d %+v", rec.Code, status)
	}
}
