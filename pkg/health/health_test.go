package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(name string) CheckFunc {
	return NewCheckFunc(name, func(context.Context) error { return nil })
}

func failing(name string) CheckFunc {
	return NewCheckFunc(name, func(context.Context) error { return errors.New("down") })
}

func TestRegistryStatus(t *testing.T) {
	tests := []struct {
		name     string
		required []Checker
		optional []Checker
		want     Status
		code     int
	}{
		{"all healthy", []Checker{passing("mongodb")}, []Checker{passing("redis")}, StatusHealthy, http.StatusOK},
		{"optional failure degrades", []Checker{passing("mongodb")}, []Checker{failing("redis")}, StatusDegraded, http.StatusOK},
		{"required failure is unhealthy", []Checker{failing("mongodb")}, []Checker{failing("redis")}, StatusUnhealthy, http.StatusServiceUnavailable},
		{"empty registry", nil, nil, StatusHealthy, http.StatusOK},
	}

	gin.SetMode(gin.TestMode)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			for _, c := range tt.required {
				r.Register(c)
			}
			for _, c := range tt.optional {
				r.RegisterOptional(c)
			}

			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, len(tt.required)+len(tt.optional))

			router := gin.New()
			router.GET("/health", r.Handler())
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.code, w.Code)

			var body Health
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Status)
		})
	}
}

func TestFailingCheckCarriesMessage(t *testing.T) {
	r := NewCheckerRegistry()
	r.RegisterOptional(failing("postgresql"))

	res := r.Check(context.Background()).Checks["postgresql"]
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "down", res.Message)
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewRedisChecker(client)
	assert.Equal(t, "redis", checker.Name())
	assert.NoError(t, checker.Check(context.Background()))

	mr.Close()
	assert.Error(t, checker.Check(context.Background()))
}

func TestKafkaCheckerWithoutBrokers(t *testing.T) {
	err := NewKafkaChecker(nil).Check(context.Background())
	assert.EqualError(t, err, "no kafka brokers configured")
}
