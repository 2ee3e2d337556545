package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
)

const checkTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

type registration struct {
	checker  Checker
	optional bool
}

// CheckerRegistry runs its checkers in parallel. A failing required checker
// makes the service unhealthy; a failing optional one only degrades it.
type CheckerRegistry struct {
	checks []registration
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checks = append(r.checks, registration{checker: checker})
}

// RegisterOptional adds a dependency the service can run without, such as the
// product cache or the audit store.
func (r *CheckerRegistry) RegisterOptional(checker Checker) {
	r.checks = append(r.checks, registration{checker: checker, optional: true})
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult, len(r.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, reg := range r.checks {
		wg.Add(1)
		go func(reg registration) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := reg.checker.Check(checkCtx)
			result := CheckResult{Status: StatusHealthy, Latency: time.Since(start), Timestamp: time.Now()}
			if err != nil {
				result.Status = StatusUnhealthy
				if reg.optional {
					result.Status = StatusDegraded
				}
				result.Message = err.Error()
			}

			mu.Lock()
			results[reg.checker.Name()] = result
			mu.Unlock()
		}(reg)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, res := range results {
		if res.Status == StatusUnhealthy {
			overall = StatusUnhealthy
			break
		}
		if res.Status == StatusDegraded {
			overall = StatusDegraded
		}
	}

	return Health{
		Status:    overall,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

// Handler serves the registry as JSON, answering 503 only when unhealthy.
func (r *CheckerRegistry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := r.Check(c.Request.Context())
		code := http.StatusOK
		if h.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, h)
	}
}

// CheckFunc adapts a function to the Checker interface.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func NewCheckFunc(name string, fn func(ctx context.Context) error) CheckFunc {
	return CheckFunc{name: name, fn: fn}
}

func (f CheckFunc) Name() string                    { return f.name }
func (f CheckFunc) Check(ctx context.Context) error { return f.fn(ctx) }

func NewPostgreSQLChecker(db *sql.DB) CheckFunc {
	return NewCheckFunc("postgresql", func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgresql ping failed: %w", err)
		}
		return nil
	})
}

func NewRedisChecker(client *redis.Client) CheckFunc {
	return NewCheckFunc("redis", func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	})
}

func NewMongoDBChecker(client *mongo.Client) CheckFunc {
	return NewCheckFunc("mongodb", func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongodb ping failed: %w", err)
		}
		return nil
	})
}

// NewKafkaChecker passes when any of the brokers accepts a connection.
func NewKafkaChecker(brokers []string) CheckFunc {
	return NewCheckFunc("kafka", func(ctx context.Context) error {
		var lastErr error
		for _, addr := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", addr)
			if err != nil {
				lastErr = err
				continue
			}
			_, err = conn.Brokers()
			_ = conn.Close()
			if err == nil {
				return nil
			}
			lastErr = err
		}
		if lastErr == nil {
			return fmt.Errorf("no kafka brokers configured")
		}
		return fmt.Errorf("kafka unreachable: %w", lastErr)
	})
}
