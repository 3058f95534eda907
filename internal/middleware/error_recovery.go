package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// ErrorRecoveryConfig configures panic recovery and load shedding
type ErrorRecoveryConfig struct {
	EnableCircuitBreaker bool
	// CircuitBreakerThreshold is the number of 5xx responses that opens the circuit
	CircuitBreakerThreshold int
	// CircuitBreakerTimeout is how long the circuit stays open before a trial request
	CircuitBreakerTimeout time.Duration
	// ExemptPaths are served even while the circuit is open
	ExemptPaths []string
}

// DefaultErrorRecoveryConfig recovers panics only
func DefaultErrorRecoveryConfig() *ErrorRecoveryConfig {
	return &ErrorRecoveryConfig{
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		ExemptPaths:             []string{"/health"},
	}
}

// ErrorRecoveryConfigFrom applies the server's circuit breaker settings over the defaults
func ErrorRecoveryConfigFrom(cb config.CircuitBreakerConfig) *ErrorRecoveryConfig {
	cfg := DefaultErrorRecoveryConfig()
	cfg.EnableCircuitBreaker = cb.Enabled
	if cb.Threshold > 0 {
		cfg.CircuitBreakerThreshold = cb.Threshold
	}
	if cb.Cooldown > 0 {
		cfg.CircuitBreakerTimeout = cb.Cooldown
	}
	return cfg
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker counts 5xx responses. Half-open lets one request decide whether to close again.
type circuitBreaker struct {
	mu        sync.Mutex
	state     circuitState
	failures  int
	openedAt  time.Time
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func newCircuitBreaker(cfg *ErrorRecoveryConfig) *circuitBreaker {
	return &circuitBreaker{
		threshold: cfg.CircuitBreakerThreshold,
		cooldown:  cfg.CircuitBreakerTimeout,
		now:       time.Now,
	}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != circuitOpen {
		return true
	}
	if cb.now().Sub(cb.openedAt) > cb.cooldown {
		cb.state = circuitHalfOpen
		return true
	}
	return false
}

func (cb *circuitBreaker) record(status int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if status >= http.StatusInternalServerError {
		cb.failures++
		if cb.state == circuitHalfOpen || cb.failures >= cb.threshold {
			cb.state = circuitOpen
			cb.openedAt = cb.now()
		}
		return
	}
	if cb.state == circuitHalfOpen {
		cb.state = circuitClosed
		cb.failures = 0
	}
}

func recoveredError(rec interface{}) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", rec)
}

// ErrorRecoveryMiddleware turns handler panics into a 500 AppError response and,
// when enabled, answers 503 while the circuit breaker is open.
func ErrorRecoveryMiddleware(logger *observability.Logger, cfg *ErrorRecoveryConfig) gin.HandlerFunc {
	if cfg == nil {
		cfg = DefaultErrorRecoveryConfig()
	}
	var cb *circuitBreaker
	if cfg.EnableCircuitBreaker {
		cb = newCircuitBreaker(cfg)
	}

	return func(c *gin.Context) {
		exempt := slices.Contains(cfg.ExemptPaths, c.Request.URL.Path)

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			stack := string(debug.Stack())
			panicErr := recoveredError(rec)
			if logger != nil {
				logger.Error(c.Request.Context(), "Panic recovered", panicErr, map[string]interface{}{
					"method": c.Request.Method,
					"path":   c.FullPath(),
					"stack":  stack,
				})
			}

			appErr := contextutils.NewAppErrorWithCause(
				contextutils.ErrorCodeInternalError,
				contextutils.SeverityFatal,
				"Internal server error",
				"A panic occurred while processing the request",
				panicErr,
			)
			if gin.Mode() == gin.DebugMode {
				appErr.Details += "\nStack trace: " + stack
			}
			_ = c.Error(appErr)
			c.AbortWithStatusJSON(http.StatusInternalServerError, appErr.ToJSON())
			if cb != nil && !exempt {
				cb.record(http.StatusInternalServerError)
			}
		}()

		if cb != nil && !exempt && !cb.allow() {
			c.Header("Retry-After", strconv.Itoa(int(cfg.CircuitBreakerTimeout.Seconds())))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, contextutils.NewAppError(
				contextutils.ErrorCodeServiceUnavailable,
				contextutils.SeverityError,
				"Service temporarily unavailable due to high error rate",
				"",
			).ToJSON())
			return
		}

		c.Next()

		if cb != nil && !exempt {
			cb.record(c.Writer.Status())
		}
	}
}
