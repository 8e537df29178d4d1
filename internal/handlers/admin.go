package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ddokjang/plan-service/internal/resilience"
)

// Global resilience instances (initialized by the application)
var (
	callBudget    *resilience.Budget
	adminCaches   []*resilience.Cache
	adminBreakers map[string]*resilience.Breaker
)

// InitAdmin initializes the admin surface with the resilience components.
func InitAdmin(budget *resilience.Budget, caches []*resilience.Cache, breakers map[string]*resilience.Breaker) {
	callBudget = budget
	adminCaches = caches
	adminBreakers = breakers
}

// BudgetStatus reports monthly call budget usage
// GET /internal/budget
func BudgetStatus(c *gin.Context) {
	if callBudget == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "budget not initialized"})
		return
	}

	status, err := callBudget.Check(c.Request.Context())
	if err != nil {
		var budgetErr *resilience.BudgetExceededError
		if errors.As(err, &budgetErr) {
			c.JSON(http.StatusOK, gin.H{
				"used":     budgetErr.Used,
				"limit":    budgetErr.Limit,
				"exceeded": true,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"used":     status.Used,
		"limit":    status.Limit,
		"warning":  status.IsWarning,
		"exceeded": false,
	})
}

// SweepCaches evicts expired entries from every registered cache
// POST /internal/caches/sweep
func SweepCaches(c *gin.Context) {
	swept := make(map[string]int, len(adminCaches))
	for _, cache := range adminCaches {
		swept[cache.Name()] = cache.Sweep()
	}
	c.JSON(http.StatusOK, gin.H{"swept": swept})
}

// ResetBreaker force-closes one provider's circuit breaker
// POST /internal/breakers/:provider/reset
func ResetBreaker(c *gin.Context) {
	provider := c.Param("provider")
	breaker, ok := adminBreakers[provider]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown provider " + provider})
		return
	}

	breaker.Reset()
	c.JSON(http.StatusOK, gin.H{
		"provider": provider,
		"state":    breaker.State().String(),
	})
}

// BreakerStates lists every provider breaker's state
// GET /internal/breakers
func BreakerStates(c *gin.Context) {
	states := make(map[string]string, len(adminBreakers))
	for name, breaker := range adminBreakers {
		states[name] = breaker.State().String()
	}
	c.JSON(http.StatusOK, gin.H{"breakers": states})
}
