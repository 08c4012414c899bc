package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/uicheck/config"
	"github.com/use-agent/uicheck/models"
	"github.com/use-agent/uicheck/scenario"
)

// Validate returns a handler for POST /api/v1/validate.
// It parses and validates the suite without running it.
func Validate(defaults config.HarnessConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		suite, _, ok := bindSuite(c, defaults)
		if !ok {
			return
		}
		if err := scenario.Validate(suite); err != nil {
			c.JSON(http.StatusOK, configErrorResponse(err))
			return
		}

		steps := 0
		for _, sc := range suite.Scenarios {
			steps += len(sc.Steps)
		}
		c.JSON(http.StatusOK, models.ValidateResponse{
			Valid:     true,
			Scenarios: len(suite.Scenarios),
			Steps:     steps,
		})
	}
}
