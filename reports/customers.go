package reports

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maisonops/boutique_backend/config"
	"github.com/maisonops/boutique_backend/models"
)

const defaultLapsedDays = 90

// LapsedCustomersHandler lists customers whose last purchase is older than
// the given number of days (default 90).
func LapsedCustomersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		days := defaultLapsedDays
		if v := strings.TrimSpace(c.Query("days")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
				return
			}
			days = n
		}

		profiles, err := models.GetLapsedCustomers(c.Request.Context(), config.GetDB(), days, time.Now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"days": days, "items": profiles})
	}
}

// MatchCustomersHandler finds customers who have bought a given brand,
// category or size. At least one filter is required.
func MatchCustomersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		brand := strings.TrimSpace(c.Query("brand"))
		category := strings.TrimSpace(c.Query("category"))
		size := strings.TrimSpace(c.Query("size"))
		if brand == "" && category == "" && size == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least one of brand, category or size is required"})
			return
		}

		profiles, err := models.MatchCustomersByPurchase(c.Request.Context(), config.GetDB(), brand, category, size)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": profiles})
	}
}

func CustomerProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		customerId := strings.TrimSpace(c.Param("id"))
		if customerId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "customer id is required"})
			return
		}

		profile, err := models.GetCustomerProfile(c.Request.Context(), config.GetDB(), customerId)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}
