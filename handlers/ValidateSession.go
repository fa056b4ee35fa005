package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"stratix/storage"
	"stratix/utils"

	"github.com/gin-gonic/gin"
)

// ValidateSession validates user session
// @Summary Validate session
// @Description Validate user session token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Router /api/validate-session [post]
func ValidateSession(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			utils.ErrorResponse(c, "Missing Authorization header", http.StatusBadRequest)
			return
		}

		sessionToken := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if sessionToken == "" {
			utils.ErrorResponse(c, "Authorization header missing token", http.StatusBadRequest)
			return
		}

		parsedToken, err := utils.ValidateJWT(sessionToken)
		if err != nil || !parsedToken.Valid {
			utils.ErrorResponse(c, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		user, err := storage.GetUserBySessionID(db, sessionToken)
		if err != nil {
			utils.ErrorResponse(c, "Invalid or expired session", http.StatusUnauthorized)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "Session validated",
			"user_id":   user.ID,
			"tenant_id": user.TenantID,
			"email":     user.Email,
		})
	}
}
