package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"stratix/models"
	"stratix/storage"
	"stratix/utils"

	"github.com/gin-gonic/gin"
)

// LoginHandler handles user authentication
// @Summary Login user
// @Description Authenticate user and return a session token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 403 {object} utils.Response
// @Router /api/login [post]
func LoginHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, "Invalid request body", http.StatusBadRequest)
			return
		}

		user, err := storage.GetUserByEmail(db, req.Email)
		if err != nil {
			utils.ErrorResponse(c, "Invalid email or password", http.StatusUnauthorized)
			return
		}
		if user.Suspended {
			utils.ErrorResponse(c, "Account is suspended", http.StatusForbidden)
			return
		}
		if !utils.ValidatePassword(user.Password, req.Password) {
			utils.ErrorResponse(c, "Invalid email or password", http.StatusUnauthorized)
			return
		}

		token, err := utils.GenerateJWT(user.Email)
		if err != nil {
			utils.ErrorResponse(c, "Failed to create token", http.StatusInternalServerError)
			return
		}

		now := time.Now()
		session := &models.Session{
			SessionID: token,
			UserID:    user.ID,
			Token:     token,
			CreatedAt: now,
			ExpiresAt: now.Add(24 * time.Hour),
		}
		if err := storage.SaveSession(db, session); err != nil {
			utils.ErrorResponse(c, "Failed to create session", http.StatusInternalServerError)
			return
		}
		_ = storage.UpdateLastAccess(db, user.ID)

		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user": gin.H{
				"id":         user.ID,
				"tenant_id":  user.TenantID,
				"email":      user.Email,
				"first_name": user.FirstName,
				"last_name":  user.LastName,
				"is_admin":   user.IsAdmin,
			},
		})
	}
}
