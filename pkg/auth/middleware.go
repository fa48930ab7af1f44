package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware middleware для проверки session token встроенного приложения
type AuthMiddleware struct {
	tokenManager *SessionTokenManager
}

// NewAuthMiddleware создает новый middleware для проверки авторизации
func NewAuthMiddleware(tokenManager *SessionTokenManager) *AuthMiddleware {
	return &AuthMiddleware{
		tokenManager: tokenManager,
	}
}

// AuthRequired middleware требует валидный session token для доступа к endpoint
func (m *AuthMiddleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "отсутствует токен авторизации"})
			c.Abort()
			return
		}

		// Проверяем формат токена "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "неверный формат токена авторизации"})
			c.Abort()
			return
		}

		claims, err := m.tokenManager.VerifyToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "недействительный токен: " + err.Error()})
			c.Abort()
			return
		}

		// Добавляем данные сессии в контекст
		c.Set("shop", claims.Shop())
		c.Set("user_id", claims.Subject)

		c.Next()
	}
}

// GetShop возвращает домен магазина из контекста Gin
func GetShop(c *gin.Context) string {
	if shop, exists := c.Get("shop"); exists {
		if s, ok := shop.(string); ok {
			return s
		}
	}
	return ""
}

// GetUserID возвращает идентификатор пользователя админки из контекста Gin
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}
