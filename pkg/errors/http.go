package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HTTPErrorResponse представляет структуру HTTP ответа об ошибке
type HTTPErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

func ErrorResponse(message string, details interface{}) HTTPErrorResponse {
	return HTTPErrorResponse{
		Error:   message,
		Details: details,
	}
}

func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Если есть ошибки после выполнения запроса
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			code, response := ToHTTPResponse(err)
			c.JSON(code, response)
			c.Abort()
			return
		}
	}
}

// RecoveryMiddleware перехватывает панику и возвращает 500
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				LogError(fmt.Errorf("паника: %v", r), "RecoveryMiddleware")
				c.JSON(http.StatusInternalServerError, ErrorResponse("Внутренняя ошибка сервера", nil))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// NotFoundHandler обработчик для несуществующих маршрутов
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse(
			fmt.Sprintf("Маршрут %s %s не найден", c.Request.Method, c.Request.URL.Path), nil,
		))
	}
}

// MethodNotAllowedHandler обработчик для неподдерживаемых методов
func MethodNotAllowedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, ErrorResponse(
			fmt.Sprintf("Метод %s не поддерживается для %s", c.Request.Method, c.Request.URL.Path), nil,
		))
	}
}

// HandleGinError обрабатывает ошибку в контексте Gin, возвращает true если ошибка была
func HandleGinError(c *gin.Context, err error) bool {
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) {
			c.JSON(se.Code, ErrorResponse(se.Message, nil))
		} else {
			code, response := ToHTTPResponse(err)
			c.JSON(code, response)
		}
		c.Abort()
		return true
	}
	return false
}

// BindJSON привязывает JSON к структуре и обрабатывает ошибки
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(
			fmt.Sprintf("Ошибка в JSON данных: %v", err), nil,
		))
		c.Abort()
		return false
	}
	return true
}
