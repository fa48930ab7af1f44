package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken    = errors.New("недействительный session token")
	ErrWrongAudience   = errors.New("session token выписан для другого приложения")
	ErrMissingDestShop = errors.New("в session token отсутствует магазин (dest)")
)

// SessionClaims содержит claims session token встроенного приложения.
// Платформа подписывает токен секретом приложения (HS256); dest указывает
// магазин, sub — идентификатор пользователя админки.
type SessionClaims struct {
	Dest string `json:"dest"`
	Sid  string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Shop возвращает домен магазина из dest claim (без схемы)
func (c *SessionClaims) Shop() string {
	return strings.TrimPrefix(strings.TrimPrefix(c.Dest, "https://"), "http://")
}

// Config содержит настройки проверки session token
type Config struct {
	APIKey        string // ожидаемый audience
	APISecret     string // ключ подписи
	SigningMethod jwt.SigningMethod
}

func NewConfig(apiKey, apiSecret string) *Config {
	return &Config{
		APIKey:        apiKey,
		APISecret:     apiSecret,
		SigningMethod: jwt.SigningMethodHS256,
	}
}

// SessionTokenManager проверяет session token встроенного приложения
type SessionTokenManager struct {
	config *Config
}

func NewSessionTokenManager(config *Config) *SessionTokenManager {
	return &SessionTokenManager{
		config: config,
	}
}

// VerifyToken проверяет подпись и claims session token и возвращает их
func (m *SessionTokenManager) VerifyToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != m.config.SigningMethod.Alg() {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
		}
		return []byte(m.config.APISecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// Платформа выставляет aud равным client id приложения
	audiences, err := claims.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	audienceOK := false
	for _, aud := range audiences {
		if aud == m.config.APIKey {
			audienceOK = true
			break
		}
	}
	if !audienceOK {
		return nil, ErrWrongAudience
	}

	if claims.Shop() == "" {
		return nil, ErrMissingDestShop
	}

	return claims, nil
}
