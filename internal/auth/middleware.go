package auth

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// RequireLogin はセッションを検証するミドルウェアを返します。
// 発行から maxSessionLifetime、最終操作から idleTimeout を過ぎたセッションは破棄します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		user, ok := session.Get(sessionKeyUser).(string)
		if !ok || user == "" {
			abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "需要登入")
			return
		}

		now := m.now()
		issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
		lastActive := readUnix(session.Get(sessionKeyLastActive))

		switch {
		case issuedAt.IsZero() || now.Sub(issuedAt) > maxSessionLifetime:
			session.Clear()
			_ = session.Save()
			abortJSON(c, http.StatusUnauthorized, "SESSION_EXPIRED", "登入已逾期，請重新登入")
			return
		case lastActive.IsZero() || now.Sub(lastActive) > idleTimeout:
			session.Clear()
			_ = session.Save()
			abortJSON(c, http.StatusUnauthorized, "SESSION_IDLE_TIMEOUT", "閒置過久，請重新登入")
			return
		}

		session.Set(sessionKeyLastActive, now.Unix())
		_ = session.Save()
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// VerifyCSRF は状態を変更するリクエストの X-CSRF-Token ヘッダーを検証します。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		expected, _ := sessions.Default(c).Get(sessionKeyCSRF).(string)
		if expected == "" {
			abortJSON(c, http.StatusForbidden, "CSRF_MISSING", "缺少 CSRF token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(c.GetHeader(CSRFHeader))) != 1 {
			abortJSON(c, http.StatusForbidden, "CSRF_INVALID", "CSRF token 不符")
			return
		}
		c.Next()
	}
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

// readUnix はセッションに保存した Unix 秒を読み出します（gob 経由で型が変わるため複数型に対応）。
func readUnix(v any) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
