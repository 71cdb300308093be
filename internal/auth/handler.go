// Package auth は管理者向け API のログイン（セッション + CSRF）を提供します。
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/eco-portal/internal/config"
)

const (
	SessionCookieName    = "eco_admin_session"
	sessionKeyUser       = "admin_user"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"

	CSRFHeader = "X-CSRF-Token"
)

var (
	maxSessionLifetime = 12 * time.Hour
	idleTimeout        = 30 * time.Minute
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// ContextUserKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
const ContextUserKey = "auth.user"

// Manager は管理者ログインの処理と失敗回数の状態を持ちます。
type Manager struct {
	cfg      *config.Config
	attempts *attemptTracker
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		attempts: newAttemptTracker(15*time.Minute, 10*time.Minute, 5),
		logger:   logger.With("component", "auth"),
		now:      time.Now,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login は POST /api/auth/login のハンドラーです。成功時は CSRF トークンをヘッダーで返します。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "請以 JSON 提供 username 與 password",
		})
		return
	}

	if err := m.ensureCredentials(); err != nil {
		m.logger.Error("admin login is not configured", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SERVER_MISCONFIGURATION",
			"message": err.Error(),
		})
		return
	}

	ip := c.ClientIP()
	if wait := m.attempts.lockedFor(ip); wait > 0 {
		c.Header("Retry-After", strconv.FormatInt(int64(wait.Seconds())+1, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "嘗試次數過多，請稍後再試",
		})
		return
	}

	if req.Username != m.cfg.AppUsername || !m.verifyPassword(req.Password) {
		remaining := m.attempts.fail(ip)
		m.logger.Warn("admin login failed", "ip", ip, "remaining", remaining)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":              "INVALID_CREDENTIALS",
			"message":           "帳號或密碼錯誤",
			"remainingAttempts": remaining,
		})
		return
	}
	m.attempts.reset(ip)

	token, err := generateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "無法產生 CSRF token",
		})
		return
	}

	session := sessions.Default(c)
	now := m.now().Unix()
	session.Set(sessionKeyUser, m.cfg.AppUsername)
	session.Set(sessionKeyIssuedAt, now)
	session.Set(sessionKeyLastActive, now)
	session.Set(sessionKeyCSRF, token)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "無法儲存登入狀態",
		})
		return
	}

	m.logger.Info("admin logged in", "ip", ip)
	c.Header(CSRFHeader, token)
	c.Status(http.StatusNoContent)
}

// Logout は POST /api/auth/logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "無法清除登入狀態",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// Session は GET /api/auth/session のハンドラーです。RequireLogin の後ろで使います。
func (m *Manager) Session(c *gin.Context) {
	session := sessions.Default(c)
	token, _ := session.Get(sessionKeyCSRF).(string)
	c.Header(CSRFHeader, token)
	c.JSON(http.StatusOK, gin.H{
		"username": c.GetString(ContextUserKey),
	})
}

func (m *Manager) ensureCredentials() error {
	switch {
	case m.cfg.AppUsername == "":
		return errors.New("APP_USERNAME が設定されていません")
	case m.cfg.AppPasswordHash == "":
		return errors.New("APP_PASSWORD_HASH が設定されていません")
	case m.cfg.SessionSecret == "":
		return errors.New("SESSION_SECRET が設定されていません")
	}
	return nil
}

func (m *Manager) verifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(m.cfg.AppPasswordHash), []byte(password)) == nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
