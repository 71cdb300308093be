package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

// requestID は受信した X-Request-ID を引き継ぎ、無ければ採番します。
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger はリクエストごとに1行のアクセスログを出力します。
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "request",
			"request_id", c.GetString(requestIDHeader),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"ip", c.ClientIP(),
			"elapsed", time.Since(start),
		)
	}
}

// ipLimiter はクライアント IP ごとのトークンバケットを保持します。
// 一定時間使われなかったバケットは go-cache の期限切れで破棄されます。
type ipLimiter struct {
	limiters *gocache.Cache
	limit    rate.Limit
	burst    int
}

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		limiters: gocache.New(10*time.Minute, 5*time.Minute),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	if v, ok := l.limiters.Get(ip); ok {
		limiter := v.(*rate.Limiter)
		l.limiters.SetDefault(ip, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.limiters.Add(ip, limiter, gocache.DefaultExpiration); err != nil {
		// 同時に作成された場合は先に登録されたものを使う
		if v, ok := l.limiters.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// rateLimit は申請エンドポイント用の流量制限ミドルウェアです。
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		reservation := s.limiter.get(c.ClientIP()).Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			s.opts.Metrics.Submission("throttled")
			c.Header("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "TOO_MANY_REQUESTS",
				"message": "申請次數過多，請稍後再試",
			})
			return
		}
		c.Next()
	}
}
