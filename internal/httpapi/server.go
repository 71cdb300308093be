// Package httpapi は公開 API と管理 API の gin ハンドラーを提供します。
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/eco-portal/internal/ledger"
	"github.com/yourusername/eco-portal/internal/mapcache"
	"github.com/yourusername/eco-portal/internal/metrics"
	"github.com/yourusername/eco-portal/internal/observation"
	"github.com/yourusername/eco-portal/internal/retention"
)

const (
	serviceName = "eco-portal-api"
	version     = "0.1.0"
)

// Ledger は申請台帳のうち API が使う操作です。
type Ledger interface {
	Create(ctx context.Context, req *ledger.DownloadRequest) error
	Get(ctx context.Context, id uint) (*ledger.DownloadRequest, error)
	List(ctx context.Context, filter ledger.Filter) ([]ledger.DownloadRequest, error)
}

// Queue は非同期タスクの投入口です。
type Queue interface {
	EnqueueExport(ctx context.Context, requestID uint) (string, error)
	EnqueueCacheRebuild(ctx context.Context) error
}

// MapIndex はキャッシュ済みの地図インデックスを返します。
type MapIndex interface {
	Filter(ctx context.Context) (mapcache.FilterIndex, error)
	Locations(ctx context.Context, year, item string) ([]mapcache.LocationEntry, error)
}

// Objects は成果物の読み出しに使うストレージです。
type Objects interface {
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

// ObservationWriter は観測データの登録・更新・削除を行います。書き込みはキャッシュ再構築を誘発します。
type ObservationWriter interface {
	Create(ctx context.Context, value any) error
	Save(ctx context.Context, value any) (int64, error)
	Delete(ctx context.Context, model any, id uint) (int64, error)
}

// ChartSource は観測項目の日別集計を返します。
type ChartSource interface {
	Chart(ctx context.Context, c observation.Category, locationID string, year int) ([]observation.ChartPoint, error)
}

// Sweeper は保存期限切れ成果物の掃除を行います。
type Sweeper interface {
	Sweep(ctx context.Context, days int) (retention.Report, error)
}

// Authenticator は管理者ログインのハンドラーとミドルウェアです。
type Authenticator interface {
	Login(c *gin.Context)
	Logout(c *gin.Context)
	Session(c *gin.Context)
	RequireLogin() gin.HandlerFunc
	VerifyCSRF() gin.HandlerFunc
}

// Options は Server の依存関係です。
type Options struct {
	Ledger        Ledger
	Queue         Queue
	Maps          MapIndex
	Objects       Objects
	Observations  ObservationWriter
	Charts        ChartSource
	Sweeper       Sweeper
	Auth          Authenticator
	Gatherer      prometheus.Gatherer
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	RetentionDays int
	// SubmitPerMinute は IP ごとの申請受付上限です。0 以下なら制限しません。
	SubmitPerMinute int
}

// Server は API のハンドラー群です。
type Server struct {
	opts    Options
	logger  *slog.Logger
	limiter *ipLimiter
}

// New は Server を作成します。
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts:   opts,
		logger: logger.With("component", "http"),
	}
	if opts.SubmitPerMinute > 0 {
		s.limiter = newIPLimiter(opts.SubmitPerMinute)
	}
	return s
}

// Register は router にルーティングを登録します。
// セッションと CORS のミドルウェアは呼び出し側で先に設定しておきます。
func (s *Server) Register(router *gin.Engine) {
	router.Use(requestID(), requestLogger(s.logger))

	router.GET("/health", handleHealth)
	if s.opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		api.GET("/categories", handleCategories)
		api.GET("/charts/:category", s.handleChart)

		downloads := api.Group("/downloads")
		{
			downloads.POST("", s.rateLimit(), s.handleSubmit)
			downloads.GET("/:id", s.handleDownloadStatus)
			downloads.GET("/:id/file", s.handleDownloadFile)
		}

		maps := api.Group("/map")
		{
			maps.GET("/filter", s.handleMapFilter)
			maps.GET("/location", s.handleMapLocations)
		}

		if s.opts.Auth == nil {
			return
		}

		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", s.opts.Auth.Login)
			authRoutes.POST("/logout", s.opts.Auth.RequireLogin(), s.opts.Auth.VerifyCSRF(), s.opts.Auth.Logout)
			authRoutes.GET("/session", s.opts.Auth.RequireLogin(), s.opts.Auth.Session)
		}

		admin := api.Group("/admin", s.opts.Auth.RequireLogin(), s.opts.Auth.VerifyCSRF())
		{
			admin.GET("/downloads", s.handleAdminList)
			admin.POST("/downloads/:id/retry", s.handleAdminRetry)
			admin.POST("/retention/sweep", s.handleAdminSweep)
			admin.POST("/cache/rebuild", s.handleAdminRebuild)
			admin.POST("/locations", s.handleCreateLocations)
			admin.POST("/observations/:category", s.handleCreateObservations)
			admin.PUT("/observations/:category/:id", s.handleUpdateObservation)
			admin.DELETE("/observations/:category/:id", s.handleDeleteObservation)
		}
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": version,
	})
}
