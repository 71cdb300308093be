package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/eco-portal/internal/mapcache"
	"github.com/yourusername/eco-portal/internal/observation"
)

// handleCategories は GET /api/categories のハンドラーです。
func handleCategories(c *gin.Context) {
	type item struct {
		Code      string `json:"code"`
		Label     string `json:"label"`
		DateField string `json:"date_field"`
	}
	all := observation.All()
	out := make([]item, 0, len(all))
	for _, cat := range all {
		out = append(out, item{Code: cat.Code, Label: cat.Label, DateField: cat.DateField})
	}
	c.JSON(http.StatusOK, out)
}

// handleMapFilter は GET /api/map/filter のハンドラーです。
func (s *Server) handleMapFilter(c *gin.Context) {
	index, err := s.opts.Maps.Filter(c.Request.Context())
	if err != nil {
		s.mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, index)
}

// handleMapLocations は GET /api/map/location?year=&item= のハンドラーです。
func (s *Server) handleMapLocations(c *gin.Context) {
	entries, err := s.opts.Maps.Locations(c.Request.Context(), c.Query("year"), c.Query("item"))
	if err != nil {
		s.mapError(c, err)
		return
	}
	if entries == nil {
		entries = []mapcache.LocationEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// mapError はキャッシュ未構築なら再構築を投入してから 503 を返します。
// リクエスト処理中に集計は行いません。
func (s *Server) mapError(c *gin.Context, err error) {
	if errors.Is(err, mapcache.ErrNotReady) {
		if enqueueErr := s.opts.Queue.EnqueueCacheRebuild(c.Request.Context()); enqueueErr != nil {
			s.logger.Warn("failed to enqueue cache rebuild", "error", enqueueErr)
		}
		c.Header("Retry-After", "30")
	} else if !errors.Is(err, mapcache.ErrInvalidYear) {
		s.logger.Error("failed to read map cache", "error", err)
	}
	respondWithError(c, err)
}

// handleChart は GET /api/charts/:category?locationID=&year= のハンドラーです。
// 指定樣站の観測を日ごとに集計して返します。year を省略すると全期間です。
func (s *Server) handleChart(c *gin.Context) {
	category, ok := s.category(c)
	if !ok {
		return
	}
	locationID := strings.TrimSpace(c.Query("locationID"))
	if locationID == "" {
		respondWithError(c, badRequest("請提供 locationID 參數"))
		return
	}
	year := 0
	if raw := strings.TrimSpace(c.Query("year")); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y <= 0 {
			respondWithError(c, badRequest("year 必須為西元年"))
			return
		}
		year = y
	}

	points, err := s.opts.Charts.Chart(c.Request.Context(), category, locationID, year)
	if err != nil {
		s.logger.Error("failed to aggregate chart", "category", category.Code, "location_id", locationID, "error", err)
		respondWithError(c, err)
		return
	}
	if points == nil {
		points = []observation.ChartPoint{}
	}
	c.JSON(http.StatusOK, points)
}
