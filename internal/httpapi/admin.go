package httpapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/eco-portal/internal/auth"
	"github.com/yourusername/eco-portal/internal/ledger"
	"github.com/yourusername/eco-portal/internal/observation"
)

const adminListLimit = 200

// handleAdminList は GET /api/admin/downloads?status= のハンドラーです。
func (s *Server) handleAdminList(c *gin.Context) {
	filter := ledger.Filter{Limit: adminListLimit}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := ledger.Status(raw)
		if !status.Valid() {
			respondWithError(c, badRequest("status 參數無效"))
			return
		}
		filter.Status = status
	}

	rows, err := s.opts.Ledger.List(c.Request.Context(), filter)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if rows == nil {
		rows = []ledger.DownloadRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// handleAdminRetry は POST /api/admin/downloads/:id/retry のハンドラーです。
// pending と failed の申請だけを再投入できます。
func (s *Server) handleAdminRetry(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req, err := s.opts.Ledger.Get(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if !ledger.CanTransition(req.Status, ledger.StatusProcessing) {
		respondWithError(c, &Error{
			Status:  http.StatusConflict,
			Code:    "INVALID_STATE",
			Message: "此申請目前狀態為 " + string(req.Status) + "，無法重新處理",
		})
		return
	}

	taskID, err := s.opts.Queue.EnqueueExport(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("failed to enqueue export retry", "request_id", id, "error", err)
		respondWithError(c, errQueueUnavailable)
		return
	}
	s.logger.Info("export retry enqueued", "request_id", id, "task_id", taskID, "by", c.GetString(auth.ContextUserKey))
	c.JSON(http.StatusAccepted, gin.H{"request_id": id, "task_id": taskID})
}

type sweepRequest struct {
	Days int `json:"days"`
}

// handleAdminSweep は POST /api/admin/retention/sweep のハンドラーです。同期的に掃除して結果を返します。
func (s *Server) handleAdminSweep(c *gin.Context) {
	body := sweepRequest{Days: s.opts.RetentionDays}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondWithError(c, badRequest("days 必須為整數"))
			return
		}
	}

	report, err := s.opts.Sweeper.Sweep(c.Request.Context(), body.Days)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleAdminRebuild は POST /api/admin/cache/rebuild のハンドラーです。
func (s *Server) handleAdminRebuild(c *gin.Context) {
	if err := s.opts.Queue.EnqueueCacheRebuild(c.Request.Context()); err != nil {
		s.logger.Error("failed to enqueue cache rebuild", "error", err)
		respondWithError(c, errQueueUnavailable)
		return
	}
	c.Status(http.StatusAccepted)
}

// handleCreateLocations は POST /api/admin/locations のハンドラーです。
func (s *Server) handleCreateLocations(c *gin.Context) {
	var rows []observation.Location
	if err := json.NewDecoder(c.Request.Body).Decode(&rows); err != nil || len(rows) == 0 {
		respondWithError(c, badRequest("請提供樣站資料的非空 JSON 陣列"))
		return
	}
	for i := range rows {
		rows[i].ID = 0
		if strings.TrimSpace(rows[i].LocationID) == "" {
			respondWithError(c, badRequest("location_id 為必填"))
			return
		}
	}
	if err := s.opts.Observations.Create(c.Request.Context(), &rows); err != nil {
		s.logger.Error("failed to create locations", "error", err)
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"created": len(rows)})
}

// handleCreateObservations は POST /api/admin/observations/:category のハンドラーです。
// 本文は該当項目の行の JSON 配列です。
func (s *Server) handleCreateObservations(c *gin.Context) {
	category, ok := s.category(c)
	if !ok {
		return
	}

	rows := category.NewRows()
	if err := json.NewDecoder(c.Request.Body).Decode(rows); err != nil {
		respondWithError(c, badRequest("請提供觀測資料的 JSON 陣列"))
		return
	}
	slice := reflect.ValueOf(rows).Elem()
	if slice.Len() == 0 {
		respondWithError(c, badRequest("觀測資料不可為空"))
		return
	}
	// 主キーは採番に任せる
	for i := 0; i < slice.Len(); i++ {
		if f := slice.Index(i).FieldByName("ID"); f.IsValid() && f.CanSet() {
			f.SetUint(0)
		}
	}

	if err := s.opts.Observations.Create(c.Request.Context(), rows); err != nil {
		s.logger.Error("failed to create observations", "category", category.Code, "error", err)
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"category": category.Code, "created": slice.Len()})
}

// handleUpdateObservation は PUT /api/admin/observations/:category/:id のハンドラーです。
// 本文は1行分の JSON で、行全体を置き換えます。
func (s *Server) handleUpdateObservation(c *gin.Context) {
	category, ok := s.category(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	row := reflect.New(reflect.TypeOf(category.Model()).Elem())
	if err := json.NewDecoder(c.Request.Body).Decode(row.Interface()); err != nil {
		respondWithError(c, badRequest("請提供觀測資料的 JSON 物件"))
		return
	}
	if f := row.Elem().FieldByName("ID"); f.IsValid() && f.CanSet() {
		f.SetUint(uint64(id))
	}

	affected, err := s.opts.Observations.Save(c.Request.Context(), row.Interface())
	if err != nil {
		s.logger.Error("failed to update observation", "category", category.Code, "id", id, "error", err)
		respondWithError(c, err)
		return
	}
	if affected == 0 {
		respondWithError(c, errObservationNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category.Code, "id": id, "updated": affected})
}

// handleDeleteObservation は DELETE /api/admin/observations/:category/:id のハンドラーです。
func (s *Server) handleDeleteObservation(c *gin.Context) {
	category, ok := s.category(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	affected, err := s.opts.Observations.Delete(c.Request.Context(), category.Model(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if affected == 0 {
		respondWithError(c, errObservationNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) category(c *gin.Context) (observation.Category, bool) {
	category, ok := observation.Lookup(c.Param("category"))
	if !ok {
		respondWithError(c, &Error{Status: http.StatusNotFound, Code: "UNKNOWN_CATEGORY", Message: "未知的觀測項目：" + c.Param("category")})
	}
	return category, ok
}
