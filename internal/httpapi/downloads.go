package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/eco-portal/internal/ledger"
	"github.com/yourusername/eco-portal/internal/observation"
	"github.com/yourusername/eco-portal/internal/storage"
)

// handleSubmit は POST /api/downloads のハンドラーです。
// 台帳に pending の行を作り、エクスポートタスクを投入して 202 を返します。
func (s *Server) handleSubmit(c *gin.Context) {
	var sub ledger.Submission
	decoder := json.NewDecoder(c.Request.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&sub); err != nil {
		s.opts.Metrics.Submission("invalid")
		respondWithError(c, badRequest("請以 JSON 格式提交申請資料"))
		return
	}
	if err := sub.Validate(); err != nil {
		s.opts.Metrics.Submission("invalid")
		respondWithError(c, err)
		return
	}

	req := sub.Request()
	if err := s.opts.Ledger.Create(c.Request.Context(), req); err != nil {
		s.logger.Error("failed to create download request", "error", err)
		respondWithError(c, err)
		return
	}

	taskID, err := s.opts.Queue.EnqueueExport(c.Request.Context(), req.ID)
	if err != nil {
		// 行は pending のまま残り、管理画面から再投入できる
		s.logger.Error("failed to enqueue export", "request_id", req.ID, "error", err)
		respondWithError(c, errQueueUnavailable)
		return
	}

	s.opts.Metrics.Submission("accepted")
	s.logger.Info("download request accepted", "request_id", req.ID, "task_id", taskID)
	c.JSON(http.StatusAccepted, gin.H{
		"message":    "下載申請已建立",
		"request_id": req.ID,
	})
}

type categoryView struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

type downloadView struct {
	RequestID      uint           `json:"request_id"`
	Status         ledger.Status  `json:"status"`
	LocationID     string         `json:"location_id"`
	LocationName   string         `json:"location_name"`
	Year           int            `json:"year"`
	RequestedItems []string       `json:"requested_items"`
	Categories     []categoryView `json:"categories"`
	CreatedAt      time.Time      `json:"created_at"`
	FinishedAt     *time.Time     `json:"finished_at"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	EmailSent      bool           `json:"email_sent"`
	DownloadURL    string         `json:"download_url,omitempty"`
}

// newDownloadView は申請の状態表示を作ります。要求された項目と、実際に解決できた項目を並べて返します。
func newDownloadView(req *ledger.DownloadRequest) downloadView {
	resolved := observation.Resolve(req.Items)
	categories := make([]categoryView, 0, len(resolved))
	for _, cat := range resolved {
		categories = append(categories, categoryView{Code: cat.Code, Label: cat.Label})
	}
	view := downloadView{
		RequestID:      req.ID,
		Status:         req.Status,
		LocationID:     req.LocationID,
		LocationName:   req.LocationName,
		Year:           req.Year,
		RequestedItems: req.Items,
		Categories:     categories,
		CreatedAt:      req.CreatedAt,
		FinishedAt:     req.FinishedAt,
		ErrorMessage:   req.ErrorMessage,
		EmailSent:      req.EmailSent,
	}
	if req.Status == ledger.StatusDone {
		view.DownloadURL = fmt.Sprintf("/api/downloads/%d/file", req.ID)
	}
	return view
}

// handleDownloadStatus は GET /api/downloads/:id のハンドラーです。
func (s *Server) handleDownloadStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req, err := s.opts.Ledger.Get(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDownloadView(req))
}

// handleDownloadFile は GET /api/downloads/:id/file のハンドラーです。
// 完了済みで成果物が存在する場合のみ zip を返し、それ以外はすべて 404 とします。
func (s *Server) handleDownloadFile(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	req, err := s.opts.Ledger.Get(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if req.Status != ledger.StatusDone || req.ZipPath == "" {
		respondWithError(c, errDownloadNotFound)
		return
	}

	file, size, err := s.opts.Objects.Open(c.Request.Context(), req.ZipPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			s.logger.Warn("archive missing for finished request", "request_id", id, "key", req.ZipPath)
			respondWithError(c, errDownloadNotFound)
			return
		}
		s.logger.Error("failed to open archive", "request_id", id, "error", err)
		respondWithError(c, err)
		return
	}
	defer file.Close()

	filename := path.Base(req.ZipPath)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", filename, url.PathEscape(filename)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, size, "application/zip", file, nil)
}

// parseID は :id パラメータを読み取ります。不正な場合は 400 を返して false を返します。
func parseID(c *gin.Context) (uint, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondWithError(c, badRequest("id 必須為正整數"))
		return 0, false
	}
	return uint(id), true
}
