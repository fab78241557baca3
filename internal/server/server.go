// Package server exposes the extraction pipeline over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/finlens/receipt-extract/internal/common"
	"github.com/finlens/receipt-extract/internal/extract"
	"github.com/finlens/receipt-extract/internal/receipt"
)

func receiptStrategy(s string) receipt.Strategy {
	if s == string(receipt.StrategyVision) {
		return receipt.StrategyVision
	}
	return receipt.StrategyOCRThenChat
}

// Extractor runs the extraction pipeline for one request.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (*extract.Result, error)
}

// Saver persists extraction results.
type Saver interface {
	SaveResult(ctx context.Context, imageURL string, res *extract.Result) (string, error)
	MarkFailed(ctx context.Context, receiptID, imageURL, message string) error
}

// Exporter produces the XLSX export.
type Exporter interface {
	ExportReceiptsXLSX(ctx context.Context) ([]byte, error)
}

// Server wires the pipeline, store and exporter behind a gin router. The
// store and exporter are optional; their features degrade when nil.
type Server struct {
	extractor Extractor
	saver     Saver
	exporter  Exporter
	log       *slog.Logger
}

func New(extractor Extractor, saver Saver, exporter Exporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{extractor: extractor, saver: saver, exporter: exporter, log: logger}
}

// requestID tags every request with an ID, propagated through the context
// and echoed in the X-Request-ID response header.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), id))
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID())

	r.GET("/healthz", s.handleHealth)
	r.POST("/v1/receipts/extract", s.handleExtract)
	r.GET("/v1/receipts/export.xlsx", s.handleExport)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type extractRequest struct {
	ImageURL  string `json:"image_url"`
	Model     string `json:"model"`
	Strategy  string `json:"strategy"`
	ReceiptID string `json:"receipt_id"`
}

type extractResponse struct {
	*extract.Result
	Stored     bool   `json:"stored"`
	StoreError string `json:"store_error,omitempty"`
}

func (s *Server) handleExtract(c *gin.Context) {
	start := time.Now()

	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ImageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_url is required"})
		return
	}

	res, err := s.extractor.Extract(c.Request.Context(), extract.Request{
		ImageURL:  req.ImageURL,
		Model:     req.Model,
		Strategy:  receiptStrategy(req.Strategy),
		ReceiptID: req.ReceiptID,
	})
	if err != nil {
		s.log.Error("server.extract.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if s.saver != nil && req.ReceiptID != "" {
			if merr := s.saver.MarkFailed(c.Request.Context(), req.ReceiptID, req.ImageURL, err.Error()); merr != nil {
				s.log.Warn("server.extract.mark_failed_error", "error", merr)
			}
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := extractResponse{Result: res}
	if s.saver != nil {
		if id, serr := s.saver.SaveResult(c.Request.Context(), req.ImageURL, res); serr != nil {
			resp.StoreError = serr.Error()
		} else {
			resp.Stored = true
			resp.ReceiptID = id
		}
	}

	s.log.Info("server.extract.ok",
		"req_id", common.RequestIDFromContext(c.Request.Context()),
		"strategy", string(res.Strategy),
		"model", res.Model,
		"items", len(res.Extracted.Items),
		"stored", resp.Stored,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExport(c *gin.Context) {
	if s.exporter == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "export is not configured"})
		return
	}
	data, err := s.exporter.ExportReceiptsXLSX(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="receipts.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
