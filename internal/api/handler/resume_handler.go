package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"resume-ats-go/internal/logger"
	"resume-ats-go/internal/processor"
	"resume-ats-go/internal/tracing"
	"resume-ats-go/internal/validation"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel/trace"
)

// 对外返回的错误信息
const (
	msgNoText      = "Could not extract resume text"
	msgNoFile      = "No file uploaded"
	msgTooLarge    = "File too large"
	msgUnsupported = "Unsupported file type"
	msgEmptyUpload = "Uploaded file is empty"
	msgInternal    = "Internal server error"
	msgBadJSON     = "Invalid JSON body"
	msgBadTopK     = "top_k must be an integer"
	formFileField  = "file"
	topKParamName  = "top_k"
)

// ResumeHandler 简历分析相关接口
type ResumeHandler struct {
	analyzer    *processor.ResumeAnalyzer
	maxFileSize int64
}

// NewResumeHandler 创建 ResumeHandler
func NewResumeHandler(analyzer *processor.ResumeAnalyzer) *ResumeHandler {
	return &ResumeHandler{
		analyzer:    analyzer,
		maxFileSize: analyzer.Settings().MaxFileSize,
	}
}

// TestUploadResponse 上传连通性测试的响应
type TestUploadResponse struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// HandleAnalyze 处理简历文件分析
// POST /api/v1/resume/analyze
func (h *ResumeHandler) HandleAnalyze(c context.Context, ctx *app.RequestContext) {
	topK, err := parseTopK(ctx)
	if err != nil {
		writeError(ctx, consts.StatusBadRequest, validation.FirstMessage(err))
		return
	}

	fileHeader, err := ctx.FormFile(formFileField)
	if err != nil {
		writeError(ctx, consts.StatusBadRequest, msgNoFile)
		return
	}
	if h.maxFileSize > 0 && fileHeader.Size > h.maxFileSize {
		writeError(ctx, consts.StatusRequestEntityTooLarge, msgTooLarge)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Ctx(c).Error().Err(err).Str("filename", tracing.SafeFilename(fileHeader.Filename)).Msg("打开上传文件失败")
		writeError(ctx, consts.StatusInternalServerError, msgInternal)
		return
	}
	defer file.Close()

	// 多读一个字节用于判断是否超限
	reader := io.Reader(file)
	if h.maxFileSize > 0 {
		reader = io.LimitReader(file, h.maxFileSize+1)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		logger.Ctx(c).Error().Err(err).Msg("读取上传文件失败")
		writeError(ctx, consts.StatusInternalServerError, msgInternal)
		return
	}

	result, err := h.analyzer.AnalyzeDocument(c, processor.Upload{
		Filename: fileHeader.Filename,
		Data:     buf.Bytes(),
		TopK:     topK,
	})
	if err != nil {
		writeAnalysisError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, result)
}

// HandleAnalyzeText 处理纯文本分析
// POST /api/v1/resume/analyze-text
func (h *ResumeHandler) HandleAnalyzeText(c context.Context, ctx *app.RequestContext) {
	var req validation.AnalyzeTextRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		writeError(ctx, consts.StatusBadRequest, msgBadJSON)
		return
	}
	if err := validation.Struct(&req); err != nil {
		writeValidationError(ctx, err)
		return
	}

	result, err := h.analyzer.AnalyzeText(c, req.Text, req.TopK)
	if err != nil {
		writeAnalysisError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, result)
}

// HandleTestUpload 只回显文件名和大小，用于前端联调
// POST /api/v1/resume/test-upload
func (h *ResumeHandler) HandleTestUpload(c context.Context, ctx *app.RequestContext) {
	fileHeader, err := ctx.FormFile(formFileField)
	if err != nil {
		writeError(ctx, consts.StatusBadRequest, msgNoFile)
		return
	}
	logger.Ctx(c).Info().
		Str("filename", tracing.SafeFilename(fileHeader.Filename)).
		Int64("size", fileHeader.Size).
		Msg("收到测试上传")
	ctx.JSON(consts.StatusOK, TestUploadResponse{Filename: fileHeader.Filename, Size: fileHeader.Size})
}

// parseTopK 从 query 或表单读取 top_k，缺省时返回 0
func parseTopK(ctx *app.RequestContext) (int, error) {
	raw := strings.TrimSpace(ctx.Query(topKParamName))
	if raw == "" {
		raw = strings.TrimSpace(ctx.PostForm(topKParamName))
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(msgBadTopK)
	}
	params := validation.AnalyzeParams{TopK: n}
	if err := validation.Struct(&params); err != nil {
		return 0, err
	}
	return n, nil
}

// writeAnalysisError 按错误类型映射状态码，并记录到请求 span
func writeAnalysisError(c context.Context, ctx *app.RequestContext, err error) {
	status, detail := analysisErrorStatus(err)
	if status >= consts.StatusInternalServerError {
		logger.Ctx(c).Error().Err(err).Msg("简历分析失败")
	}
	tracing.RecordHTTPError(trace.SpanFromContext(c), err, status)
	writeError(ctx, status, detail)
}

func analysisErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, processor.ErrFileTooLarge):
		return consts.StatusRequestEntityTooLarge, msgTooLarge
	case errors.Is(err, processor.ErrUnsupportedFile):
		return consts.StatusUnsupportedMediaType, msgUnsupported
	case errors.Is(err, processor.ErrEmptyUpload):
		return consts.StatusBadRequest, msgEmptyUpload
	case errors.Is(err, processor.ErrNoUsableText):
		return consts.StatusBadRequest, msgNoText
	default:
		return consts.StatusInternalServerError, msgInternal
	}
}

func writeError(ctx *app.RequestContext, status int, detail string) {
	ctx.JSON(status, utils.H{"detail": detail})
}

func writeValidationError(ctx *app.RequestContext, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		ctx.JSON(consts.StatusBadRequest, utils.H{
			"detail": verr.Error(),
			"errors": verr.Fields,
		})
		return
	}
	writeError(ctx, consts.StatusBadRequest, fmt.Sprint(err))
}
