package handler

import (
	"context"
	"errors"
	"strings"

	"resume-ats-go/internal/logger"
	"resume-ats-go/internal/mailer"
	"resume-ats-go/internal/validation"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	json "github.com/goccy/go-json"
)

const (
	msgEmailSent     = "Email sent successfully"
	msgEmailQueued   = "Message received and queued for delivery"
	msgEmailFailed   = "Failed to send email"
	msgEmailDisabled = "Email delivery is not configured"
)

// ContactResponse 联系表单响应，字段与旧前端保持一致
type ContactResponse struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	ID      string                  `json:"id,omitempty"`
	Status  string                  `json:"status,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

// ContactHandler 联系表单接口
type ContactHandler struct {
	service *mailer.ContactService
}

// NewContactHandler 创建 ContactHandler
func NewContactHandler(service *mailer.ContactService) *ContactHandler {
	return &ContactHandler{service: service}
}

// HandleContact 接收联系表单，支持 JSON 和表单两种提交方式
// POST /api/v1/contact
func (h *ContactHandler) HandleContact(c context.Context, ctx *app.RequestContext) {
	form, err := bindContactForm(ctx)
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, ContactResponse{Success: false, Message: msgBadJSON})
		return
	}

	msg, err := h.service.Submit(c, form)
	if err != nil {
		var verr *validation.Error
		switch {
		case errors.As(err, &verr):
			ctx.JSON(consts.StatusBadRequest, ContactResponse{Success: false, Message: verr.Error(), Errors: verr.Fields})
		case errors.Is(err, mailer.ErrMailDisabled):
			ctx.JSON(consts.StatusServiceUnavailable, ContactResponse{Success: false, Message: msgEmailDisabled})
		default:
			// 与旧接口一致，投递失败也返回 200
			logger.Ctx(c).Error().Err(err).Msg("联系表单处理失败")
			resp := ContactResponse{Success: false, Message: msgEmailFailed}
			if msg != nil {
				resp.ID = msg.ID
				resp.Status = msg.Status
			}
			ctx.JSON(consts.StatusOK, resp)
		}
		return
	}

	resp := ContactResponse{Success: true, Message: msgEmailSent, ID: msg.ID, Status: msg.Status}
	status := consts.StatusOK
	if h.service.Queued() {
		resp.Message = msgEmailQueued
		status = consts.StatusAccepted
	}
	ctx.JSON(status, resp)
}

func bindContactForm(ctx *app.RequestContext) (validation.ContactForm, error) {
	var form validation.ContactForm
	contentType := strings.ToLower(string(ctx.ContentType()))
	if strings.Contains(contentType, "application/json") {
		err := json.Unmarshal(ctx.Request.Body(), &form)
		return form, err
	}
	form.Name = ctx.PostForm("name")
	form.Email = ctx.PostForm("email")
	form.Message = ctx.PostForm("message")
	return form, nil
}
