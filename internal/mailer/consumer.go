package mailer

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-ats-go/internal/logger"
	"resume-ats-go/internal/metrics"
	"resume-ats-go/internal/storage"
	"resume-ats-go/internal/storage/models"
	"resume-ats-go/internal/tracing"
)

// Consumer 消费 contact.submitted 事件并发送邮件
type Consumer struct {
	store         ContactStore
	sender        Sender
	maxAttempts   int
	retryInterval time.Duration
	tracer        trace.Tracer
	log           zerolog.Logger
}

// NewConsumer maxAttempts<=0 时只尝试一次
func NewConsumer(store ContactStore, sender Sender, maxAttempts int, retryInterval time.Duration) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Consumer{
		store:         store,
		sender:        sender,
		maxAttempts:   maxAttempts,
		retryInterval: retryInterval,
		tracer:        otel.Tracer("resume-ats-go/mailer"),
		log:           logger.Logger.With().Str("component", "contact_consumer").Logger(),
	}
}

// Handle 实现 storage.MessageHandler：返回 true 确认，false 重新入队
func (c *Consumer) Handle(ctx context.Context, body []byte) bool {
	var event ContactEvent
	if err := json.Unmarshal(body, &event); err != nil || event.ContactID == "" {
		// 无法解析的消息重试也没有意义
		c.log.Error().Err(err).Bytes("body", body).Msg("丢弃无法解析的联系消息事件")
		return true
	}

	ctx, span := c.tracer.Start(ctx, "mailer.HandleContact",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("contact.id", event.ContactID)),
	)
	defer span.End()
	l := c.log.With().Str("contact_id", event.ContactID).Logger()

	msg, err := c.store.GetContactMessage(ctx, event.ContactID)
	if err != nil {
		if storage.IsNotFound(err) {
			l.Warn().Msg("联系消息不存在，忽略事件")
			return true
		}
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		l.Error().Err(err).Msg("读取联系消息失败")
		return c.backoff(ctx)
	}

	// 重复投递的事件
	if msg.Status != models.ContactStatusPending {
		return true
	}
	span.SetAttributes(tracing.SafeAttribute("contact.email", msg.Email))

	sendErr := c.sender.Send(ctx, ContactEmail(msg))
	if sendErr == nil {
		if err := c.store.UpdateContactStatus(ctx, msg.ID, models.ContactStatusSent, nil); err != nil {
			l.Error().Err(err).Msg("更新联系消息状态失败")
		}
		metrics.ContactMessages.WithLabelValues(models.ContactStatusSent).Inc()
		l.Info().Msg("联系消息已发送")
		return true
	}

	tracing.RecordError(span, sendErr, tracing.ErrorTypeExternal)
	// 进程退出中断的发送不计入尝试次数
	if errors.Is(sendErr, context.Canceled) && ctx.Err() != nil {
		return false
	}
	attempt := msg.Attempts + 1
	if attempt >= c.maxAttempts {
		if err := c.store.UpdateContactStatus(ctx, msg.ID, models.ContactStatusFailed, sendErr); err != nil {
			l.Error().Err(err).Msg("更新联系消息状态失败")
		}
		metrics.ContactMessages.WithLabelValues(models.ContactStatusFailed).Inc()
		l.Error().Err(sendErr).Int("attempts", attempt).Msg("联系消息发送失败，不再重试")
		return true
	}

	if err := c.store.UpdateContactStatus(ctx, msg.ID, models.ContactStatusPending, sendErr); err != nil {
		l.Error().Err(err).Msg("更新联系消息状态失败")
	}
	l.Warn().Err(sendErr).Int("attempts", attempt).Msg("联系消息发送失败，稍后重试")
	return c.backoff(ctx)
}

// backoff 等待重试间隔后返回 false，使消息重新入队
func (c *Consumer) backoff(ctx context.Context) bool {
	if c.retryInterval <= 0 {
		return false
	}
	timer := time.NewTimer(c.retryInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return false
}
