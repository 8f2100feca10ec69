package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"resume-ats-go/internal/constants"
	"resume-ats-go/internal/metrics"
	"resume-ats-go/internal/outbox"
	"resume-ats-go/internal/storage/models"
	"resume-ats-go/internal/validation"
)

// ErrMailDisabled 未启用邮件投递
var ErrMailDisabled = errors.New("邮件投递未启用")

// ContactStore 联系消息的持久化
type ContactStore interface {
	CreateContactMessage(ctx context.Context, msg *models.ContactMessage, events ...*models.OutboxMessage) error
	GetContactMessage(ctx context.Context, id string) (*models.ContactMessage, error)
	UpdateContactStatus(ctx context.Context, id, status string, sendErr error) error
}

// ContactEvent contact.submitted 事件负载
type ContactEvent struct {
	ContactID string `json:"contact_id"`
}

// ContactEmail 把联系消息组装成发给站点所有者的邮件
func ContactEmail(msg *models.ContactMessage) Message {
	var body strings.Builder
	body.WriteString("New message received from the contact form\n\n")
	body.WriteString("Name: " + msg.Name + "\n")
	body.WriteString("Email: " + msg.Email + "\n\n")
	body.WriteString("Message:\n")
	body.WriteString(msg.Message + "\n")

	return Message{
		ReplyTo: msg.Email,
		Subject: "New Contact Form Message from " + msg.Name,
		Body:    body.String(),
	}
}

// QueueTarget 异步投递时 outbox 事件的目标
type QueueTarget struct {
	Exchange   string
	RoutingKey string
}

// ContactService 处理联系表单提交。
// 配置了存储和队列时落库并写入 outbox 异步投递，否则同步发送。
type ContactService struct {
	store  ContactStore
	sender Sender
	queue  *QueueTarget
	now    func() time.Time
}

// NewContactService store 和 queue 可以为 nil
func NewContactService(sender Sender, store ContactStore, queue *QueueTarget) *ContactService {
	return &ContactService{store: store, sender: sender, queue: queue, now: time.Now}
}

// Queued 是否走异步投递
func (s *ContactService) Queued() bool {
	return s.store != nil && s.queue != nil
}

// Submit 校验后提交。异步模式返回 PENDING 状态的消息，同步模式返回发送结果。
func (s *ContactService) Submit(ctx context.Context, form validation.ContactForm) (*models.ContactMessage, error) {
	form.Normalize()
	if err := validation.Struct(&form); err != nil {
		return nil, err
	}

	msg := &models.ContactMessage{
		ID:      uuid.NewString(),
		Name:    form.Name,
		Email:   form.Email,
		Message: form.Message,
		Status:  models.ContactStatusPending,
	}

	if s.Queued() {
		event, err := outbox.NewEvent(constants.AggregateContact, msg.ID, constants.EventContactSubmitted,
			s.queue.Exchange, s.queue.RoutingKey, ContactEvent{ContactID: msg.ID})
		if err != nil {
			return nil, err
		}
		if err := s.store.CreateContactMessage(ctx, msg, event); err != nil {
			return nil, fmt.Errorf("保存联系消息失败: %w", err)
		}
		metrics.ContactMessages.WithLabelValues("queued").Inc()
		return msg, nil
	}

	if s.sender == nil {
		metrics.ContactMessages.WithLabelValues(models.ContactStatusFailed).Inc()
		return nil, ErrMailDisabled
	}

	// 有数据库但没有队列时仍然留存记录
	if s.store != nil {
		if err := s.store.CreateContactMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("保存联系消息失败: %w", err)
		}
	}

	sendErr := s.sender.Send(ctx, ContactEmail(msg))
	status := models.ContactStatusSent
	if sendErr != nil {
		status = models.ContactStatusFailed
	}
	msg.Status = status
	msg.Attempts = 1
	if status == models.ContactStatusSent {
		sentAt := s.now().UTC()
		msg.SentAt = &sentAt
	}
	if s.store != nil {
		// 状态更新失败不影响已完成的投递
		_ = s.store.UpdateContactStatus(ctx, msg.ID, status, sendErr)
	}
	metrics.ContactMessages.WithLabelValues(status).Inc()

	if sendErr != nil {
		return msg, fmt.Errorf("发送邮件失败: %w", sendErr)
	}
	return msg, nil
}
