package outbox

import (
	"fmt"

	"github.com/goccy/go-json"

	"resume-ats-go/internal/storage/models"
)

// NewEvent 将载荷序列化为一条待发布的 outbox 消息
func NewEvent(aggregateType, aggregateID, eventType, exchange, routingKey string, payload interface{}) (*models.OutboxMessage, error) {
	if exchange == "" {
		return nil, fmt.Errorf("事件 %s 缺少目标交换机", eventType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化事件 %s 失败: %w", eventType, err)
	}
	return &models.OutboxMessage{
		AggregateType:    aggregateType,
		AggregateID:      aggregateID,
		EventType:        eventType,
		Payload:          body,
		TargetExchange:   exchange,
		TargetRoutingKey: routingKey,
		Status:           models.OutboxStatusPending,
	}, nil
}
