package constants

const (
	// ServiceName 服务名，用于日志、追踪和横幅
	ServiceName = "resume-ats"
	// ServiceBanner 根路径返回的描述
	ServiceBanner = "Resume ATS scoring backend running"

	// EventResumeAnalyzed 简历分析完成事件
	EventResumeAnalyzed = "resume.analyzed"
	// EventContactSubmitted 联系表单提交事件
	EventContactSubmitted = "contact.submitted"

	// AggregateAnalysis outbox 聚合类型：分析记录
	AggregateAnalysis = "analysis"
	// AggregateContact outbox 聚合类型：联系消息
	AggregateContact = "contact_message"
)
