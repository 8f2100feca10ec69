// Package mailer 联系表单邮件投递：SMTP 发送、熔断与限流，以及队列消费者。
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"resume-ats-go/internal/config"
	"resume-ats-go/internal/logger"
	"resume-ats-go/internal/metrics"
	"resume-ats-go/pkg/ratelimit"
)

const (
	defaultSMTPTimeout    = 15 * time.Second
	defaultBreakerTimeout = 60 * time.Second
	defaultBreakerFails   = 3
	defaultSendPerMinute  = 20
)

// Message 一封纯文本邮件
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	Body    string
}

// Sender 邮件发送接口
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer 通过 SMTP 发送邮件，连续失败后熔断
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
	startTLS bool
	timeout  time.Duration

	breaker *gobreaker.CircuitBreaker[interface{}]
	limiter *ratelimit.TokenBucket
	log     zerolog.Logger
}

// NewSMTPMailer 创建 SMTP 发送器，password 由 ResolvePassword 得到
func NewSMTPMailer(cfg config.MailConfig, password string) *SMTPMailer {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	to := cfg.To
	if to == "" {
		to = from
	}
	perMinute := cfg.SendPerMinute
	if perMinute <= 0 {
		perMinute = defaultSendPerMinute
	}
	fails := cfg.BreakerMaxFailures
	if fails <= 0 {
		fails = defaultBreakerFails
	}

	m := &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Username,
		password: password,
		from:     from,
		to:       to,
		startTLS: cfg.StartTLS,
		timeout:  config.GetDuration(cfg.Timeout, defaultSMTPTimeout),
		limiter:  ratelimit.NewTokenBucket(perMinute, 0).WithRetryPolicy(time.Second, 2),
		log:      logger.Logger.With().Str("component", "smtp_mailer").Logger(),
	}
	m.breaker = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     config.GetDuration(cfg.BreakerOpenTimeout, defaultBreakerTimeout),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(fails)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("SMTP熔断器状态变化")
		},
	})
	return m
}

// DefaultFrom 发件地址
func (m *SMTPMailer) DefaultFrom() string { return m.from }

// DefaultTo 收件地址
func (m *SMTPMailer) DefaultTo() string { return m.to }

// BreakerState 熔断器当前状态
func (m *SMTPMailer) BreakerState() string {
	return m.breaker.State().String()
}

// Send 限流后经熔断器发送，临时错误按退避重试
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = m.from
	}
	if msg.To == "" {
		msg.To = m.to
	}
	if msg.From == "" || msg.To == "" {
		return errors.New("发件人或收件人为空")
	}

	start := time.Now()
	defer func() { metrics.RecordMailSend(time.Since(start)) }()

	return m.limiter.RetryWithBackoff(ctx, func() error {
		_, err := m.breaker.Execute(func() (interface{}, error) {
			return nil, m.sendSMTP(ctx, msg)
		})
		return err
	})
}

func (m *SMTPMailer) sendSMTP(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(m.host, fmt.Sprintf("%d", m.port))

	dialer := &net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(m.timeout))

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if m.startTLS {
		if err := client.StartTLS(&tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if m.username != "" && m.password != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := w.Write([]byte(buildMessage(msg, time.Now()))); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// 邮件已被接受，QUIT 失败不影响结果
	_ = client.Quit()
	return nil
}

// buildMessage 组装 RFC 5322 文本
func buildMessage(msg Message, now time.Time) string {
	var b strings.Builder
	b.WriteString("From: " + msg.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	if msg.ReplyTo != "" {
		b.WriteString("Reply-To: " + sanitizeHeader(msg.ReplyTo) + "\r\n")
	}
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", sanitizeHeader(msg.Subject)) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.String()
}

// sanitizeHeader 防止头部注入
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
