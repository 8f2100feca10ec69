package mailer

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-ats-go/internal/config"
	"resume-ats-go/pkg/ratelimit"
)

// fakeSMTP 最小化的 SMTP 服务端，rcptReply 决定 RCPT 的应答
type fakeSMTP struct {
	ln        net.Listener
	mu        sync.Mutex
	rcptReply func(n int) string
	rcptCount int
	messages  []string
}

func newFakeSMTP(t *testing.T, rcptReply func(n int) string) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeSMTP{ln: ln, rcptReply: rcptReply}
	if f.rcptReply == nil {
		f.rcptReply = func(int) string { return "250 OK" }
	}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeSMTP) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

	reply("220 localhost ESMTP fake")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			f.mu.Lock()
			f.rcptCount++
			n := f.rcptCount
			f.mu.Unlock()
			reply(f.rcptReply(n))
		case cmd == "DATA":
			reply("354 go ahead")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			f.mu.Lock()
			f.messages = append(f.messages, data.String())
			f.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func (f *fakeSMTP) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeSMTP) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func testMailer(f *fakeSMTP, breakerFails int) *SMTPMailer {
	m := NewSMTPMailer(config.MailConfig{
		SMTPHost:           "127.0.0.1",
		SMTPPort:           f.port(),
		From:               "site@example.com",
		Timeout:            "2s",
		BreakerMaxFailures: breakerFails,
		BreakerOpenTimeout: "1m",
		SendPerMinute:      600,
	}, "")
	m.limiter = ratelimit.NewTokenBucket(600, 100).WithRetryPolicy(10*time.Millisecond, 2)
	return m
}

func TestSMTPMailerSend(t *testing.T) {
	f := newFakeSMTP(t, nil)
	m := testMailer(f, 3)

	assert.Equal(t, "site@example.com", m.DefaultTo(), "未配置收件人时发给自己")

	err := m.Send(context.Background(), Message{
		ReplyTo: "ada@example.com",
		Subject: "New Contact Form Message from Ada",
		Body:    "line one\nline two",
	})
	require.NoError(t, err)

	msgs := f.received()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "From: site@example.com\r\n")
	assert.Contains(t, msgs[0], "To: site@example.com\r\n")
	assert.Contains(t, msgs[0], "Reply-To: ada@example.com\r\n")
	assert.Contains(t, msgs[0], "Subject: New Contact Form Message from Ada\r\n")
	assert.Contains(t, msgs[0], "line one\r\nline two")
	assert.Equal(t, "closed", m.BreakerState())
}

func TestSMTPMailerRetriesTransientErrors(t *testing.T) {
	f := newFakeSMTP(t, func(n int) string {
		if n == 1 {
			return "451 try again later"
		}
		return "250 OK"
	})
	m := testMailer(f, 5)

	require.NoError(t, m.Send(context.Background(), Message{Subject: "s", Body: "b"}))
	assert.Len(t, f.received(), 1)
}

func TestSMTPMailerBreakerOpens(t *testing.T) {
	f := newFakeSMTP(t, func(int) string { return "550 mailbox unavailable" })
	m := testMailer(f, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := m.Send(ctx, Message{Subject: "s", Body: "b"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "550")
	}

	err := m.Send(ctx, Message{Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, "open", m.BreakerState())
}

func TestSMTPMailerRequiresAddresses(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{SMTPHost: "127.0.0.1", SMTPPort: 25}, "")
	assert.Error(t, m.Send(context.Background(), Message{Subject: "s"}))
}

func TestBuildMessage(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	out := buildMessage(Message{
		From:    "a@example.com",
		To:      "b@example.com",
		Subject: "Hi\r\nBcc: evil@example.com",
		Body:    "x\r\ny",
	}, now)

	assert.NotContains(t, out, "\r\nBcc:")
	assert.Contains(t, out, "Date: "+now.Format(time.RFC1123Z))
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nx\r\ny"))
}

func TestBuildMessageEncodesNonASCIISubject(t *testing.T) {
	out := buildMessage(Message{From: "a@x.io", To: "b@x.io", Subject: "来自 张三"}, time.Now())
	assert.Contains(t, out, "Subject: =?utf-8?q?")
}
