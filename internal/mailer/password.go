package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/fernet/fernet-go"

	"resume-ats-go/internal/config"
)

// ErrNoPassword 既没有明文密码也没有可解密的密码文件
var ErrNoPassword = errors.New("未配置SMTP密码")

// DecryptPassword 用 Fernet 密钥解密令牌，令牌不校验有效期
func DecryptPassword(key string, token []byte) (string, error) {
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return "", fmt.Errorf("EMAIL_KEY 无效: %w", err)
	}
	msg := fernet.VerifyAndDecrypt(bytes.TrimSpace(token), -1, []*fernet.Key{k})
	if msg == nil {
		return "", errors.New("解密SMTP密码失败")
	}
	return string(msg), nil
}

// ResolvePassword 明文密码优先，否则用 EMAIL_KEY 解密 password_file
func ResolvePassword(cfg config.MailConfig) (string, error) {
	if cfg.Password != "" {
		return cfg.Password, nil
	}
	if cfg.PasswordFile == "" {
		return "", ErrNoPassword
	}
	if cfg.FernetKey == "" {
		return "", fmt.Errorf("%w: 缺少 %s", ErrNoPassword, config.EnvEmailKey)
	}
	token, err := os.ReadFile(cfg.PasswordFile)
	if err != nil {
		return "", fmt.Errorf("读取密码文件失败: %w", err)
	}
	return DecryptPassword(cfg.FernetKey, token)
}
