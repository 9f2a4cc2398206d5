package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const crashSubject = "[AI Posts] Crash detected"

type SMTPConfig struct {
	Host        string
	Port        int
	From        string
	To          string
	AppPassword string
}

// Notifier mails crash reports over implicit TLS.
type Notifier struct {
	cfg    SMTPConfig
	logger *zap.Logger
	send   func(ctx context.Context, msg []byte) error
}

func NewNotifier(cfg SMTPConfig, logger *zap.Logger) *Notifier {
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{cfg: cfg, logger: logger}
	n.send = n.sendTLS
	return n
}

// NotifyCrash reports a failed run. Failures to send are logged and returned,
// callers should not let them replace the run error.
func (n *Notifier) NotifyCrash(ctx context.Context, runErr error, runContext map[string]string) error {
	msg := BuildCrashMessage(n.cfg.From, n.cfg.To, runErr, runContext)
	if err := n.send(ctx, msg); err != nil {
		n.logger.Error("failed to send crash email", zap.Error(err))
		return err
	}
	n.logger.Info("crash email sent", zap.String("to", n.cfg.To))
	return nil
}

// BuildCrashMessage renders the RFC 5322 message for a crash report.
func BuildCrashMessage(from, to string, runErr error, runContext map[string]string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + crashSubject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(CrashBody(runErr, runContext))
	return []byte(b.String())
}

// CrashBody lists the error, the run context and the wrapped error chain.
func CrashBody(runErr error, runContext map[string]string) string {
	keys := make([]string, 0, len(runContext))
	for k := range runContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("\n[CRASH DETECTED]\n\nException:\n")
	if runErr != nil {
		b.WriteString(runErr.Error())
	}
	b.WriteString("\n\nContext:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, runContext[k])
	}
	b.WriteString("\nTraceback:\n")
	for i, e := range errorChain(runErr) {
		fmt.Fprintf(&b, "%s%T: %s\n", strings.Repeat("  ", i), e, e.Error())
	}
	return b.String()
}

func errorChain(err error) []error {
	var chain []error
	for err != nil {
		chain = append(chain, err)
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 {
				return chain
			}
			// The last wrapped error carries the cause; sentinels come first.
			err = errs[len(errs)-1]
		default:
			err = errors.Unwrap(err)
		}
	}
	return chain
}

func (n *Notifier) sendTLS(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 30 * time.Second},
		Config:    &tls.Config{ServerName: n.cfg.Host},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer c.Close()

	if err := c.Auth(smtp.PlainAuth("", n.cfg.From, n.cfg.AppPassword, n.cfg.Host)); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}
	if err := c.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(n.cfg.To); err != nil {
		return fmt.Errorf("smtp RCPT TO failed: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return c.Quit()
}
