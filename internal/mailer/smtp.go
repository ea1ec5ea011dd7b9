package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

var ErrNoTransport = errors.New("mail transport is not configured")

// Message is one outgoing email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// TransportConfig selects the outbound mail transport. Host takes precedence
// over Service; with neither set there is no transport.
type TransportConfig struct {
	Host    string
	Port    int
	Secure  bool
	Service string
	User    string
	Pass    string
	From    string
}

// SMTPSender delivers mail over SMTP. With Secure it speaks implicit TLS,
// otherwise it upgrades with STARTTLS when the server offers it.
type SMTPSender struct {
	Host   string
	Port   int
	Secure bool
	User   string
	Pass   string
	From   string
}

// NewSender resolves cfg to a sender. ErrNoTransport means mail is off.
func NewSender(cfg TransportConfig) (*SMTPSender, error) {
	s := &SMTPSender{
		Host:   strings.TrimSpace(cfg.Host),
		Port:   cfg.Port,
		Secure: cfg.Secure,
		User:   cfg.User,
		Pass:   cfg.Pass,
		From:   cfg.From,
	}

	if s.Host == "" {
		if strings.TrimSpace(cfg.Service) == "" {
			return nil, ErrNoTransport
		}
		p, ok := LookupProvider(cfg.Service)
		if !ok {
			return nil, fmt.Errorf("unknown mail service %q", cfg.Service)
		}
		s.Host, s.Port, s.Secure = p.Host, p.Port, p.Secure
		if cfg.User == "" || cfg.Pass == "" {
			return nil, fmt.Errorf("mail service %q needs user and password", cfg.Service)
		}
	}

	if s.Port == 0 {
		if s.Secure {
			s.Port = 465
		} else {
			s.Port = 587
		}
	}
	if s.From == "" {
		s.From = s.User
	}
	if s.From == "" {
		return nil, fmt.Errorf("mail sender address is empty")
	}
	return s, nil
}

func (s *SMTPSender) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Send delivers msg. The whole SMTP dialogue is bounded by ctx's deadline.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.Addr(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tlsCfg := &tls.Config{ServerName: s.Host, MinVersion: tls.VersionTLS12}
	if s.Secure {
		conn = tls.Client(conn, tlsCfg)
	}

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if !s.Secure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsCfg); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if s.User != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.User, s.Pass, s.Host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(s.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(s.compose(msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}

func (s *SMTPSender) compose(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.HTML, "\n", "\r\n"))
	return []byte(b.String())
}
