// Package notify は申請者への完了通知メールを扱います。
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/mail"
	"net/url"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// ErrMailerNotConfigured は SMTP が設定されていない場合に返されます。
var ErrMailerNotConfigured = errors.New("mailer not configured")

// Mailer はメールを1通送信します。
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer は shoutrrr の smtp サービスで送信します。
// smtpURL には宛先を含めず、送信ごとに toaddresses を付け足します。
type SMTPMailer struct {
	base    *url.URL
	from    string
	timeout time.Duration
}

// NewSMTPMailer は SMTPMailer を作成します。smtpURL が空なら nil を返します。
func NewSMTPMailer(smtpURL, from string, timeout time.Duration) (*SMTPMailer, error) {
	if smtpURL == "" {
		return nil, nil
	}
	u, err := url.Parse(smtpURL)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_URL: %w", err)
	}
	if u.Scheme != "smtp" {
		return nil, fmt.Errorf("SMTP_URL must use the smtp scheme (got %q)", u.Scheme)
	}
	if from != "" {
		if _, err := mail.ParseAddress(from); err != nil {
			return nil, fmt.Errorf("invalid MAIL_FROM: %w", err)
		}
	}
	return &SMTPMailer{base: u, from: from, timeout: timeout}, nil
}

// serviceURL は宛先付きの shoutrrr URL を組み立てます。
func (m *SMTPMailer) serviceURL(to string) string {
	u := *m.base
	q := u.Query()
	q.Set("toaddresses", to)
	if m.from != "" {
		q.Set("fromaddress", m.from)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if m == nil {
		return ErrMailerNotConfigured
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sender, err := shoutrrr.CreateSender(m.serviceURL(addr.Address))
	if err != nil {
		// URL に認証情報が含まれるため元のエラー文は返さない
		return fmt.Errorf("failed to create smtp sender")
	}
	if m.timeout > 0 {
		sender.Timeout = m.timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	params := stypes.Params{}
	params.SetTitle(subject)
	for _, e := range sender.Send(body, &params) {
		if e != nil {
			return fmt.Errorf("smtp send: %w", e)
		}
	}
	return nil
}
