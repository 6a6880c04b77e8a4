package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/offmarket/offmarket/internal/config"
	"github.com/offmarket/offmarket/internal/domain"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

type SMTPNotifier struct {
	client      sender
	from        string
	frontendURL string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewSMTPNotifier(cfg config.Config, logger *zap.Logger) (*SMTPNotifier, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithTimeout(cfg.MailSendTimeout),
	}
	if cfg.SMTPSecure {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.SMTPUser),
			gomail.WithPassword(cfg.SMTPPassword),
		)
	}

	client, err := gomail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return newSMTPNotifier(client, cfg, logger), nil
}

func newSMTPNotifier(client sender, cfg config.Config, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		client:      client,
		from:        cfg.MailFrom,
		frontendURL: cfg.FrontendURL,
		timeout:     cfg.MailSendTimeout,
		logger:      logger,
	}
}

func (n *SMTPNotifier) SendPriceDropEmail(ctx context.Context, drop domain.PriceDrop) (string, error) {
	rendered, err := Render(drop, n.frontendURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSend, err)
	}

	msg := gomail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return "", fmt.Errorf("%w: sender %q: %v", domain.ErrSend, n.from, err)
	}
	if err := msg.To(rendered.To); err != nil {
		return "", fmt.Errorf("%w: recipient %q: %v", domain.ErrSend, rendered.To, err)
	}
	msg.Subject(rendered.Subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(gomail.TypeTextHTML, rendered.HTML)
	msg.AddAlternativeString(gomail.TypeTextPlain, rendered.Text)

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSend, err)
	}

	id := msg.GetMessageID()
	n.logger.Debug("price drop email sent", zap.String("to", rendered.To), zap.String("message_id", id))
	return id, nil
}
