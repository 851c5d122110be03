package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/internal/config"
	"github.com/MrEthical07/goRecover/internal/httpapi"
	"github.com/MrEthical07/goRecover/internal/mailer"
)

// newMailer selects the transport named by cfg.Mail.Driver.
func newMailer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (goRecover.Mailer, error) {
	switch cfg.Mail.Driver {
	case "smtp":
		return mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
			TLS:      cfg.Mail.SMTPTLS,
		})
	case "ses":
		return mailer.NewSESFromEnvironment(ctx, mailer.SESConfig{
			Region:           cfg.Mail.SESRegion,
			From:             cfg.Mail.From,
			FromName:         cfg.Mail.FromName,
			ConfigurationSet: cfg.Mail.SESConfigSet,
		})
	case "log", "":
		return mailer.NewLog(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Mail.Driver)
	}
}

// newEventLog returns the synchronous event log.
func newEventLog(cfg *config.Config, client redis.UniversalClient, out io.Writer) (goRecover.EventLog, error) {
	switch cfg.Audit.Sink {
	case "redis", "":
		return goRecover.NewRedisStreamEventLog(client, cfg.Audit.Stream, cfg.Audit.MaxLen), nil
	case "json":
		return goRecover.NewJSONWriterEventLog(out), nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q", cfg.Audit.Sink)
	}
}

// newAuditMirror returns the asynchronous mirror, or nil when disabled.
func newAuditMirror(cfg *config.Config, out io.Writer) (goRecover.EventLog, error) {
	switch cfg.Audit.Mirror {
	case "":
		return nil, nil
	case "json":
		return goRecover.NewJSONWriterEventLog(out), nil
	default:
		return nil, fmt.Errorf("unknown audit mirror %q", cfg.Audit.Mirror)
	}
}

func newCaptcha(cfg *config.Config) httpapi.CaptchaVerifier {
	if cfg.Captcha.Secret == "" {
		return nil
	}
	return httpapi.NewRecaptcha(cfg.Captcha.Secret, cfg.Captcha.MinScore)
}

func newRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

var stdout io.Writer = os.Stdout
