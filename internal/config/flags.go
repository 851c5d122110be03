package config

import (
	"time"

	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

// Flags returns every recoveryd setting. Values resolve from the flag, then
// the environment, then recoveryd.toml.
func Flags() []cli.Flag {
	return append(DatabaseFlags(), []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringSliceFlag{
			Name:    "allowed-origins",
			Usage:   "Origins allowed by CORS (empty disables CORS)",
			Sources: source("ALLOWED_ORIGINS", "server.allowed_origins"),
		},
		&cli.BoolFlag{
			Name:    "secure-cookie",
			Value:   true,
			Usage:   "Mark the reset token cookie Secure",
			Sources: source("SECURE_COOKIE", "server.secure_cookie"),
		},
		&cli.BoolFlag{
			Name:    "metrics",
			Value:   true,
			Usage:   "Serve Prometheus metrics on /metrics",
			Sources: source("METRICS", "server.metrics"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Value:   "redis://localhost:6379/0",
			Usage:   "Redis URL for recovery records",
			Sources: source("REDIS_URL", "redis.url"),
		},
		&cli.StringFlag{
			Name:    "redis-prefix",
			Value:   "rcv",
			Usage:   "Key prefix for recovery records",
			Sources: source("REDIS_PREFIX", "redis.prefix"),
		},
		&cli.StringFlag{
			Name:    "roster-file",
			Value:   "./data/roster.toml",
			Usage:   "TOML roster used as the user directory",
			Sources: source("ROSTER_FILE", "directory.roster_file"),
		},
		// Mail flags
		&cli.StringFlag{
			Name:    "mail-driver",
			Value:   "log",
			Usage:   "Mail transport (smtp, ses, log)",
			Sources: source("MAIL_DRIVER", "mail.driver"),
		},
		&cli.StringFlag{
			Name:    "mail-from",
			Value:   "no-reply@localhost",
			Usage:   "Sender address",
			Sources: source("MAIL_FROM", "mail.from"),
		},
		&cli.StringFlag{
			Name:    "mail-from-name",
			Value:   "Password Reset",
			Usage:   "Sender display name",
			Sources: source("MAIL_FROM_NAME", "mail.from_name"),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: source("SMTP_HOST", "mail.smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: source("SMTP_PORT", "mail.smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: source("SMTP_USERNAME", "mail.smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: source("SMTP_PASSWORD", "mail.smtp.password"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require STARTTLS",
			Sources: source("SMTP_TLS", "mail.smtp.tls"),
		},
		&cli.StringFlag{
			Name:    "ses-region",
			Usage:   "AWS region for SES (defaults to the SDK chain)",
			Sources: source("SES_REGION", "mail.ses.region"),
		},
		&cli.StringFlag{
			Name:    "ses-configuration-set",
			Usage:   "SES configuration set",
			Sources: source("SES_CONFIGURATION_SET", "mail.ses.configuration_set"),
		},
		// Recovery flags
		&cli.DurationFlag{
			Name:    "code-ttl",
			Value:   15 * time.Minute,
			Usage:   "Lifetime of a recovery code",
			Sources: source("CODE_TTL", "recovery.code_ttl"),
		},
		&cli.IntFlag{
			Name:    "code-digits",
			Value:   6,
			Usage:   "Digits in a recovery code (6-10)",
			Sources: source("CODE_DIGITS", "recovery.code_digits"),
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Value:   10,
			Usage:   "Failed validations before a recovery locks",
			Sources: source("MAX_ATTEMPTS", "recovery.max_attempts"),
		},
		&cli.DurationFlag{
			Name:    "record-retention",
			Value:   24 * time.Hour,
			Usage:   "How long expired recoveries stay restartable",
			Sources: source("RECORD_RETENTION", "recovery.record_retention"),
		},
		&cli.StringFlag{
			Name:    "seal-key",
			Usage:   "32-byte hex key sealing outstanding codes",
			Sources: source("SEAL_KEY", "recovery.seal_key"),
		},
		&cli.StringFlag{
			Name:    "reset-url",
			Value:   "http://localhost:8080/reset/{uid}",
			Usage:   "Link template in recovery messages",
			Sources: source("RESET_URL", "recovery.reset_url"),
		},
		&cli.DurationFlag{
			Name:    "throttle-window",
			Value:   15 * time.Minute,
			Usage:   "Window for create throttling",
			Sources: source("THROTTLE_WINDOW", "recovery.throttle_window"),
		},
		&cli.IntFlag{
			Name:    "throttle-max",
			Value:   10,
			Usage:   "Creates allowed per window and key (0 disables)",
			Sources: source("THROTTLE_MAX", "recovery.throttle_max"),
		},
		&cli.DurationFlag{
			Name:    "upstream-timeout",
			Value:   10 * time.Second,
			Usage:   "Timeout for directory, database and mail calls",
			Sources: source("UPSTREAM_TIMEOUT", "recovery.upstream_timeout"),
		},
		// Token flags
		&cli.StringFlag{
			Name:    "token-signing-method",
			Value:   "ed25519",
			Usage:   "Reset token signing method (ed25519, hs256)",
			Sources: source("TOKEN_SIGNING_METHOD", "token.signing_method"),
		},
		&cli.StringFlag{
			Name:    "token-private-key",
			Usage:   "Hex key or PEM path (ed25519), or secret (hs256)",
			Sources: source("TOKEN_PRIVATE_KEY", "token.private_key"),
		},
		&cli.StringFlag{
			Name:    "token-public-key",
			Usage:   "Hex key or PEM path (ed25519)",
			Sources: source("TOKEN_PUBLIC_KEY", "token.public_key"),
		},
		&cli.DurationFlag{
			Name:    "token-ttl",
			Value:   10 * time.Minute,
			Usage:   "Reset token lifetime",
			Sources: source("TOKEN_TTL", "token.ttl"),
		},
		&cli.StringFlag{
			Name:    "token-issuer",
			Value:   "goRecover",
			Sources: source("TOKEN_ISSUER", "token.issuer"),
		},
		&cli.StringFlag{
			Name:    "token-audience",
			Value:   "password",
			Sources: source("TOKEN_AUDIENCE", "token.audience"),
		},
		// Captcha flags
		&cli.StringFlag{
			Name:    "recaptcha-secret",
			Usage:   "reCAPTCHA secret (empty disables the check)",
			Sources: source("RECAPTCHA_SECRET", "captcha.secret"),
		},
		&cli.FloatFlag{
			Name:    "recaptcha-min-score",
			Value:   0.5,
			Usage:   "Minimum reCAPTCHA v3 score",
			Sources: source("RECAPTCHA_MIN_SCORE", "captcha.min_score"),
		},
		// Audit flags
		&cli.StringFlag{
			Name:    "audit-sink",
			Value:   "redis",
			Usage:   "Event log (redis, json)",
			Sources: source("AUDIT_SINK", "audit.sink"),
		},
		&cli.StringFlag{
			Name:    "audit-stream",
			Value:   "rcv:events",
			Usage:   "Redis stream for the event log",
			Sources: source("AUDIT_STREAM", "audit.stream"),
		},
		&cli.IntFlag{
			Name:    "audit-max-len",
			Value:   100000,
			Usage:   "Approximate stream length cap (0 keeps everything)",
			Sources: source("AUDIT_MAX_LEN", "audit.max_len"),
		},
		&cli.StringFlag{
			Name:    "audit-mirror",
			Usage:   "Asynchronous mirror of the event log (json or empty)",
			Sources: source("AUDIT_MIRROR", "audit.mirror"),
		},
		// Password flags
		&cli.IntFlag{
			Name:    "password-min-length",
			Value:   10,
			Sources: source("PASSWORD_MIN_LENGTH", "password.min_length"),
		},
		&cli.IntFlag{
			Name:    "password-min-score",
			Value:   3,
			Usage:   "Minimum strength score (0-4)",
			Sources: source("PASSWORD_MIN_SCORE", "password.min_score"),
		},
		&cli.IntFlag{
			Name:    "password-history",
			Value:   5,
			Usage:   "Previous passwords rejected for reuse",
			Sources: source("PASSWORD_HISTORY", "password.history"),
		},
		&cli.DurationFlag{
			Name:    "password-max-age",
			Value:   90 * 24 * time.Hour,
			Usage:   "Password lifetime (0 never expires)",
			Sources: source("PASSWORD_MAX_AGE", "password.max_age"),
		},
	}...)
}

// DatabaseFlags are the settings the maintenance commands need.
func DatabaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-driver",
			Value:   "sqlite",
			Usage:   "Database driver (sqlite, postgres)",
			Sources: source("DATABASE_DRIVER", "database.driver"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/recoveryd.db",
			Usage:   "Database DSN",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
	}
}
