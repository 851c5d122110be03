package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goRecover "github.com/MrEthical07/goRecover"
)

// DefaultRecaptchaEndpoint is Google's verification endpoint.
const DefaultRecaptchaEndpoint = "https://www.google.com/recaptcha/api/siteverify"

// CaptchaVerifier checks a client-side challenge token. Verify returns
// goRecover.ErrCaptchaFailed for a rejected token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// Recaptcha verifies reCAPTCHA tokens.
type Recaptcha struct {
	secret   string
	endpoint string
	client   *http.Client
	minScore float64
}

// NewRecaptcha returns a verifier for secret. minScore applies to v3
// responses only; v2 responses carry no score.
func NewRecaptcha(secret string, minScore float64) *Recaptcha {
	return &Recaptcha{
		secret:   secret,
		endpoint: DefaultRecaptchaEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		minScore: minScore,
	}
}

// WithEndpoint overrides the verification URL.
func (r *Recaptcha) WithEndpoint(endpoint string) *Recaptcha {
	r.endpoint = endpoint
	return r
}

type recaptchaResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

func (r *Recaptcha) Verify(ctx context.Context, token, remoteIP string) error {
	form := url.Values{
		"secret":   {r.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("recaptcha request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recaptcha status %d", resp.StatusCode)
	}

	var out recaptchaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("recaptcha decode: %w", err)
	}
	if !out.Success {
		return goRecover.ErrCaptchaFailed
	}
	if out.Score != nil && *out.Score < r.minScore {
		return goRecover.ErrCaptchaFailed
	}
	return nil
}
