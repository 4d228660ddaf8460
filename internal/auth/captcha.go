package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/metrics"
	"github.com/toonranks/toonranks/internal/resilience"
	"github.com/toonranks/toonranks/pkg/config"
)

// CaptchaVerifier checks a client captcha token
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// RecaptchaVerifier verifies tokens against the reCAPTCHA siteverify endpoint
type RecaptchaVerifier struct {
	cfg     config.CaptchaConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[siteverifyResponse]
}

// NewRecaptchaVerifier creates a verifier; a nil client gets one bounded by cfg.Timeout
func NewRecaptchaVerifier(cfg config.CaptchaConfig, client *http.Client) *RecaptchaVerifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &RecaptchaVerifier{
		cfg:     cfg,
		client:  client,
		breaker: resilience.NewBreaker[siteverifyResponse](resilience.BreakerConfig{Name: "recaptcha"}),
	}
}

// Verify implements CaptchaVerifier
func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	if !v.cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return apperr.ValidationField("captcha_token", "Captcha is required")
	}

	res, err := v.breaker.Execute(func() (siteverifyResponse, error) {
		return v.call(ctx, token, remoteIP)
	})
	if err != nil {
		metrics.OutboundChecksTotal.WithLabelValues("recaptcha", "error").Inc()
		return apperr.Upstream("Captcha verification failed", err)
	}
	metrics.OutboundChecksTotal.WithLabelValues("recaptcha", "ok").Inc()

	if !res.Success {
		e := apperr.ValidationField("captcha_token", "Captcha failed: "+strings.Join(res.ErrorCodes, ", "))
		e.Reasons = res.ErrorCodes
		return e
	}
	return nil
}

func (v *RecaptchaVerifier) call(ctx context.Context, token, remoteIP string) (siteverifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	form := url.Values{"secret": {v.cfg.Secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return siteverifyResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return siteverifyResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return siteverifyResponse{}, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}
	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return siteverifyResponse{}, fmt.Errorf("failed to decode siteverify response: %w", err)
	}
	return out, nil
}
