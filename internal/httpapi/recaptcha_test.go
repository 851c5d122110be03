package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goRecover "github.com/MrEthical07/goRecover"
)

func recaptchaServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "secret", r.PostForm.Get("secret"))
		assert.Equal(t, "token", r.PostForm.Get("response"))
		assert.Equal(t, "203.0.113.9", r.PostForm.Get("remoteip"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRecaptcha_Verify(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
		anyErr  bool
	}{
		{name: "v2 success", status: 200, body: `{"success":true}`},
		{name: "v3 high score", status: 200, body: `{"success":true,"score":0.9}`},
		{name: "v3 low score", status: 200, body: `{"success":true,"score":0.1}`, wantErr: goRecover.ErrCaptchaFailed},
		{name: "rejected", status: 200, body: `{"success":false,"error-codes":["invalid-input-response"]}`, wantErr: goRecover.ErrCaptchaFailed},
		{name: "server error", status: 502, body: ``, anyErr: true},
		{name: "bad json", status: 200, body: `{`, anyErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := recaptchaServer(t, tc.status, tc.body)
			r := NewRecaptcha("secret", 0.5).WithEndpoint(srv.URL)

			err := r.Verify(context.Background(), "token", "203.0.113.9")

			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.anyErr:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, goRecover.ErrCaptchaFailed)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		goRecover.ErrNotFound:            http.StatusNotFound,
		goRecover.ErrAccountLocked:       http.StatusNotFound,
		goRecover.ErrInvalidCode:         http.StatusBadRequest,
		goRecover.ErrMethodUnavailable:   http.StatusBadRequest,
		goRecover.ErrRateLimited:         http.StatusTooManyRequests,
		goRecover.ErrExpired:             http.StatusGone,
		goRecover.ErrUpstreamUnavailable: http.StatusInternalServerError,
		&goRecover.PolicyError{}:         http.StatusUnprocessableEntity,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
