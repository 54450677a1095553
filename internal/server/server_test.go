package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"dinnerhop-bot/internal/backend"
	"dinnerhop-bot/internal/config"
	"dinnerhop-bot/internal/payments/stub"
	"dinnerhop-bot/internal/util"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	known bool
}

func (f *fakeNotifier) PaymentReturned(_ context.Context, reg, status string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, reg+"="+status)
	return f.known
}

func setup(t *testing.T, n Notifier) (*gin.Engine, config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{PaymentReturnSecret: "s3cret", BasePublicURL: "https://bot.example.org"}
	return Router(cfg, n), cfg
}

func get(r *gin.Engine, target, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r, _ := setup(t, &fakeNotifier{})
	w := get(r, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCheckoutPageNeedsValidSignature(t *testing.T) {
	r, cfg := setup(t, &fakeNotifier{})

	w := get(r, "/pay/stub?invoice=inv1&reg=r1&sig=bad", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = get(r, "/pay/stub?reg=r1", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	sig := util.HMACSHA256Hex(cfg.PaymentReturnSecret, stub.CheckoutMessage("inv1", "r1"))
	w = get(r, "/pay/stub?invoice=inv1&reg=r1&provider=paypal&sig="+sig, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, "inv1")
	require.Contains(t, body, "paypal")
	require.Contains(t, body, "https://bot.example.org/payments/return?")
}

func TestStubCheckoutLinkIsAccepted(t *testing.T) {
	r, cfg := setup(t, &fakeNotifier{})
	p := stub.New(cfg.PaymentReturnSecret, "")

	resp, err := p.CreatePayment(context.Background(), "", backend.PaymentRequest{RegistrationID: "r1", Provider: "paypal"})
	require.NoError(t, err)
	u, err := url.Parse(resp.NextAction.URL)
	require.NoError(t, err)

	w := get(r, u.RequestURI(), "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPaymentReturnNotifies(t *testing.T) {
	n := &fakeNotifier{known: true}
	r, cfg := setup(t, n)

	u, err := url.Parse(ReturnURL(cfg, "r1", "paid"))
	require.NoError(t, err)

	w := get(r, u.RequestURI(), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, "paid", out["status"])
	require.Equal(t, true, out["notified"])
	require.Equal(t, []string{"r1=paid"}, n.calls)

	u, err = url.Parse(ReturnURL(cfg, "r1", "cancelled"))
	require.NoError(t, err)
	w = get(r, u.RequestURI(), "text/html")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "not completed"))
}

func TestPaymentReturnRejectsTampering(t *testing.T) {
	n := &fakeNotifier{}
	r, cfg := setup(t, n)

	sig := util.HMACSHA256Hex(cfg.PaymentReturnSecret, stub.ReturnMessage("r1", "cancelled"))
	w := get(r, "/payments/return?reg=r1&status=paid&sig="+sig, "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = get(r, "/payments/return?reg=r1&status=refunded&sig="+sig, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, n.calls)
}
