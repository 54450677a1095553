package server

import (
	"context"
	"html/template"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"dinnerhop-bot/internal/config"
	"dinnerhop-bot/internal/payments/stub"
	"dinnerhop-bot/internal/util"
)

// Notifier is told when a payer comes back from checkout.
type Notifier interface {
	PaymentReturned(ctx context.Context, registrationID, status string) bool
}

var pages = template.Must(template.New("checkout").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Test checkout</title></head><body>
<h2>Test checkout ({{.Provider}})</h2>
<p>Invoice: {{.Invoice}}</p>
<p>Registration: {{.Registration}}</p>
<p><a href="{{.PaidURL}}">Pay</a> | <a href="{{.CancelURL}}">Cancel</a></p>
</body></html>`))

func init() {
	template.Must(pages.New("returned").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Payment</title></head><body>
<h2>{{if eq .Status "paid"}}Payment received{{else}}Payment not completed{{end}}</h2>
<p>You can go back to the chat now.</p>
</body></html>`))
}

// Router serves the stub checkout page and the payment return callback.
func Router(cfg config.Config, n Notifier) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetHTMLTemplate(pages)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "ts": util.NowISO()})
	})

	r.GET("/pay/stub", func(c *gin.Context) {
		invoice := c.Query("invoice")
		reg := c.Query("reg")
		if invoice == "" || reg == "" {
			c.String(http.StatusBadRequest, "invoice and reg required")
			return
		}
		if !util.VerifyHMAC(cfg.PaymentReturnSecret, stub.CheckoutMessage(invoice, reg), c.Query("sig")) {
			c.String(http.StatusForbidden, "invalid signature")
			return
		}
		c.HTML(http.StatusOK, "checkout", gin.H{
			"Provider":     c.Query("provider"),
			"Invoice":      invoice,
			"Registration": reg,
			"PaidURL":      ReturnURL(cfg, reg, "paid"),
			"CancelURL":    ReturnURL(cfg, reg, "cancelled"),
		})
	})

	r.GET("/payments/return", func(c *gin.Context) {
		reg := c.Query("reg")
		status := c.Query("status")
		if reg == "" || (status != "paid" && status != "cancelled") {
			c.String(http.StatusBadRequest, "reg and status required")
			return
		}
		if !util.VerifyHMAC(cfg.PaymentReturnSecret, stub.ReturnMessage(reg, status), c.Query("sig")) {
			c.String(http.StatusForbidden, "invalid signature")
			return
		}

		notified := n.PaymentReturned(c.Request.Context(), reg, status)
		if !notified {
			log.Printf("payment return for %s: no chat waiting", reg)
		}

		if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
			c.JSON(http.StatusOK, gin.H{
				"ok":              true,
				"registration_id": reg,
				"status":          status,
				"notified":        notified,
				"ts":              util.NowISO(),
			})
			return
		}
		c.HTML(http.StatusOK, "returned", gin.H{"Status": status})
	})

	return r
}

// ReturnURL is the signed link a checkout sends the payer back to.
func ReturnURL(cfg config.Config, registrationID, status string) string {
	q := url.Values{}
	q.Set("reg", registrationID)
	q.Set("status", status)
	q.Set("sig", util.HMACSHA256Hex(cfg.PaymentReturnSecret, stub.ReturnMessage(registrationID, status)))
	return cfg.PublicURL("/payments/return?" + q.Encode())
}

func New(cfg config.Config, n Notifier) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: Router(cfg, n),
	}
}
