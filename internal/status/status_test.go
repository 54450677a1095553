package status

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dinnerhop-bot/internal/models"
)

func reg(status, payment string) models.Registration {
	r := models.Registration{ID: "r1", Status: status}
	if payment != "" {
		r.Payment = &models.Payment{Status: payment}
	}
	return r
}

func TestInvitedWinsOverPayment(t *testing.T) {
	for _, st := range []string{"invited", "PENDING", " Invited "} {
		for _, pay := range []string{"", "paid", "succeeded", "refunded"} {
			c := Classify(reg(st, pay))
			require.True(t, c.IsInvited, "%s/%s", st, pay)
			require.False(t, c.IsPaid)
			require.False(t, c.IsCancelled)
			require.Equal(t, "Invited", c.Label)
			require.Equal(t, ToneInfo, c.Tone)
		}
	}
}

func TestCancellationWinsOverPayment(t *testing.T) {
	c := Classify(reg("cancelled_by_user", "paid"))
	require.True(t, c.IsCancelled)
	require.False(t, c.IsPaid)
	require.Equal(t, "Cancelled (you)", c.Label)
	require.Equal(t, ToneDanger, c.Tone)
}

func TestClassifyLabels(t *testing.T) {
	tests := []struct {
		status, payment string
		label           string
		tone            Tone
		paid, cancelled bool
	}{
		{"cancelled_admin", "", "Cancelled (organizer)", ToneDanger, false, true},
		{"expired", "", "Expired", ToneDanger, false, true},
		{"refunded", "", "Refunded", ToneDanger, false, true},
		{"registered", "refunded", "Refunded", ToneDanger, false, true},
		{"registered", "succeeded", "Paid", ToneSuccess, true, false},
		{"Paid", "", "Paid", ToneSuccess, true, false},
		{"pending_payment", "pending", "registered", ToneNeutral, false, false},
		{"registered", "", "registered", ToneNeutral, false, false},
		{"", "", "registered", ToneNeutral, false, false},
		{"waitlisted", "", "waitlisted", ToneNeutral, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.payment, func(t *testing.T) {
			c := Classify(reg(tt.status, tt.payment))
			require.Equal(t, tt.label, c.Label)
			require.Equal(t, tt.tone, c.Tone)
			require.Equal(t, tt.paid, c.IsPaid)
			require.Equal(t, tt.cancelled, c.IsCancelled)
		})
	}
}

func TestRefundPending(t *testing.T) {
	r := reg("cancelled_by_user", "paid")
	r.RefundFlag = true
	require.True(t, Classify(r).RefundPending)

	r = reg("refunded", "")
	r.RefundFlag = true
	require.False(t, Classify(r).RefundPending)

	r = reg("cancelled_admin", "refunded")
	r.RefundFlag = true
	require.False(t, Classify(r).RefundPending)
}

func TestAwaitingPayment(t *testing.T) {
	require.True(t, AwaitingPayment(reg("pending_payment", "")))
	require.True(t, AwaitingPayment(reg("registered", "failed")))
	require.False(t, AwaitingPayment(reg("registered", "covered_by_team")))
	require.False(t, AwaitingPayment(reg("pending_payment", "paid")))
	require.False(t, AwaitingPayment(reg("cancelled_by_user", "pending")))
	require.False(t, AwaitingPayment(reg("invited", "pending")))
}

func TestClassifyInvitation(t *testing.T) {
	require.True(t, InvitationOpen("invited"))
	require.False(t, InvitationOpen("accepted"))
	require.True(t, ClassifyInvitation("revoked").IsCancelled)
	require.Equal(t, "superseded", ClassifyInvitation("superseded").Label)
}
