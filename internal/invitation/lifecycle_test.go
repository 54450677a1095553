package invitation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dinnerhop-bot/internal/apperrors"
	"dinnerhop-bot/internal/backend"
	"dinnerhop-bot/internal/journal"
	"dinnerhop-bot/internal/models"
	"dinnerhop-bot/internal/payments"
)

type fakeAPI struct {
	accepted map[string]bool
	resp     backend.InvitationResponse
	calls    []string
}

func (f *fakeAPI) accept(key string) (backend.InvitationResponse, error) {
	if f.accepted[key] {
		return backend.InvitationResponse{}, apperrors.FromResponse(409, []byte(`{"detail":"Invitation already accepted"}`))
	}
	f.accepted[key] = true
	return f.resp, nil
}

func (f *fakeAPI) AcceptInvitationByRegistration(ctx context.Context, id string) (backend.InvitationResponse, error) {
	f.calls = append(f.calls, "by-registration "+id)
	return f.accept(id)
}

func (f *fakeAPI) AcceptInvitationByID(ctx context.Context, id string) (backend.InvitationResponse, error) {
	f.calls = append(f.calls, "by-id "+id)
	return f.accept(id)
}

func (f *fakeAPI) RevokeInvitation(ctx context.Context, id string) (backend.InvitationResponse, error) {
	f.calls = append(f.calls, "revoke "+id)
	if f.accepted["revoked:"+id] {
		return backend.InvitationResponse{}, apperrors.FromResponse(410, nil)
	}
	f.accepted["revoked:"+id] = true
	return backend.InvitationResponse{Status: "revoked"}, nil
}

type fakePayments struct {
	reqs []payments.StartRequest
}

func (f *fakePayments) Start(ctx context.Context, req payments.StartRequest) (payments.Result, error) {
	f.reqs = append(f.reqs, req)
	return payments.Result{Outcome: payments.OutcomeRedirected, RedirectURL: "https://pay"}, nil
}

func amount(v int64) *int64 { return &v }

func TestAcceptByRegistrationStartsPaymentWithOverride(t *testing.T) {
	api := &fakeAPI{accepted: map[string]bool{}, resp: backend.InvitationResponse{
		Status:                "accepted",
		RegistrationID:        "r9",
		PaymentCreateEndpoint: "/registrations/r9/payments",
		AmountDueCents:        amount(1200),
	}}
	pay := &fakePayments{}
	mem := &journal.Memory{}
	l := New(api, pay, mem)

	out, err := l.Accept(context.Background(), models.Invitation{ID: "i1", RegistrationID: "r9", EventID: "e1"}, 0)
	require.NoError(t, err)
	require.False(t, out.AlreadySettled)
	require.Equal(t, payments.OutcomeRedirected, out.Payment.Outcome)
	require.Equal(t, []string{"by-registration r9"}, api.calls)
	require.Equal(t, []payments.StartRequest{{RegistrationID: "r9", FeeCents: 1200, CreateEndpoint: "/registrations/r9/payments"}}, pay.reqs)
	require.Eventually(t, func() bool { return len(mem.Entries()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, journal.KindInvitationAccepted, mem.Entries()[0].Kind)
}

func TestAcceptByIDWhenNoRegistration(t *testing.T) {
	api := &fakeAPI{accepted: map[string]bool{}, resp: backend.InvitationResponse{Status: "accepted", RegistrationID: "r3"}}
	pay := &fakePayments{}
	l := New(api, pay, nil)

	out, err := l.Accept(context.Background(), models.Invitation{ID: "i2"}, 900)
	require.NoError(t, err)
	require.Equal(t, "r3", out.RegistrationID)
	require.Equal(t, []string{"by-id i2"}, api.calls)
	require.Equal(t, payments.Outcome(""), out.Payment.Outcome)
	require.Empty(t, pay.reqs)
}

func TestHintWithoutAmountUsesEventFee(t *testing.T) {
	api := &fakeAPI{accepted: map[string]bool{}, resp: backend.InvitationResponse{
		Status:                "accepted",
		RegistrationID:        "r3",
		PaymentCreateEndpoint: "/payments/create",
	}}
	pay := &fakePayments{}
	l := New(api, pay, nil)

	_, err := l.Accept(context.Background(), models.Invitation{ID: "i2"}, 900)
	require.NoError(t, err)
	require.Equal(t, []payments.StartRequest{{RegistrationID: "r3", FeeCents: 900, CreateEndpoint: "/payments/create"}}, pay.reqs)
}

// repeatAPI answers every accept with 200, as some deployments do.
type repeatAPI struct{ fakeAPI }

func (r *repeatAPI) AcceptInvitationByRegistration(_ context.Context, id string) (backend.InvitationResponse, error) {
	return backend.InvitationResponse{Status: "accepted", RegistrationID: id}, nil
}

func TestRepeatedAcceptWithoutHintNeverPays(t *testing.T) {
	pay := &fakePayments{}
	l := New(&repeatAPI{}, pay, nil)
	inv := models.Invitation{ID: "i1", RegistrationID: "r1"}

	for i := 0; i < 2; i++ {
		out, err := l.Accept(context.Background(), inv, 1500)
		require.NoError(t, err)
		require.Equal(t, "r1", out.RegistrationID)
	}
	require.Empty(t, pay.reqs)
}

func TestAcceptTwiceIsIdempotent(t *testing.T) {
	api := &fakeAPI{accepted: map[string]bool{}, resp: backend.InvitationResponse{
		Status:                "accepted",
		PaymentCreateEndpoint: "/payments/create",
	}}
	pay := &fakePayments{}
	l := New(api, pay, nil)
	inv := models.Invitation{ID: "i1", RegistrationID: "r1"}

	first, err := l.Accept(context.Background(), inv, 0)
	require.NoError(t, err)
	require.False(t, first.AlreadySettled)

	second, err := l.Accept(context.Background(), inv, 0)
	require.NoError(t, err)
	require.True(t, second.AlreadySettled)
	require.Len(t, pay.reqs, 1)
}

func TestAcceptOfRevokedInvitationIsSettled(t *testing.T) {
	api := &fakeAPI{accepted: map[string]bool{}, resp: backend.InvitationResponse{Status: "Revoked"}}
	pay := &fakePayments{}
	l := New(api, pay, nil)

	out, err := l.Accept(context.Background(), models.Invitation{ID: "i1"}, 1000)
	require.NoError(t, err)
	require.True(t, out.AlreadySettled)
	require.Empty(t, pay.reqs)
}

func TestAcceptAuthErrorIsNotSettled(t *testing.T) {
	api := &authAPI{}
	l := New(api, nil, nil)
	_, err := l.Accept(context.Background(), models.Invitation{ID: "i1"}, 0)
	require.True(t, apperrors.IsAuth(err))
}

type authAPI struct{ fakeAPI }

func (authAPI) AcceptInvitationByID(context.Context, string) (backend.InvitationResponse, error) {
	return backend.InvitationResponse{}, apperrors.FromResponse(401, nil)
}

func TestDeclineNeverPays(t *testing.T) {
	api := &fakeAPI{accepted: map[string]bool{}}
	pay := &fakePayments{}
	l := New(api, pay, nil)
	inv := models.Invitation{ID: "i1"}

	out, err := l.Decline(context.Background(), inv)
	require.NoError(t, err)
	require.False(t, out.AlreadySettled)

	out, err = l.Decline(context.Background(), inv)
	require.NoError(t, err)
	require.True(t, out.AlreadySettled)
	require.Empty(t, pay.reqs)
	require.Equal(t, []string{"revoke i1", "revoke i1"}, api.calls)
}
