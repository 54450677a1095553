package registration

import (
	"context"
	"errors"
	"sync"
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
	mu   sync.Mutex
	solo []backend.SoloRequest
	team []backend.TeamRequest
	keys []string
	resp backend.RegistrationResponse
	err  error
}

func (f *fakeAPI) RegisterSolo(ctx context.Context, req backend.SoloRequest, key string) (backend.RegistrationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.solo = append(f.solo, req)
	f.keys = append(f.keys, key)
	return f.resp, f.err
}

func (f *fakeAPI) RegisterTeam(ctx context.Context, req backend.TeamRequest, key string) (backend.RegistrationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.team = append(f.team, req)
	f.keys = append(f.keys, key)
	return f.resp, f.err
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.solo) + len(f.team)
}

type fakeResolver struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeResolver) Resolve(context.Context) models.ProviderCatalog {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return models.ProviderCatalog{Providers: []string{"stripe"}, Default: "stripe"}
}

type fakePayments struct {
	reqs []payments.StartRequest
	res  payments.Result
	err  error
}

func (f *fakePayments) Start(ctx context.Context, req payments.StartRequest) (payments.Result, error) {
	f.reqs = append(f.reqs, req)
	return f.res, f.err
}

type refresher chan struct{}

func (r refresher) RefreshRegistrations(context.Context) { r <- struct{}{} }

func amount(v int64) *int64 { return &v }

func soloForm(course string) Form {
	return Form{Mode: models.ModeSolo, EventID: "e1", FeeCents: 1500, Solo: &SoloForm{CoursePreference: course}}
}

func TestMainCourseNeedsCapability(t *testing.T) {
	api := &fakeAPI{}
	o := New(api, nil, nil, nil, nil)

	_, err := o.Submit(context.Background(), soloForm("main"))
	require.True(t, apperrors.IsValidation(err))
	require.Zero(t, api.calls())

	f := soloForm("main")
	f.Solo.KitchenAvailable, f.Solo.MainCoursePossible = true, true
	require.NoError(t, o.Validate(f))

	f = soloForm("main")
	f.Profile = &models.Profile{KitchenAvailable: true, MainCoursePossible: true}
	require.NoError(t, o.Validate(f))

	f = soloForm("main")
	f.Profile = &models.Profile{KitchenAvailable: true}
	require.Error(t, o.Validate(f))
}

func TestCourseIsCaseInsensitive(t *testing.T) {
	api := &fakeAPI{resp: backend.RegistrationResponse{RegistrationID: "r1"}}
	o := New(api, nil, nil, nil, nil)

	err := o.Validate(soloForm(" Main "))
	require.True(t, apperrors.IsValidation(err))
	require.Contains(t, apperrors.UserMessage(err), "Main course needs a kitchen")

	f := soloForm("Main")
	f.Solo.KitchenAvailable, f.Solo.MainCoursePossible = true, true
	_, err = o.Submit(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, "main", api.solo[0].CoursePreference)
	require.Equal(t, "Main", f.Solo.CoursePreference)

	team := Form{Mode: models.ModeTeam, EventID: "e1", Team: &TeamForm{
		CookingLocation:  "Partner",
		CoursePreference: "DESSERT",
		PartnerExisting:  &PartnerExisting{Email: "ben@example.org"},
	}}
	require.NoError(t, o.Validate(team))
}

func TestTeamNeedsExactlyOnePartner(t *testing.T) {
	o := New(&fakeAPI{}, nil, nil, nil, nil)
	base := func() Form {
		return Form{Mode: models.ModeTeam, EventID: "e1", Team: &TeamForm{CookingLocation: LocationCreator}}
	}

	f := base()
	err := o.Validate(f)
	require.True(t, apperrors.IsValidation(err))
	require.Contains(t, apperrors.UserMessage(err), "needs a partner")

	f = base()
	f.Team.PartnerExisting = &PartnerExisting{Email: "ben@example.org"}
	f.Team.PartnerExternal = &PartnerExternal{Name: "Cleo", Email: "cleo@example.org"}
	require.Contains(t, apperrors.UserMessage(o.Validate(f)), "not both")

	f = base()
	f.Team.PartnerExternal = &PartnerExternal{Name: "Cleo"}
	e, ok := apperrors.As(o.Validate(f))
	require.True(t, ok)
	require.Equal(t, "partner_email", e.Fields[0].Field)

	f = base()
	f.Team.PartnerExisting = &PartnerExisting{Email: "ben@example.org"}
	require.NoError(t, o.Validate(f))
}

func TestFieldRules(t *testing.T) {
	o := New(&fakeAPI{}, nil, nil, nil, nil)
	err := o.Validate(Form{Mode: "duo"})
	e, ok := apperrors.As(err)
	require.True(t, ok)
	var names []string
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	require.Contains(t, names, "mode")
	require.Contains(t, names, "event_id")

	err = o.Validate(Form{Mode: models.ModeSolo, EventID: "e1", Solo: &SoloForm{CoursePreference: "soup"}})
	require.Contains(t, apperrors.UserMessage(err), "starter, main, dessert")
}

func TestSubmitSoloHandsOffToPayment(t *testing.T) {
	api := &fakeAPI{resp: backend.RegistrationResponse{RegistrationID: "r1", AmountDueCents: amount(2000)}}
	res := &fakeResolver{}
	pay := &fakePayments{res: payments.Result{Outcome: payments.OutcomeRedirected, RedirectURL: "https://pay", Provider: "stripe"}}
	refreshed := make(refresher, 1)
	mem := &journal.Memory{}
	o := New(api, res, pay, refreshed, mem)

	f := soloForm("dessert")
	f.Solo.DietaryPreference = " vegan "
	out, err := o.Submit(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, "r1", out.RegistrationID)
	require.Equal(t, payments.OutcomeRedirected, out.Payment.Outcome)

	require.Equal(t, backend.SoloRequest{EventID: "e1", CoursePreference: "dessert", DietaryPreference: "vegan"}, api.solo[0])
	require.NotEmpty(t, api.keys[0])
	require.Equal(t, []payments.StartRequest{{RegistrationID: "r1", FeeCents: 2000}}, pay.reqs)
	require.Equal(t, 1, res.calls)

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("refresh not triggered")
	}

	require.Eventually(t, func() bool { return len(mem.Entries()) == 2 }, time.Second, 5*time.Millisecond)
	kinds := []journal.Kind{}
	for _, e := range mem.Entries() {
		kinds = append(kinds, e.Kind)
	}
	require.ElementsMatch(t, []journal.Kind{journal.KindRegistered, journal.KindPaymentStarted}, kinds)
}

// slowJournal takes its time on every write.
type slowJournal struct{ delay time.Duration }

func (s slowJournal) Record(context.Context, journal.Entry) error {
	time.Sleep(s.delay)
	return nil
}

func TestSlowJournalDoesNotDelaySubmit(t *testing.T) {
	api := &fakeAPI{resp: backend.RegistrationResponse{RegistrationID: "r1", AmountDueCents: amount(1500)}}
	pay := &fakePayments{res: payments.Result{Outcome: payments.OutcomeRedirected}}
	o := New(api, &fakeResolver{}, pay, nil, slowJournal{delay: time.Second})

	start := time.Now()
	_, err := o.Submit(context.Background(), soloForm("dessert"))
	require.NoError(t, err)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Len(t, pay.reqs, 1)
}

func TestFeeFallsBackToForm(t *testing.T) {
	api := &fakeAPI{resp: backend.RegistrationResponse{RegistrationID: "r1"}}
	pay := &fakePayments{}
	o := New(api, nil, pay, nil, nil)

	_, err := o.Submit(context.Background(), soloForm(""))
	require.NoError(t, err)
	require.EqualValues(t, 1500, pay.reqs[0].FeeCents)

	api.resp.AmountDueCents = amount(0)
	_, err = o.Submit(context.Background(), soloForm(""))
	require.NoError(t, err)
	require.EqualValues(t, 0, pay.reqs[1].FeeCents)
}

func TestDirectPaymentLinkSkipsCoordinator(t *testing.T) {
	api := &fakeAPI{resp: backend.RegistrationResponse{RegistrationID: "r1", PaymentLink: "https://direct"}}
	pay := &fakePayments{}
	o := New(api, nil, pay, nil, nil)

	out, err := o.Submit(context.Background(), soloForm(""))
	require.NoError(t, err)
	require.Equal(t, "https://direct", out.Payment.RedirectURL)
	require.Empty(t, pay.reqs)
}

func TestTeamPayloadExternalPartner(t *testing.T) {
	api := &fakeAPI{resp: backend.RegistrationResponse{RegistrationID: "r2", TeamID: "t1"}}
	o := New(api, nil, nil, nil, nil)

	out, err := o.Submit(context.Background(), Form{
		Mode:    models.ModeTeam,
		EventID: "e1",
		Team: &TeamForm{
			CookingLocation:  LocationPartner,
			CoursePreference: "starter",
			PartnerExternal:  &PartnerExternal{Name: " Cleo ", Email: "cleo@example.org", FieldOfStudy: "Physics"},
		},
		IdempotencyKey: "attempt-1",
	})
	require.NoError(t, err)
	require.Equal(t, "t1", out.TeamID)
	require.Nil(t, api.team[0].PartnerExisting)
	require.Equal(t, "Cleo", api.team[0].PartnerExternal.Name)
	require.Equal(t, "starter", api.team[0].CoursePreference)
	require.Equal(t, "attempt-1", api.keys[0])
}

func TestConflictSurfacesExistingRegistration(t *testing.T) {
	api := &fakeAPI{err: apperrors.Conflict(apperrors.ExistingRegistration{EventTitle: "Winter Hop", Status: "paid"})}
	pay := &fakePayments{}
	o := New(api, &fakeResolver{}, pay, nil, nil)

	_, err := o.Submit(context.Background(), soloForm(""))
	require.True(t, apperrors.IsConflict(err))
	require.Contains(t, apperrors.UserMessage(err), "Winter Hop")
	require.Contains(t, apperrors.UserMessage(err), "paid")
	require.Empty(t, pay.reqs)
}

func TestPaymentFailureKeepsRegistration(t *testing.T) {
	api := &fakeAPI{resp: backend.RegistrationResponse{RegistrationID: "r1"}}
	pay := &fakePayments{err: apperrors.Provider("", errors.New("502")), res: payments.Result{Outcome: payments.OutcomeAborted}}
	o := New(api, nil, pay, nil, nil)

	out, err := o.Submit(context.Background(), soloForm(""))
	require.True(t, apperrors.IsProvider(err))
	require.Equal(t, "r1", out.RegistrationID)
	require.Equal(t, payments.OutcomeAborted, out.Payment.Outcome)
}
