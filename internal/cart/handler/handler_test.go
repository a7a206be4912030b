package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regdesk/internal/cart/service"
	"regdesk/internal/cart/store"
	catalogmodels "regdesk/internal/catalog/models"
	catalogstore "regdesk/internal/catalog/store"
	paymentstore "regdesk/internal/payment/store"
	profileservice "regdesk/internal/profile/service"
	profilestore "regdesk/internal/profile/store"
	teamservice "regdesk/internal/team/service"
	teamstore "regdesk/internal/team/store"
	id "regdesk/pkg/domain"
	"regdesk/pkg/testutil"
)

type cartFixture struct {
	router   http.Handler
	catalog  *catalogstore.InMemory
	profiles *profileservice.Service
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	teams := teamstore.NewInMemory()
	catalog := catalogstore.NewInMemory()
	profiles := profileservice.New(profilestore.NewInMemory(), profileservice.WithMemberships(teams))
	svc := service.New(store.NewInMemory(), catalog, teamservice.New(teams, profiles), paymentstore.NewInMemoryRegistrations(),
		service.WithLogger(logger))
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return &cartFixture{router: r, catalog: catalog, profiles: profiles}
}

func (f *cartFixture) participant(t *testing.T, externalID string) id.ParticipantID {
	t.Helper()
	p, _, err := f.profiles.CompleteProfile(context.Background(), externalID, profileservice.CompleteProfileInput{
		Name: externalID, Email: externalID + "@example.org", Institution: "UPB",
	})
	require.NoError(t, err)
	return p.ID
}

func (f *cartFixture) event(t *testing.T, fee int64) *catalogmodels.Event {
	t.Helper()
	e := &catalogmodels.Event{ID: id.NewEventID(), Title: "Quiz", Fee: fee, Currency: "RON", Open: true}
	require.NoError(t, e.Validate())
	require.NoError(t, f.catalog.Put(context.Background(), e))
	return e
}

func (f *cartFixture) as(req *http.Request, pid id.ParticipantID) *http.Request {
	req = testutil.WithParticipant(req, "idp|"+pid.String(), pid)
	return testutil.WithTime(req, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

func TestCartFlow(t *testing.T) {
	f := newCartFixture(t)
	ana := f.participant(t, "ana")
	quiz := f.event(t, 300)

	testutil.Given(t, "an empty cart", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, f.as(testutil.NewRequest(t, http.MethodGet, "/cart"), ana))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[CartResponse](t, rr)
		assert.Equal(t, 0, resp.ItemCount)
		assert.Empty(t, resp.Items)
		assert.Nil(t, resp.ExpiresAt)
	})

	testutil.When(t, "an event is added", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, f.as(testutil.NewJSONRequest(t, http.MethodPost, "/cart/items", AddItemRequest{EventID: quiz.ID.String()}), ana))
		testutil.AssertStatus(t, rr, http.StatusCreated)
		out := testutil.UnmarshalResponse[MutationResponse](t, rr)
		assert.Equal(t, "item added to cart", out.Message)
		assert.Equal(t, "added", out.Status)
		require.NotNil(t, out.Cart)
		resp := out.Cart
		assert.Equal(t, int64(300), resp.Total)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "Quiz", resp.Items[0].Title)
		assert.Equal(t, []id.ParticipantID{ana}, resp.Items[0].RosterIDs)
	})

	testutil.Then(t, "adding it again conflicts and removing empties the cart", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, f.as(testutil.NewJSONRequest(t, http.MethodPost, "/cart/items", AddItemRequest{EventID: quiz.ID.String()}), ana))
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "event_already_in_cart")

		rr = testutil.DoRequest(f.router, f.as(testutil.NewRequest(t, http.MethodDelete, "/cart/items/"+quiz.ID.String()), ana))
		testutil.AssertStatusOK(t, rr)
		out := testutil.UnmarshalResponse[MutationResponse](t, rr)
		assert.Equal(t, "removed", out.Status)
		require.NotNil(t, out.Cart)
		assert.Equal(t, 0, out.Cart.ItemCount)

		rr = testutil.DoRequest(f.router, f.as(testutil.NewRequest(t, http.MethodDelete, "/cart/items/"+quiz.ID.String()), ana))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}

func TestAddItemValidation(t *testing.T) {
	f := newCartFixture(t)
	ana := f.participant(t, "ana")

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed body", body: `{`, code: "bad_request"},
		{name: "missing event", body: `{}`, code: "validation_error"},
		{name: "bad team id", body: `{"event_id":"` + id.NewEventID().String() + `","team_id":"nope"}`, code: "validation_error"},
		{name: "bad roster id", body: `{"event_id":"` + id.NewEventID().String() + `","roster_ids":["x"]}`, code: "validation_error"},
		{name: "unknown event", body: `{"event_id":"` + id.NewEventID().String() + `"}`, code: "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := testutil.DoRequest(f.router, f.as(testutil.NewRequestWithBody(t, http.MethodPost, "/cart/items", tt.body), ana))
			testutil.AssertErrorCode(t, rr, tt.code)
		})
	}

	t.Run("bad event id in path", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, f.as(testutil.NewRequest(t, http.MethodDelete, "/cart/items/nope"), ana))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})
}
