package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regdesk/internal/catalog/models"
	"regdesk/internal/catalog/store"
	id "regdesk/pkg/domain"
	"regdesk/pkg/testutil"
)

func TestCatalogRoutes(t *testing.T) {
	events := store.NewInMemory()
	open := &models.Event{ID: id.NewEventID(), Title: "Algorithms", Fee: 300, Currency: "RON", Capacity: 1, Open: true}
	closed := &models.Event{ID: id.NewEventID(), Title: "Bridge", Currency: "RON", Open: false}
	for _, e := range []*models.Event{open, closed} {
		require.NoError(t, e.Validate())
		require.NoError(t, events.Put(context.Background(), e))
	}

	r := chi.NewRouter()
	New(events, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).Register(r)

	t.Run("list is sorted and flags availability", func(t *testing.T) {
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/events"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[struct {
			Events []struct {
				Title     string `json:"title"`
				Available bool   `json:"available"`
			} `json:"events"`
		}](t, rr)
		require.Len(t, resp.Events, 2)
		assert.Equal(t, "Algorithms", resp.Events[0].Title)
		assert.True(t, resp.Events[0].Available)
		assert.False(t, resp.Events[1].Available)
	})

	t.Run("full event is unavailable", func(t *testing.T) {
		_, err := events.IncrementRegistered(context.Background(), open.ID, id.NewSubmissionID())
		require.NoError(t, err)
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/events/"+open.ID.String()))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[struct {
			RegisteredCount int  `json:"registered_count"`
			Available       bool `json:"available"`
		}](t, rr)
		assert.Equal(t, 1, resp.RegisteredCount)
		assert.False(t, resp.Available)
	})

	t.Run("unknown and malformed ids", func(t *testing.T) {
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/events/"+id.NewEventID().String()))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")

		rr = testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/events/nope"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})
}
