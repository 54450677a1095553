package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"dinnerhop-bot/internal/journal"
)

func TestRecordAppendsRow(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewWithOptions(context.Background(), "sheet-1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	at := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	require.NoError(t, c.Record(context.Background(), journal.Entry{
		At: at, ChatID: 42, Kind: journal.KindRegistered, RegistrationID: "r1", EventID: "e1",
	}))

	require.True(t, strings.HasPrefix(gotPath, "/v4/spreadsheets/sheet-1/values/"))
	require.True(t, strings.HasSuffix(gotPath, ":append"))
	values := gotBody["values"].([]any)
	row := values[0].([]any)
	require.Equal(t, "2026-05-01T18:00:00Z", row[0])
	require.Equal(t, "registered", row[2])
	require.Equal(t, "r1", row[3])
}

func TestRecordWrapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewWithOptions(context.Background(), "sheet-1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	require.Error(t, c.Record(context.Background(), journal.Entry{Kind: journal.KindCancelled}))
}
