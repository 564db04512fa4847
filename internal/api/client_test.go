package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/powerboard/tui/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications/", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[{"id":1,"message":"a","read":false,"created_at":"2024-05-01T10:00:00Z"},{"id":2,"message":"b","read":true,"created_at":"2024-05-01T09:00:00Z"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", auth.Static("jwt-1"))
	notes, err := c.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "Bearer jwt-1", gotAuth)
	assert.Empty(t, gotQuery)
	assert.Equal(t, int64(1), notes[0].ID)
	assert.False(t, notes[0].Read)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), notes[0].CreatedAt)

	_, err = c.List(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "unread_only=true", gotQuery)
}

func TestListNullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}))
	defer srv.Close()

	notes, err := New(srv.URL, nil).List(context.Background(), false)
	require.NoError(t, err)
	assert.NotNil(t, notes)
	assert.Empty(t, notes)
}

func TestMarkReadPaths(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Write([]byte(`{"detail":"marked as read"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, auth.Static("t"))
	require.NoError(t, c.MarkRead(context.Background(), 42))
	require.NoError(t, c.MarkAllRead(context.Background()))
	assert.Equal(t, []string{"POST /notifications/42/read", "POST /notifications/read_all"}, calls)
}

func TestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Notification not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	err := New(srv.URL, auth.Static("t")).MarkRead(context.Background(), 9)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, http.MethodPost, httpErr.Method)
	assert.Equal(t, "/notifications/9/read", httpErr.Path)
	assert.Contains(t, httpErr.Error(), "Notification not found")
}

func TestTokenFailureSkipsRequest(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer srv.Close()

	_, err := New(srv.URL, func(context.Context) (string, error) { return "", auth.ErrNoSession }).List(context.Background(), false)
	require.ErrorIs(t, err, auth.ErrNoSession)
	assert.False(t, hit)
}
