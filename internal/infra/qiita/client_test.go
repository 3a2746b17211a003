package qiita

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient("test-token", WithBaseURL(server.URL), WithClientLogger(logger))
}

func TestFetchArticles(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{
				"id": "abc123",
				"title": "社内ナレッジ検索の設計",
				"url": "https://example.qiita.com/items/abc123",
				"body": "本文",
				"created_at": "2025-01-01T09:00:00+09:00",
				"updated_at": "2025-06-01T09:00:00+09:00",
				"user": {"id": "misaki", "name": "Misaki"}
			}
		]`)
	}))

	articles, err := client.FetchArticles(context.Background(), 1, 100)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "abc123", articles[0].ID)
	assert.Equal(t, "Misaki", articles[0].User.Name)
}

func TestFetchArticles_APIError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))

	_, err := client.FetchArticles(context.Background(), 1, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qiita API error")
}

func TestFetchAllArticles_Paginates(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")

		switch page {
		case "1":
			// 1ページ目はフルページを返して次ページを促す
			fmt.Fprint(w, "[")
			for i := range DefaultPerPage {
				if i > 0 {
					fmt.Fprint(w, ",")
				}
				fmt.Fprintf(w, `{"id":"page1-%d","title":"t","url":"u","body":"b","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z","user":{"id":"a","name":"A"}}`, i)
			}
			fmt.Fprint(w, "]")
		case "2":
			fmt.Fprint(w, `[{"id":"page2-0","title":"t","url":"u","body":"b","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z","user":{"id":"a","name":"A"}}]`)
		default:
			t.Fatalf("unexpected page: %s", page)
		}
	}))

	articles, err := client.FetchAllArticles(context.Background())
	require.NoError(t, err)
	assert.Len(t, articles, DefaultPerPage+1)
	assert.Equal(t, "page2-0", articles[DefaultPerPage].ID)
}

func TestCheckArticleAccess(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/items/visible":
			w.WriteHeader(http.StatusOK)
		case "/items/hidden":
			w.WriteHeader(http.StatusNotFound)
		default:
			// 想定外のステータスは拒否側に倒す
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	ctx := context.Background()
	assert.True(t, client.CheckArticleAccess(ctx, "visible"))
	assert.False(t, client.CheckArticleAccess(ctx, "hidden"))
	assert.False(t, client.CheckArticleAccess(ctx, "error"))
}

func TestCheckBatchAccess(t *testing.T) {
	var requests atomic.Int64
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path == "/items/a" || r.URL.Path == "/items/c" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	accessible, err := client.CheckBatchAccess(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), requests.Load())

	assert.Contains(t, accessible, "a")
	assert.Contains(t, accessible, "c")
	assert.NotContains(t, accessible, "b")
}

func TestCheckBatchAccess_EmptyInput(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty input")
	}))

	accessible, err := client.CheckBatchAccess(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, accessible)
}

func TestClientFactory_ScopesToken(t *testing.T) {
	var seenToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenToken = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	factory := NewClientFactory(WithBaseURL(server.URL))
	checker := factory.ForToken("user-scoped-token")

	_, err := checker.CheckBatchAccess(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer user-scoped-token", seenToken)
}
