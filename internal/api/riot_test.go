package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLimiter struct {
	mu      sync.Mutex
	buckets []string
}

func (l *recordingLimiter) Acquire(_ context.Context, bucket string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = append(l.buckets, bucket)
	return nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*RiotClient, *recordingLimiter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := &recordingLimiter{}
	opts := Options{MaxRetries: 3, RetryBase: time.Millisecond, Timeout: 5 * time.Second}
	return NewRiotClientWithOptions(srv.URL+"/api/riot", limiter, opts, zerolog.Nop()), limiter
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestGetAccount(t *testing.T) {
	client, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/riot", r.URL.Path)
		assert.Equal(t, "account", r.URL.Query().Get("endpoint"))
		assert.Equal(t, "Gambler", r.URL.Query().Get("gameName"))
		assert.Equal(t, "Adict", r.URL.Query().Get("tagLine"))
		writeJSON(w, http.StatusOK, `{"puuid":"abc","gameName":"Gambler","tagLine":"Adict"}`)
	})

	account, err := client.GetAccount(context.Background(), "Gambler", "Adict")
	require.NoError(t, err)
	assert.Equal(t, "abc", account.PUUID)
	assert.Equal(t, []string{""}, limiter.buckets)
}

func TestGetMatchIDsUsesHighVolumeBucket(t *testing.T) {
	client, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "matchIds", r.URL.Query().Get("endpoint"))
		assert.Equal(t, "30", r.URL.Query().Get("count"))
		assert.Equal(t, "60", r.URL.Query().Get("start"))
		writeJSON(w, http.StatusOK, `["EUW1_3","EUW1_2"]`)
	})

	ids, err := client.GetMatchIDs(context.Background(), "abc", 30, 60)
	require.NoError(t, err)
	assert.Equal(t, []string{"EUW1_3", "EUW1_2"}, ids)
	assert.Equal(t, []string{"matchIds"}, limiter.buckets)
}

func TestGetMatchIDsEmptyPage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[]`)
	})

	ids, err := client.GetMatchIDs(context.Background(), "abc", 100, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGetMatch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "EUW1_1", r.URL.Query().Get("matchId"))
		writeJSON(w, http.StatusOK, `{"metadata":{},"info":{"gameCreation":99,"participants":[{"puuid":"abc","championName":"Ahri","placement":2}]}}`)
	})

	match, err := client.GetMatch(context.Background(), "EUW1_1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), match.Info.GameCreation)
	require.Len(t, match.Info.Participants, 1)
	assert.Equal(t, 2, *match.Info.Participants[0].Placement)
}

func TestSchemaValidationIsStrict(t *testing.T) {
	cases := map[string]string{
		"missing placement":  `{"info":{"gameCreation":99,"participants":[{"puuid":"abc","championName":"Ahri"}]}}`,
		"missing info":       `{"metadata":{}}`,
		"wrong participants": `{"info":{"gameCreation":99,"participants":"nope"}}`,
		"array body":         `[1,2,3]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, body)
			})

			_, err := client.GetMatch(context.Background(), "EUW1_1")
			assert.ErrorIs(t, err, ErrSchemaMismatch)
		})
	}
}

func TestNonJSONBodyIsTransportError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>oops</html>"))
	})

	_, err := client.GetAccount(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestUnreachableRelayIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewRiotClientWithOptions(url, &recordingLimiter{}, Options{MaxRetries: 0, RetryBase: time.Millisecond, Timeout: time.Second}, zerolog.Nop())
	_, err := client.GetAccount(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"relay without token", http.StatusUnauthorized, `{"error":"RIOT_API_TOKEN environment variable is not set"}`, ErrCredentialMissing},
		{"provider unauthorized", http.StatusUnauthorized, `{"status":{"status_code":401,"message":"Unknown apikey"}}`, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, `{"status":{"status_code":403,"message":"Forbidden"}}`, ErrForbidden},
		{"not found", http.StatusNotFound, `{"status":{"status_code":404,"message":"Data not found"}}`, ErrNotFound},
		{"server error", http.StatusBadGateway, `bad gateway`, ErrHTTP},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeJSON(w, tc.status, tc.body)
			})

			_, err := client.GetAccount(context.Background(), "a", "b")
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, int32(1), calls.Load(), "only rate limiting is retried")

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
		})
	}
}

func TestRateLimitedIsRetried(t *testing.T) {
	var calls atomic.Int32
	client, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, `{"status":{"status_code":429,"message":"Rate limit exceeded"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `["EUW1_1"]`)
	})

	ids, err := client.GetMatchIDs(context.Background(), "abc", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"EUW1_1"}, ids)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, limiter.buckets, 3, "every attempt goes through the limiter")
}

func TestRateLimitedGivesUpAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "7")
		writeJSON(w, http.StatusTooManyRequests, `{}`)
	})

	_, err := client.GetMatch(context.Background(), "EUW1_1")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, 7, client.RateLimitInfo().RetryAfter)
}

func TestRateLimitHeadersAreRecorded(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-App-Rate-Limit", "20:1,100:120")
		w.Header().Set("X-App-Rate-Limit-Count", "1:1,1:120")
		writeJSON(w, http.StatusOK, `{"puuid":"abc","gameName":"a","tagLine":"b"}`)
	})

	_, err := client.GetAccount(context.Background(), "a", "b")
	require.NoError(t, err)

	info := client.RateLimitInfo()
	assert.Equal(t, "20:1,100:120", info.AppLimit)
	assert.Equal(t, "1:1,1:120", info.AppCount)
	assert.False(t, info.UpdatedAt.IsZero())
}
