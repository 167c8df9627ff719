package server

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"arena-tracker/internal/config"
	"arena-tracker/internal/constants"
	"arena-tracker/internal/middleware"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const RelayPath = "/api/riot"

// forwarded upstream headers; the client reads its rate limit state from them
var forwardedHeaders = []string{
	"X-App-Rate-Limit",
	"X-App-Rate-Limit-Count",
	"X-Method-Rate-Limit",
	"X-Method-Rate-Limit-Count",
	"Retry-After",
}

// RelayServer injects the provider token into logical endpoint requests so the
// token never reaches the tracker.
type RelayServer struct {
	base   string
	token  string
	client *fasthttp.Client
	logger zerolog.Logger
}

func NewRelayServer(cfg *config.Config, logger zerolog.Logger) *RelayServer {
	return &RelayServer{
		base:  cfg.RiotAPIBase,
		token: cfg.RiotAPIToken,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
			// keep escaped riot ids intact
			DisablePathNormalizing: true,
		},
		logger: logger,
	}
}

type relayError struct {
	Error string `json:"error"`
}

func (s *RelayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With().Str("request_id", middleware.GetRequestID(r.Context())).Logger()

	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, relayError{Error: "Method not allowed"})
		return
	}
	if s.token == "" {
		writeJSON(w, http.StatusUnauthorized, relayError{Error: "RIOT_API_TOKEN environment variable is not set"})
		return
	}

	target, status, msg := s.resolve(r.URL.Query())
	if status != 0 {
		writeJSON(w, status, relayError{Error: msg})
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("X-Riot-Token", s.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	if err := s.client.DoTimeout(req, resp, constants.ExternalAPITimeout); err != nil {
		logger.Error().Err(err).Str("endpoint", r.URL.Query().Get("endpoint")).Msg("upstream request failed")
		writeJSON(w, http.StatusInternalServerError, relayError{Error: "Internal server error"})
		return
	}

	body := resp.Body()
	if !json.Valid(body) {
		logger.Error().Int("status", resp.StatusCode()).Msg("upstream returned a non-JSON body")
		writeJSON(w, http.StatusInternalServerError, relayError{Error: "Internal server error"})
		return
	}

	for _, name := range forwardedHeaders {
		if v := resp.Header.Peek(name); len(v) > 0 {
			w.Header().Set(name, string(v))
		}
	}

	event := logger.Debug()
	if resp.StatusCode() >= http.StatusBadRequest {
		event = logger.Warn()
	}
	event.
		Str("endpoint", r.URL.Query().Get("endpoint")).
		Int("status", resp.StatusCode()).
		Int64("upstream_ms", time.Since(start).Milliseconds()).
		Msg("relayed request")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode())
	_, _ = w.Write(body)
}

// resolve maps the logical endpoint to a provider URL. A non-zero status
// reports a bad request.
func (s *RelayServer) resolve(q url.Values) (string, int, string) {
	switch q.Get("endpoint") {
	case "":
		return "", http.StatusBadRequest, "Endpoint is required"
	case "account":
		gameName, tagLine := q.Get("gameName"), q.Get("tagLine")
		if gameName == "" || tagLine == "" {
			return "", http.StatusBadRequest, "Game name and tag line are required"
		}
		return fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
			s.base, url.PathEscape(gameName), url.PathEscape(tagLine)), 0, ""
	case "matchIds", "matches":
		puuid := q.Get("puuid")
		if puuid == "" {
			return "", http.StatusBadRequest, "PUUID is required"
		}
		params := url.Values{}
		params.Set("queue", fmt.Sprint(constants.ArenaQueueID))
		params.Set("start", valueOr(q.Get("start"), "0"))
		params.Set("count", valueOr(q.Get("count"), fmt.Sprint(constants.DefaultMatchPageSize)))
		return fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?%s",
			s.base, url.PathEscape(puuid), params.Encode()), 0, ""
	case "match":
		matchID := q.Get("matchId")
		if matchID == "" {
			return "", http.StatusBadRequest, "Match ID is required"
		}
		return fmt.Sprintf("%s/lol/match/v5/matches/%s", s.base, url.PathEscape(matchID)), 0, ""
	default:
		return "", http.StatusBadRequest, "Invalid endpoint"
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
