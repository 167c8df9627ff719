package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"arena-tracker/internal/config"
	"arena-tracker/internal/constants"
	"arena-tracker/internal/domain"
	"arena-tracker/internal/ratelimit"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
)

type Limiter interface {
	Acquire(ctx context.Context, bucket string) error
}

type Options struct {
	MaxRetries uint64
	RetryBase  time.Duration
	Timeout    time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxRetries: constants.MaxRetries,
		RetryBase:  constants.RetryBaseDelay,
		Timeout:    constants.ExternalAPITimeout,
	}
}

// RiotClient talks to the provider through the credential-injecting relay.
// It never sees the API token.
type RiotClient struct {
	relayURL    string
	client      *fasthttp.Client
	limiter     Limiter
	validate    *validator.Validate
	opts        Options
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
	logger      zerolog.Logger
}

// RateLimitInfo mirrors the provider's rate limit headers as forwarded by the relay.
type RateLimitInfo struct {
	AppLimit    string `json:"app_limit"`
	AppCount    string `json:"app_count"`
	MethodLimit string `json:"method_limit"`
	MethodCount string `json:"method_count"`

	// seconds, only set after a 429
	RetryAfter int `json:"retry_after"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewRiotClient(cfg *config.Config, limiter *ratelimit.Limiter, logger zerolog.Logger) *RiotClient {
	return NewRiotClientWithOptions(cfg.RelayURL, limiter, DefaultOptions(), logger)
}

func NewRiotClientWithOptions(relayURL string, limiter Limiter, opts Options, logger zerolog.Logger) *RiotClient {
	return &RiotClient{
		relayURL: relayURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         opts.Timeout,
			WriteTimeout:        opts.Timeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		limiter:  limiter,
		validate: validator.New(),
		opts:     opts,
		logger:   logger,
	}
}

func (c *RiotClient) RateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *RiotClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if v := string(resp.Header.Peek("X-App-Rate-Limit")); v != "" {
		c.rateLimit.AppLimit = v
	}
	if v := string(resp.Header.Peek("X-App-Rate-Limit-Count")); v != "" {
		c.rateLimit.AppCount = v
	}
	if v := string(resp.Header.Peek("X-Method-Rate-Limit")); v != "" {
		c.rateLimit.MethodLimit = v
	}
	if v := string(resp.Header.Peek("X-Method-Rate-Limit-Count")); v != "" {
		c.rateLimit.MethodCount = v
	}
	c.rateLimit.RetryAfter = 0
	if v := string(resp.Header.Peek("Retry-After")); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			c.rateLimit.RetryAfter = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

func (c *RiotClient) GetAccount(ctx context.Context, gameName, tagLine string) (*domain.Account, error) {
	params := map[string]string{
		"endpoint": "account",
		"gameName": gameName,
		"tagLine":  tagLine,
	}
	return doRequest(ctx, c, "", params, func(a *domain.Account) error {
		return c.validate.Struct(a)
	})
}

// GetMatchIDs lists up to count arena match ids, newest first, starting at start.
func (c *RiotClient) GetMatchIDs(ctx context.Context, puuid string, count, start int) ([]string, error) {
	params := map[string]string{
		"endpoint": "matchIds",
		"puuid":    puuid,
		"count":    strconv.Itoa(count),
		"start":    strconv.Itoa(start),
	}
	ids, err := doRequest(ctx, c, ratelimit.BucketMatchIDs, params, func(ids *[]string) error {
		return c.validate.Var(*ids, "required,dive,required")
	})
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

func (c *RiotClient) GetMatch(ctx context.Context, matchID string) (*domain.RawMatch, error) {
	params := map[string]string{
		"endpoint": "match",
		"matchId":  matchID,
	}
	return doRequest(ctx, c, "", params, func(m *domain.RawMatch) error {
		return c.validate.Struct(m)
	})
}

// doRequest acquires a limiter slot and issues one relay call per attempt,
// retrying only rate-limited responses with exponential backoff.
func doRequest[T any](ctx context.Context, client *RiotClient, bucket string, params map[string]string, check func(*T) error) (*T, error) {
	var result *T
	backoff := retry.WithMaxRetries(client.opts.MaxRetries, retry.NewExponential(client.opts.RetryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.limiter.Acquire(ctx, bucket); err != nil {
			return err
		}

		out, err := doOnce(ctx, client, params, check)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				client.logger.Warn().
					Str("endpoint", params["endpoint"]).
					Msg("rate limited, backing off")
				return retry.RetryableError(err)
			}
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		client.logger.Debug().Err(err).Str("endpoint", params["endpoint"]).Msg("relay request failed")
		return nil, err
	}
	return result, nil
}

func doOnce[T any](ctx context.Context, client *RiotClient, params map[string]string, check func(*T) error) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(client.relayURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	args := req.URI().QueryArgs()
	for k, v := range params {
		args.Set(k, v)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = client.client.DoDeadline(req, resp, deadline)
	} else {
		err = client.client.DoTimeout(req, resp, client.opts.Timeout)
	}
	if err != nil {
		return nil, newError(KindTransport, 0, "failed to reach relay", err)
	}

	client.updateRateLimit(resp)

	status := resp.StatusCode()
	body := resp.Body()
	if status < 200 || status >= 300 {
		return nil, statusError(status, body)
	}

	if !bytes.Contains(resp.Header.ContentType(), []byte("json")) || !json.Valid(body) {
		return nil, newError(KindTransport, status, "Unexpected response format from API (expected JSON)", nil)
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, newError(KindSchemaMismatch, status, ErrSchemaMismatch.Message, err)
	}
	if err := check(&result); err != nil {
		return nil, newError(KindSchemaMismatch, status, ErrSchemaMismatch.Message, err)
	}
	return &result, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  *struct {
		StatusCode int    `json:"status_code"`
		Message    string `json:"message"`
	} `json:"status"`
}

func statusError(status int, body []byte) *Error {
	var parsed errorBody
	_ = json.Unmarshal(body, &parsed)

	switch status {
	case fasthttp.StatusUnauthorized:
		// the relay answers 401 with its own {"error": ...} body when it has no token
		if parsed.Error != "" && parsed.Status == nil {
			return newError(KindCredentialMissing, status, parsed.Error, nil)
		}
		return newError(KindUnauthorized, status, ErrUnauthorized.Message, nil)
	case fasthttp.StatusForbidden:
		return newError(KindForbidden, status, ErrForbidden.Message, nil)
	case fasthttp.StatusTooManyRequests:
		return newError(KindRateLimited, status, ErrRateLimited.Message, nil)
	case fasthttp.StatusNotFound:
		return newError(KindNotFound, status, fmt.Sprintf("API Error (%d): %s", status, describe(parsed, body)), nil)
	default:
		return newError(KindHTTP, status, fmt.Sprintf("API Error (%d): %s", status, describe(parsed, body)), nil)
	}
}

func describe(parsed errorBody, body []byte) string {
	switch {
	case parsed.Status != nil && parsed.Status.Message != "":
		return parsed.Status.Message
	case parsed.Message != "":
		return parsed.Message
	case parsed.Error != "":
		return parsed.Error
	case len(body) > 0:
		if len(body) > 200 {
			body = body[:200]
		}
		return string(body)
	default:
		return "Unknown error"
	}
}
