package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultRetryWaitMinimum           = 500 * time.Millisecond
	defaultRetryWaitMaximum           = 30 * time.Second
	requestCounterNameConstant        = "repofleet_platform_requests_total"
	requestCounterHelpConstant        = "Platform API requests partitioned by status code and method."
	requestCounterPlatformLabel       = "platform"
	retryingRequestMessageConstant    = "retrying platform request"
	logFieldURLConstant               = "url"
	logFieldStatusConstant            = "status"
	logFieldRetryErrorConstant        = "error"
	unlimitedRequestBurstConstant     = 1
	staticTokenTypeConstant           = "Bearer"
	defaultPlatformLabelValueConstant = "unknown"
)

// Options configures the HTTP client built by NewHTTPClient.
type Options struct {
	Platform         string
	Logger           *zap.Logger
	Token            string
	RequestInterval  time.Duration
	RetryMax         int
	RetryWaitMinimum time.Duration
	RetryWaitMaximum time.Duration
	Base             http.RoundTripper
	Registerer       prometheus.Registerer
}

// NewRequestLimiter returns a limiter admitting one request per interval. A
// non-positive interval disables spacing.
func NewRequestLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, unlimitedRequestBurstConstant)
	}
	return rate.NewLimiter(rate.Every(interval), unlimitedRequestBurstConstant)
}

// NewHTTPClient builds an HTTP client that authenticates with the bearer token,
// retries transient failures and spaces requests by RequestInterval. Requests
// with non-idempotent methods are retried only when rate limited. The last
// response is returned when retries are exhausted so callers can classify it.
func NewHTTPClient(options Options) *http.Client {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	spacedTransport := &SpacingTransport{Limiter: NewRequestLimiter(options.RequestInterval), Base: options.Base}
	instrumentedTransport := instrument(options.Registerer, options.Platform, spacedTransport)

	var roundTripper http.RoundTripper = &methodRetryTransport{
		idempotent:    &retryablehttp.RoundTripper{Client: NewRetryingClient(logger, options, instrumentedTransport, retryablehttp.DefaultRetryPolicy)},
		nonIdempotent: &retryablehttp.RoundTripper{Client: NewRetryingClient(logger, options, instrumentedTransport, RateLimitRetryPolicy)},
	}

	if len(options.Token) > 0 {
		roundTripper = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: options.Token, TokenType: staticTokenTypeConstant}),
			Base:   roundTripper,
		}
	}
	return &http.Client{Transport: roundTripper}
}

// NewRetryingClient builds a retryablehttp client deciding retries with policy.
func NewRetryingClient(logger *zap.Logger, options Options, base http.RoundTripper, policy retryablehttp.CheckRetry) *retryablehttp.Client {
	retryWaitMinimum := options.RetryWaitMinimum
	if retryWaitMinimum <= 0 {
		retryWaitMinimum = defaultRetryWaitMinimum
	}
	retryWaitMaximum := options.RetryWaitMaximum
	if retryWaitMaximum < retryWaitMinimum {
		retryWaitMaximum = defaultRetryWaitMaximum
	}
	retryMax := options.RetryMax
	if retryMax < 0 {
		retryMax = 0
	}
	if policy == nil {
		policy = RetryPolicy
	}

	return &retryablehttp.Client{
		HTTPClient:   &http.Client{Transport: base},
		Logger:       NewLeveledLogger(logger),
		RetryWaitMin: retryWaitMinimum,
		RetryWaitMax: retryWaitMaximum,
		RetryMax:     retryMax,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		CheckRetry: func(executionContext context.Context, response *http.Response, requestError error) (bool, error) {
			shouldRetry, retryError := policy(executionContext, response, requestError)
			if shouldRetry {
				fields := []zap.Field{}
				if response != nil {
					fields = append(fields, zap.Int(logFieldStatusConstant, response.StatusCode))
					if response.Request != nil {
						fields = append(fields, zap.String(logFieldURLConstant, response.Request.URL.Redacted()))
					}
				}
				if requestError != nil {
					fields = append(fields, zap.String(logFieldRetryErrorConstant, requestError.Error()))
				}
				logger.Debug(retryingRequestMessageConstant, fields...)
			}
			return shouldRetry, retryError
		},
	}
}

// IsIdempotentMethod reports whether repeating a request with method cannot
// change the outcome of the first attempt.
func IsIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}

// RateLimitRetryPolicy retries only rate-limited responses, which the platform
// rejected without processing.
func RateLimitRetryPolicy(executionContext context.Context, response *http.Response, requestError error) (bool, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return false, contextError
	}
	if requestError != nil {
		return false, requestError
	}
	return response != nil && response.StatusCode == http.StatusTooManyRequests, nil
}

// RetryPolicy chooses the policy from the method of the answered request.
// Idempotent requests follow retryablehttp.DefaultRetryPolicy and everything
// else RateLimitRetryPolicy. A failure without a response is not retried
// because its method is unknown here.
func RetryPolicy(executionContext context.Context, response *http.Response, requestError error) (bool, error) {
	if response == nil || response.Request == nil {
		return RateLimitRetryPolicy(executionContext, response, requestError)
	}
	if IsIdempotentMethod(response.Request.Method) {
		return retryablehttp.DefaultRetryPolicy(executionContext, response, requestError)
	}
	return RateLimitRetryPolicy(executionContext, response, requestError)
}

// methodRetryTransport sends each request through the retrying transport that
// matches its method.
type methodRetryTransport struct {
	idempotent    http.RoundTripper
	nonIdempotent http.RoundTripper
}

func (retryTransport *methodRetryTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	if IsIdempotentMethod(request.Method) {
		return retryTransport.idempotent.RoundTrip(request)
	}
	return retryTransport.nonIdempotent.RoundTrip(request)
}

// NewInstrumentedHTTPClient builds a plain client that only counts requests. It
// serves API clients that bring their own retry and rate-limit handling.
func NewInstrumentedHTTPClient(registerer prometheus.Registerer, platformName string, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{Transport: instrument(registerer, platformName, base)}
}

func instrument(registerer prometheus.Registerer, platformName string, base http.RoundTripper) http.RoundTripper {
	if registerer == nil {
		return base
	}
	if len(platformName) == 0 {
		platformName = defaultPlatformLabelValueConstant
	}
	requestCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        requestCounterNameConstant,
		Help:        requestCounterHelpConstant,
		ConstLabels: prometheus.Labels{requestCounterPlatformLabel: platformName},
	}, []string{"code", "method"})
	if registrationError := registerer.Register(requestCounter); registrationError != nil {
		alreadyRegistered := prometheus.AlreadyRegisteredError{}
		if errors.As(registrationError, &alreadyRegistered) {
			if existing, isCounterVec := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec); isCounterVec {
				requestCounter = existing
			}
		}
	}
	return promhttp.InstrumentRoundTripperCounter(requestCounter, base)
}
