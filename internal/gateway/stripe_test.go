package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func TestMapStripeErrorRetryableCodes(t *testing.T) {
	cases := []struct {
		name      string
		err       *stripe.Error
		retryable bool
		code      string
	}{
		{
			name:      "http 429 is retryable",
			err:       &stripe.Error{HTTPStatusCode: 429, Msg: "slow down"},
			retryable: true,
			code:      CodeRateLimited,
		},
		{
			name:      "rate limit code is retryable",
			err:       &stripe.Error{Code: stripe.ErrorCodeRateLimit, Msg: "too many requests"},
			retryable: true,
			code:      CodeRateLimited,
		},
		{
			name:      "lock timeout is retryable",
			err:       &stripe.Error{Code: stripe.ErrorCodeLockTimeout, Msg: "object locked"},
			retryable: true,
			code:      string(stripe.ErrorCodeLockTimeout),
		},
		{
			name:      "idempotency key in use is retryable",
			err:       &stripe.Error{Code: stripe.ErrorCodeIdempotencyKeyInUse, Msg: "key in use"},
			retryable: true,
			code:      string(stripe.ErrorCodeIdempotencyKeyInUse),
		},
		{
			name:      "api error is retryable",
			err:       &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "internal"},
			retryable: true,
			code:      CodeAPIUnavailable,
		},
		{
			name:      "5xx without code is retryable",
			err:       &stripe.Error{HTTPStatusCode: 502, Msg: "bad gateway"},
			retryable: true,
			code:      CodeAPIUnavailable,
		},
		{
			name:      "card decline is permanent",
			err:       &stripe.Error{Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeCardDeclined, Msg: "declined"},
			retryable: false,
			code:      string(stripe.ErrorCodeCardDeclined),
		},
		{
			name:      "invalid request is permanent",
			err:       &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: 400, Msg: "bad param"},
			retryable: false,
			code:      CodeInvalidRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := mapStripeError(tc.err)
			var perr *ProcessorError
			require.ErrorAs(t, mapped, &perr)
			assert.Equal(t, tc.retryable, perr.Retryable)
			assert.Equal(t, tc.code, perr.Code)
		})
	}
}

func TestMapStripeErrorNonStripeIsNetwork(t *testing.T) {
	mapped := mapStripeError(errors.New("connection reset"))
	var perr *ProcessorError
	require.ErrorAs(t, mapped, &perr)
	assert.True(t, perr.Retryable)
	assert.Equal(t, CodeNetwork, perr.Code)
}
