package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rand/fathom/internal/router"
)

func TestClassifyAuthErrorsAreFatal(t *testing.T) {
	for _, msg := range []string{
		"anthropic generate: 401 Unauthorized",
		"invalid api key provided",
		"authentication failed",
		"403 Forbidden",
	} {
		err := classify(errors.New(msg))
		assert.Equal(t, router.KindFatal, router.KindOf(err), "message %q", msg)
	}
}

func TestClassifyMalformedRequestsAreFatal(t *testing.T) {
	err := classify(errors.New("400 Bad Request: malformed payload"))
	assert.Equal(t, router.KindFatal, router.KindOf(err))
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	for _, msg := range []string{
		"429 Too Many Requests",
		"connection reset by peer",
		"overloaded_error",
		"stream closed unexpectedly",
	} {
		err := classify(errors.New(msg))
		assert.Equal(t, router.KindTransient, router.KindOf(err), "message %q", msg)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := NewAnthropic("")
	assert.Error(t, err)

	_, err = NewOpenRouter("")
	assert.Error(t, err)
}
