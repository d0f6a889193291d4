package faults

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeAndMessageExtraction(t *testing.T) {
	err := New(CodeNotFound, "no memory at %s", "kairos://mem/x")
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, "no memory at kairos://mem/x", MessageOf(err))
	assert.True(t, IsCode(err, CodeNotFound))

	plain := errors.New("boom")
	assert.Equal(t, CodeInternal, CodeOf(plain))
	assert.Equal(t, "boom", MessageOf(plain))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(cause, CodeStoreFailed, "vector store upsert")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeStoreFailed, CodeOf(err))
	assert.Contains(t, err.Error(), "refused")
}

func TestCodeSurvivesFmtWrapping(t *testing.T) {
	inner := New(CodeDuplicateChain, "exists")
	outer := fmt.Errorf("minting: %w", inner)
	assert.Equal(t, CodeDuplicateChain, CodeOf(outer))
}

func TestDetails(t *testing.T) {
	err := New(CodeDuplicateChain, "exists").WithDetails(map[string]any{"chain_id": "c1"})
	assert.Equal(t, "c1", DetailsOf(err)["chain_id"])
	assert.Nil(t, DetailsOf(errors.New("plain")))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[string]int{
		CodeInvalidInput:       http.StatusBadRequest,
		CodeInvalidURI:         http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeDuplicateChain:     http.StatusConflict,
		CodeSimilarMemory:      http.StatusConflict,
		CodeNonceMismatch:      http.StatusOK,
		CodeHashMismatch:       http.StatusOK,
		CodeProofInvalid:       http.StatusOK,
		CodeMaxRetriesExceeded: http.StatusOK,
		CodeUserDeclined:       http.StatusOK,
		CodeCapabilityRequired: http.StatusOK,
		CodeStoreFailed:        http.StatusBadGateway,
		CodeEmbeddingFailed:    http.StatusBadGateway,
		CodeKVFailed:           http.StatusBadGateway,
		CodeInternal:           http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(New(code, "x")), code)
	}
}
