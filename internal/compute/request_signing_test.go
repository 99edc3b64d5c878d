package compute

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

func TestSignAgentCall_RoundTrip(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)
	const method = "/duckquery.compute.v1.ComputeWorker/SubmitQuery"

	md := metadata.Pairs(SignAgentCall(method, "tok", "req-1", now)...)
	require.NoError(t, VerifyAgentCall(md, method, "tok", now.Add(time.Minute), DefaultSignatureSkew))

	t.Run("wrong_token", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, VerifyAgentCall(md, method, "other", now, DefaultSignatureSkew))
	})

	t.Run("wrong_method", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, VerifyAgentCall(md, "/duckquery.compute.v1.ComputeWorker/DeleteQuery", "tok", now, DefaultSignatureSkew))
	})

	t.Run("stale_timestamp", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, VerifyAgentCall(md, method, "tok", now.Add(time.Hour), DefaultSignatureSkew))
	})

	t.Run("tampered_request_id", func(t *testing.T) {
		t.Parallel()
		tampered := md.Copy()
		tampered.Set(MetadataRequestID, "req-2")
		assert.Error(t, VerifyAgentCall(tampered, method, "tok", now, DefaultSignatureSkew))
	})

	t.Run("missing_signature", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, VerifyAgentCall(metadata.Pairs(MetadataAgentToken, "tok"), method, "tok", now, DefaultSignatureSkew))
	})
}
