package compute

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/grpc/metadata"
)

// Agent call metadata keys used by control-plane <-> compute-agent auth.
const (
	MetadataAgentToken     = "x-agent-token"
	MetadataAgentTimestamp = "x-agent-timestamp"
	MetadataAgentSignature = "x-agent-signature"
	MetadataRequestID      = "x-request-id"
)

// DefaultSignatureSkew is the clock skew tolerated by VerifyAgentCall.
const DefaultSignatureSkew = 5 * time.Minute

// SignAgentCall returns metadata pairs authenticating a call to fullMethod.
func SignAgentCall(fullMethod, token, requestID string, now time.Time) []string {
	ts := strconv.FormatInt(now.UTC().Unix(), 10)
	pairs := []string{
		MetadataAgentToken, token,
		MetadataAgentTimestamp, ts,
		MetadataAgentSignature, signCall(fullMethod, ts, requestID, token),
	}
	if requestID != "" {
		pairs = append(pairs, MetadataRequestID, requestID)
	}
	return pairs
}

// VerifyAgentCall validates the token, timestamp freshness and signature of
// an incoming call to fullMethod.
func VerifyAgentCall(md metadata.MD, fullMethod, token string, now time.Time, maxSkew time.Duration) error {
	if !hmac.Equal([]byte(first(md, MetadataAgentToken)), []byte(token)) {
		return fmt.Errorf("invalid agent token")
	}

	tsRaw := first(md, MetadataAgentTimestamp)
	if tsRaw == "" {
		return fmt.Errorf("missing %s", MetadataAgentTimestamp)
	}
	timestamp, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", MetadataAgentTimestamp, err)
	}

	skew := now.UTC().Sub(time.Unix(timestamp, 0).UTC())
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return fmt.Errorf("request timestamp outside allowed skew")
	}

	gotSig := first(md, MetadataAgentSignature)
	if gotSig == "" {
		return fmt.Errorf("missing %s", MetadataAgentSignature)
	}

	expected := signCall(fullMethod, tsRaw, first(md, MetadataRequestID), token)
	if !hmac.Equal([]byte(gotSig), []byte(expected)) {
		return fmt.Errorf("invalid request signature")
	}

	return nil
}

func signCall(fullMethod, ts, requestID, token string) string {
	payload := fullMethod + "\n" + ts + "\n" + requestID

	mac := hmac.New(sha256.New, []byte(token))
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func first(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
