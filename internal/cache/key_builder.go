package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"hunyuan-gateway/internal/llm"
)

const anonymousTenant = "anon"

// BuildExactCacheKey derives the key for a non-streaming request.
// callerModel is the model echoed back in the response, resolvedModel the
// upstream model serving it and apiKey the credential that will be
// forwarded; the raw key never appears in the result.
func BuildExactCacheKey(
	req *llm.InboundRequest,
	callerModel string,
	resolvedModel string,
	apiKey string,
	versionID string,
) (ExactCacheKey, error) {
	body, err := json.Marshal(req.Messages)
	if err != nil {
		return ExactCacheKey{}, err
	}

	modelID := strings.TrimSpace(resolvedModel)
	normalized := "caller:" + callerModel + "|model:" + modelID + "|messages:" + string(body)

	sum := sha256.Sum256([]byte(normalized))

	return ExactCacheKey{
		Tenant:    TenantFingerprint(apiKey),
		ModelID:   modelID,
		VersionID: strings.TrimSpace(versionID),
		Hash:      hex.EncodeToString(sum[:]),
	}, nil
}

// TenantFingerprint returns a short stable digest of a credential.
func TenantFingerprint(apiKey string) string {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return anonymousTenant
	}
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8])
}
