package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
)

// ComputeFingerprint hashes a payload's value map into a short hex
// fingerprint used for whole-payload deduplication. Values are rounded to
// two decimal places to absorb transport-level floating noise, keys are
// serialized in sorted order so equal payloads always hash equal, and the
// digest is truncated to 16 hex chars; this is a dedup heuristic, not a
// security property.
func ComputeFingerprint(values map[string]*float64) string {
	rounded := make(map[string]interface{}, len(values))
	for k, v := range values {
		switch {
		case v == nil:
			rounded[k] = nil
		case math.IsNaN(*v) || math.IsInf(*v, 0):
			// encoding/json rejects non-finite floats. The JSON transport never
			// produces them, but a library caller can; serialize them as text so
			// such payloads still fingerprint deterministically.
			rounded[k] = strconv.FormatFloat(*v, 'g', -1, 64)
		default:
			rounded[k] = math.Round(*v*100) / 100
		}
	}

	// encoding/json writes map keys in sorted order, which gives us the
	// canonical serialization for free. Finite floats, strings and nil
	// cannot fail to marshal.
	data, _ := json.Marshal(rounded)

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
