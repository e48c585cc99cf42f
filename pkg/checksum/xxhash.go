package checksum

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// Payload returns the hex fingerprint of a raw report payload. Identical
// payloads always hash the same, which is what the re-run skip relies on.
func Payload(data []byte) string {
	digest := xxhash.New()
	digest.Write(data)

	return hex.EncodeToString(digest.Sum(nil))
}
