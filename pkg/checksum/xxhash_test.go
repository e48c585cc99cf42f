package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayload(t *testing.T) {
	t.Run("should be stable for the same payload", func(t *testing.T) {
		payload := []byte(`{"data":[{"Department":"Kitchen"}]}`)

		assert.Equal(t, Payload(payload), Payload(payload))
	})

	t.Run("should change when the payload changes", func(t *testing.T) {
		assert.NotEqual(t, Payload([]byte(`{"a":1}`)), Payload([]byte(`{"a":2}`)))
	})

	t.Run("should produce a 16 character hex digest", func(t *testing.T) {
		digest := Payload([]byte("report"))

		assert.Len(t, digest, 16)
		assert.Regexp(t, "^[0-9a-f]+$", digest)
	})
}
