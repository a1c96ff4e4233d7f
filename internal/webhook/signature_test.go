package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bilgisen/synchronicity/internal/apperr"
)

const secret = "s3cret"

func TestVerify(t *testing.T) {
	body := []byte(`{"articleUrl":"https://example.substack.com/p/new-post"}`)
	good := Sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		ok        bool
	}{
		{"valid", secret, body, good, true},
		{"valid with prefix", secret, body, "sha256=" + good, true},
		{"tampered body", secret, []byte(`{"articleUrl":"https://evil.example.com/p/x"}`), good, false},
		{"whitespace changes body", secret, append([]byte(" "), body...), good, false},
		{"wrong secret", "other", body, good, false},
		{"not hex", secret, body, "zzzz", false},
		{"truncated", secret, body, good[:32], false},
		{"empty signature", secret, body, "", false},
		{"no secret configured", "", body, good, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.secret, tt.body, tt.signature)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperr.ErrSignature)
		})
	}
}

func TestSignIsHex(t *testing.T) {
	sig := Sign(secret, []byte("x"))
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Sign(secret, []byte("x")))
}
