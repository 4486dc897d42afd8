package fieldcipher

import (
	"encoding/json"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	c, err := New(k.Encode())
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "not-a-key", "c2hvcnQ="} {
		_, err := New(key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	for _, s := range []string{"amna@example.com", "+923001234567", "ünïcødé 🚑", " "} {
		tok, err := c.Encrypt(s)
		require.NoError(t, err)
		assert.NotEqual(t, s, tok)

		plain, err := c.Decrypt(tok)
		require.NoError(t, err)
		assert.Equal(t, s, plain)
	}
}

func TestEncryptNilAndEmpty(t *testing.T) {
	c := newTestCipher(t)

	tok, err := c.Encrypt(nil)
	require.NoError(t, err)
	assert.Equal(t, "", tok)

	plain, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", plain)
}

func TestEncryptSerializesNonStrings(t *testing.T) {
	c := newTestCipher(t)
	tok, err := c.Encrypt(map[string]any{"total": 1.5})
	require.NoError(t, err)

	plain, err := c.Decrypt(tok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":1.5}`, plain)
}

func TestDecryptRejectsForeignInput(t *testing.T) {
	c := newTestCipher(t)
	other := newTestCipher(t)

	tok, err := other.Encrypt("secret")
	require.NoError(t, err)

	_, err = c.Decrypt(tok)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = c.Decrypt("legacy@example.com")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestSafeDecrypt(t *testing.T) {
	c := newTestCipher(t)

	assert.Equal(t, "legacy@example.com", c.SafeDecrypt("legacy@example.com"))
	assert.Equal(t, 42, c.SafeDecrypt(42))
	assert.Nil(t, c.SafeDecrypt(nil))

	tok, err := c.Encrypt("amna@example.com")
	require.NoError(t, err)
	assert.Equal(t, "amna@example.com", c.SafeDecrypt(tok))

	assert.Nil(t, c.SafeDecryptString(nil))
	legacy := "House 7, Street 3"
	assert.Equal(t, legacy, *c.SafeDecryptString(&legacy))
}

func TestSealAndOpenPayload(t *testing.T) {
	c := newTestCipher(t)
	raw := []byte(`{
		"message": {
			"type": "end-of-call-report",
			"summary": "Patient booked a cleaning",
			"cost": 0.42,
			"customer": {"number": "+923001234567"},
			"call": {"id": "abc"},
			"analysis": {"summary": "short", "successEvaluation": "true"},
			"artifact": {
				"transcript": "AI: hello",
				"messages": [{"role": "user", "message": "tomorrow 10am", "time": 1}]
			},
			"messages": [{"role": "bot", "content": "Sure"}, "raw entry"]
		}
	}`)

	sealed, err := c.SealPayload(raw)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "Patient booked a cleaning")
	assert.NotContains(t, string(sealed), "+923001234567")
	assert.NotContains(t, string(sealed), "AI: hello")
	assert.NotContains(t, string(sealed), "tomorrow 10am")
	assert.NotContains(t, string(sealed), `"Sure"`)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(sealed, &doc))
	msg := doc["message"].(map[string]any)
	assert.Equal(t, "end-of-call-report", msg["type"])
	assert.Equal(t, "abc", msg["call"].(map[string]any)["id"])
	assert.Equal(t, "true", msg["analysis"].(map[string]any)["successEvaluation"])
	assert.Equal(t, "raw entry", msg["messages"].([]any)[1])

	opened, err := c.OpenPayload(sealed)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(opened))
}

func TestSealPayloadLeavesNonObjects(t *testing.T) {
	c := newTestCipher(t)

	out, err := c.SealPayload([]byte(`["a","b"]`))
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, string(out))

	_, err = c.SealPayload([]byte(`{not json`))
	assert.Error(t, err)
}

func TestOpenPayloadKeepsLegacyPlaintext(t *testing.T) {
	c := newTestCipher(t)
	raw := `{"message":{"summary":"stored before encryption","transcript":null}}`

	opened, err := c.OpenPayload([]byte(raw))
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(opened))
}
