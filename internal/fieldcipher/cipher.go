// Package fieldcipher encrypts sensitive fields before they reach durable
// storage. Tokens are Fernet, so values written by earlier deployments
// remain readable with the same key.
package fieldcipher

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
)

var (
	ErrInvalidKey = errors.New("invalid encryption key")
	ErrDecrypt    = errors.New("decrypt field")
)

type Cipher struct {
	keys []*fernet.Key
}

func New(key string) (*Cipher, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Cipher{keys: []*fernet.Key{k}}, nil
}

// Encrypt seals value. Strings are encrypted as-is, nil becomes the empty
// string, anything else is JSON encoded first.
func (c *Cipher) Encrypt(value any) (string, error) {
	var plain []byte
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		plain = []byte(v)
	case []byte:
		plain = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal field: %w", err)
		}
		plain = b
	}

	tok, err := fernet.EncryptAndSign(plain, c.keys[0])
	if err != nil {
		return "", fmt.Errorf("encrypt field: %w", err)
	}
	return string(tok), nil
}

// EncryptString is Encrypt for the common optional-string case.
func (c *Cipher) EncryptString(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	out, err := c.Encrypt(*value)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	// negative ttl disables expiry; stored fields never expire
	plain := fernet.VerifyAndDecrypt([]byte(ciphertext), -1, c.keys)
	if plain == nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// SafeDecrypt never fails. Non-strings and values that are not valid
// tokens, such as legacy plaintext rows, come back unchanged.
func (c *Cipher) SafeDecrypt(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	plain, err := c.Decrypt(s)
	if err != nil {
		return value
	}
	return plain
}

// SafeDecryptString is SafeDecrypt for optional string columns.
func (c *Cipher) SafeDecryptString(value *string) *string {
	if value == nil {
		return nil
	}
	out := c.SafeDecrypt(*value).(string)
	return &out
}
