package auth

import (
	"crypto/rand"

	"github.com/mr-tron/base58"

	"github.com/not-mt/zapd/errors"
)

// KeyPrefix marks generated zapd API keys so they are recognizable in
// configs and in secret scanners.
const KeyPrefix = "zpk_"

// GenerateKey mints a new API key from 32 bytes of crypto/rand and
// returns it with its fingerprint. The key is shown once at generation
// time; only the fingerprint goes into configuration.
func GenerateKey() (key, fingerprint string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", errors.Wrap(err, "failed to generate key material")
	}
	key = KeyPrefix + base58.Encode(buf)
	return key, Fingerprint(key), nil
}
