// Package keys manages the local RSA key used in dev mode, where the service
// verifies tokens it issued itself instead of a remote identity provider.
// The public half is exported as a JWKS so local frontends can still do
// standard discovery.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/rosterhub/rostersync/pkg/common/logger"
)

var (
	once     sync.Once
	localSet jwk.Set
	localKid string
	localKey *rsa.PrivateKey
)

// Init ensures the local key and JWKS are available. A key can be provided
// via DEV_PRIVATE_KEY_PEM (PKCS#1 or PKCS#8); otherwise an ephemeral one is
// generated, which is fine for sandbox use since tokens only need to outlive
// the process.
func Init() error {
	var initErr error
	once.Do(func() {
		kid := os.Getenv("DEV_KID")
		if kid == "" {
			kid = uuid.NewString()
		}
		localKid = kid

		key := keyFromEnv()
		if key == nil {
			gen, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				initErr = err
				return
			}
			key = gen
			logger.Info("generated ephemeral dev signing key (kid %s); set DEV_PRIVATE_KEY_PEM to persist one", kid)
		}
		localKey = key

		pub, err := jwk.FromRaw(&key.PublicKey)
		if err != nil {
			initErr = err
			return
		}
		_ = pub.Set(jwk.KeyIDKey, kid)
		_ = pub.Set(jwk.AlgorithmKey, "RS256")
		_ = pub.Set(jwk.KeyUsageKey, "sig")

		set := jwk.NewSet()
		_ = set.AddKey(pub)
		localSet = set
	})
	return initErr
}

func keyFromEnv() *rsa.PrivateKey {
	pemStr := os.Getenv("DEV_PRIVATE_KEY_PEM")
	if pemStr == "" {
		return nil
	}
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rk, ok := parsed.(*rsa.PrivateKey); ok {
			return rk
		}
	}
	return nil
}

// JWKSJSON returns the local JWKS as JSON bytes.
func JWKSJSON() ([]byte, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	return json.Marshal(localSet)
}

// PrivateKey returns the local signing key, or nil before Init.
func PrivateKey() *rsa.PrivateKey { return localKey }

// Kid returns the current key id.
func Kid() string { return localKid }
