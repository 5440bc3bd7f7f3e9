package testutil

import (
	"crypto/rsa"
	"testing"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/auth"
)

// TestIssuer is the issuer stamped into every token minted by GenerateTestJWT.
const TestIssuer = "https://test-keycloak.com/realms/clinic"

const testKeyID = "test-key-id"

// staticKeys serves a single RSA key under testKeyID.
type staticKeys struct {
	key *rsa.PublicKey
}

func (s staticKeys) Get(kid string) (interface{}, error) {
	if kid != testKeyID {
		return nil, auth.ErrKeyNotFound
	}
	return s.key, nil
}

// CreateTestVerifier returns a verifier that trusts tokens signed with the
// returned private key.
func CreateTestVerifier(t *testing.T) (*auth.Verifier, *rsa.PrivateKey) {
	t.Helper()

	privateKey, publicKey := GenerateTestKeyPair(t)
	verifier := auth.NewVerifier(auth.Config{Issuer: TestIssuer}, staticKeys{key: publicKey})
	return verifier, privateKey
}
