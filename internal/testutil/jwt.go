package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// GenerateTestKeyPair generates an RSA key pair for testing JWT tokens
func GenerateTestKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

// GenerateTestJWT signs a token for userID with the given realm roles.
// clinicID is added as the clinicId claim when set.
func GenerateTestJWT(t *testing.T, privateKey *rsa.PrivateKey, userID, clinicID string, roles []string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": userID,
		"iss": TestIssuer,
		"exp": time.Now().Add(1 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
		"realm_access": map[string]interface{}{
			"roles": interfaceSlice(roles),
		},
	}
	if clinicID != "" {
		claims["clinicId"] = clinicID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID

	tokenString, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tokenString
}

func GenerateAssignerToken(t *testing.T, privateKey *rsa.PrivateKey) string {
	t.Helper()
	return GenerateTestJWT(t, privateKey, "assigner-123", "", []string{"ASSIGNER"})
}

func GenerateClinicToken(t *testing.T, privateKey *rsa.PrivateKey, clinicID string) string {
	t.Helper()
	return GenerateTestJWT(t, privateKey, "clinic-123", clinicID, []string{"CLINIC"})
}

func GenerateJuniorDoctorToken(t *testing.T, privateKey *rsa.PrivateKey, clinicID string) string {
	t.Helper()
	return GenerateTestJWT(t, privateKey, "doctor-123", clinicID, []string{"JUNIOR_DOCTOR"})
}

func interfaceSlice(strings []string) []interface{} {
	result := make([]interface{}, len(strings))
	for i, s := range strings {
		result[i] = s
	}
	return result
}
