package auth

import (
	"os"
	"strings"
)

// Config holds auth configuration
type Config struct {
	Issuer   string
	JWKSURL  string
	Audience string
}

var (
	DefaultIssuer  = "http://localhost:8081/realms/clinic"
	DefaultJWKSURL = "http://localhost:8081/realms/clinic/protocol/openid-connect/certs"
)

// LoadConfig reads config from env with sensible defaults.
// Override with AUTH_ISSUER, AUTH_JWKS_URL and AUTH_AUD.
// When only the issuer is set the JWKS URL is derived from it.
func LoadConfig() Config {
	issuer := os.Getenv("AUTH_ISSUER")
	if issuer == "" {
		issuer = DefaultIssuer
	}
	jwks := os.Getenv("AUTH_JWKS_URL")
	if jwks == "" {
		if os.Getenv("AUTH_ISSUER") != "" {
			jwks = strings.TrimRight(issuer, "/") + "/protocol/openid-connect/certs"
		} else {
			jwks = DefaultJWKSURL
		}
	}
	return Config{
		Issuer:   issuer,
		JWKSURL:  jwks,
		Audience: os.Getenv("AUTH_AUD"),
	}
}
