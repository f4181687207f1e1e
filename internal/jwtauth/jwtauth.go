// Package jwtauth issues and verifies the two flavors of JWT Rise signs:
// HS256 tokens for UI/CLI sessions, and RS256 tokens (published via JWKS)
// for authenticating to deployed projects' ingress.
package jwtauth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// ErrMissingClaim is returned when a required claim is absent from the
// IdP claims handed to SignIngressJWT.
var ErrMissingClaim = errors.New("jwtauth: missing required claim")

// RiseClaims are the claims carried by every Rise-issued JWT. The aud
// claim distinguishes the two issuance paths: a UI token's aud is the
// Rise backend's own public URL, an ingress token's aud is the project
// URL it authenticates against.
type RiseClaims struct {
	Subject   string
	Email     string
	Name      string
	Groups    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
	Audience  string
}

// Signer signs and verifies Rise JWTs under both algorithms.
type Signer struct {
	hs256Secret []byte

	rs256Private *rsa.PrivateKey
	rs256Public  *rsa.PublicKey
	rs256PEM     string
	keyID        string

	issuer        string
	defaultExpiry time.Duration
}

// New builds a Signer. hs256SecretBase64 must decode to at least 32
// bytes. rsaPrivatePEM/rsaPublicPEM are optional; when empty a fresh
// 2048-bit RSA key pair is generated, which means previously issued
// ingress JWTs stop verifying across a restart — callers that need
// persistence must supply a pre-generated key pair.
func New(hs256SecretBase64, issuer string, defaultExpiry time.Duration, rsaPrivatePEM, rsaPublicPEM string) (*Signer, error) {
	secret, err := base64.StdEncoding.DecodeString(hs256SecretBase64)
	if err != nil {
		return nil, fmt.Errorf("jwtauth: decoding hs256 secret: %w", err)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwtauth: hs256 secret must decode to at least 32 bytes, got %d", len(secret))
	}

	priv, pub, pubPEM, err := loadOrGenerateRSAKeys(rsaPrivatePEM, rsaPublicPEM)
	if err != nil {
		return nil, err
	}

	return &Signer{
		hs256Secret:   secret,
		rs256Private:  priv,
		rs256Public:   pub,
		rs256PEM:      pubPEM,
		keyID:         keyID(pubPEM),
		issuer:        issuer,
		defaultExpiry: defaultExpiry,
	}, nil
}

func keyID(publicPEM string) string {
	sum := sha256.Sum256([]byte(publicPEM))
	return hex.EncodeToString(sum[:])[:16]
}

func loadOrGenerateRSAKeys(privatePEM, publicPEM string) (*rsa.PrivateKey, *rsa.PublicKey, string, error) {
	if privatePEM != "" {
		priv, err := parseRSAPrivateKeyPEM(privatePEM)
		if err != nil {
			return nil, nil, "", fmt.Errorf("jwtauth: parsing rs256 private key: %w", err)
		}
		if publicPEM != "" {
			pub, err := parseRSAPublicKeyPEM(publicPEM)
			if err != nil {
				return nil, nil, "", fmt.Errorf("jwtauth: parsing rs256 public key: %w", err)
			}
			return priv, pub, publicPEM, nil
		}
		pubPEM, err := encodeRSAPublicKeyPEM(&priv.PublicKey)
		if err != nil {
			return nil, nil, "", err
		}
		return priv, &priv.PublicKey, pubPEM, nil
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, "", fmt.Errorf("jwtauth: generating rs256 key pair: %w", err)
	}
	pubPEM, err := encodeRSAPublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return nil, nil, "", err
	}
	return priv, &priv.PublicKey, pubPEM, nil
}

func parseRSAPrivateKeyPEM(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("PEM block does not contain an RSA private key")
	}
	return rsaKey, nil
}

func parseRSAPublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("PEM block does not contain an RSA public key")
	}
	return rsaKey, nil
}

func encodeRSAPublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("jwtauth: marshaling rs256 public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// KeyID is the kid published in both signed RS256 tokens and the JWKS.
func (s *Signer) KeyID() string { return s.keyID }

// JWKS returns the RS256 public key as an RFC 7517 key set, for deployed
// projects to fetch and validate Rise-issued ingress JWTs themselves.
func (s *Signer) JWKS() (jwk.Set, error) {
	key, err := jwk.Import(s.rs256Public)
	if err != nil {
		return nil, fmt.Errorf("jwtauth: importing rs256 public key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, s.keyID); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return nil, err
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, err
	}
	return set, nil
}

// IdPClaims is the subset of an upstream identity provider's token this
// package reads from when minting an ingress JWT.
type IdPClaims struct {
	Subject string
	Email   string
	Name    string
	Groups  []string
}

// SignIngressJWT mints an RS256 JWT scoped to projectURL, for
// authenticating a user against a deployed project's ingress.
// expiryOverride, when non-nil, replaces the signer's default expiry.
func (s *Signer) SignIngressJWT(idp IdPClaims, projectURL string, expiryOverride *time.Time) (string, error) {
	if idp.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if idp.Email == "" {
		return "", fmt.Errorf("%w: email", ErrMissingClaim)
	}

	now := time.Now().UTC()
	exp := now.Add(s.defaultExpiry)
	if expiryOverride != nil {
		exp = *expiryOverride
	}

	builder := jwt.NewBuilder().
		Subject(idp.Subject).
		Claim("email", idp.Email).
		IssuedAt(now).
		Expiration(exp).
		Issuer(s.issuer).
		Audience([]string{projectURL})
	if idp.Name != "" {
		builder = builder.Claim("name", idp.Name)
	}
	if len(idp.Groups) > 0 {
		builder = builder.Claim("groups", idp.Groups)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("jwtauth: building claims: %w", err)
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, s.keyID); err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), s.rs256Private, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", fmt.Errorf("jwtauth: signing: %w", err)
	}
	return string(signed), nil
}

// SignSessionJWT mints an HS256 JWT for the rise_jwt cookie / CLI Bearer
// token audience: it authenticates a user to the Rise control plane
// itself, as opposed to SignIngressJWT's per-project audience.
// expiryOverride, when non-nil, replaces the signer's default expiry.
func (s *Signer) SignSessionJWT(idp IdPClaims, expiryOverride *time.Time) (string, error) {
	if idp.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if idp.Email == "" {
		return "", fmt.Errorf("%w: email", ErrMissingClaim)
	}

	now := time.Now().UTC()
	exp := now.Add(s.defaultExpiry)
	if expiryOverride != nil {
		exp = *expiryOverride
	}

	builder := jwt.NewBuilder().
		Subject(idp.Subject).
		Claim("email", idp.Email).
		IssuedAt(now).
		Expiration(exp).
		Issuer(s.issuer).
		Audience([]string{s.issuer})
	if idp.Name != "" {
		builder = builder.Claim("name", idp.Name)
	}
	if len(idp.Groups) > 0 {
		builder = builder.Claim("groups", idp.Groups)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("jwtauth: building claims: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), s.hs256Secret))
	if err != nil {
		return "", fmt.Errorf("jwtauth: signing: %w", err)
	}
	return string(signed), nil
}

// VerifyJWTSkipAud verifies a token's signature and issuer but not its
// audience, for the ingress-auth path where the project URL the caller
// is authorizing against is validated separately against the store.
func (s *Signer) VerifyJWTSkipAud(tokenStr string) (*RiseClaims, error) {
	msg, err := jws.Parse([]byte(tokenStr))
	if err != nil {
		return nil, fmt.Errorf("jwtauth: parsing token: %w", err)
	}
	if len(msg.Signatures()) == 0 {
		return nil, errors.New("jwtauth: token has no signatures")
	}
	alg, ok := msg.Signatures()[0].ProtectedHeaders().Algorithm()
	if !ok {
		return nil, errors.New("jwtauth: token has no alg header")
	}

	var key interface{}
	switch alg {
	case jwa.HS256():
		key = s.hs256Secret
	case jwa.RS256():
		key = s.rs256Public
	default:
		return nil, fmt.Errorf("jwtauth: unsupported algorithm %s", alg)
	}

	// No jwt.WithAudience option is passed: jwx only validates the
	// audience when one is supplied, so omitting it is how we skip aud
	// validation while still checking signature and issuer.
	token, err := jwt.Parse([]byte(tokenStr),
		jwt.WithKey(alg, key),
		jwt.WithValidate(true),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("jwtauth: verifying: %w", err)
	}

	return claimsFromToken(token)
}

func claimsFromToken(token jwt.Token) (*RiseClaims, error) {
	claims := &RiseClaims{
		Issuer:    token.Issuer(),
		Subject:   token.Subject(),
		IssuedAt:  token.IssuedAt(),
		ExpiresAt: token.Expiration(),
	}
	if aud := token.Audience(); len(aud) > 0 {
		claims.Audience = aud[0]
	}

	var email string
	if err := token.Get("email", &email); err == nil {
		claims.Email = email
	} else {
		return nil, fmt.Errorf("%w: email", ErrMissingClaim)
	}

	var name string
	if err := token.Get("name", &name); err == nil {
		claims.Name = name
	}

	var groups []string
	if err := token.Get("groups", &groups); err == nil {
		claims.Groups = groups
	}

	return claims, nil
}
