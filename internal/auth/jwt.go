package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role the service issues.
const RoleAdmin = "admin"

var (
	ErrBadCredentials = errors.New("invalid username or password")
	ErrInvalidToken   = errors.New("invalid token")
)

// Token is a signed admin access token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Claims represents JWT payload.
type Claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies admin tokens for the configured admin account.
type Issuer struct {
	username string
	password string
	issuer   string
	key      []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewIssuer creates an issuer for one hardcoded admin identity.
func NewIssuer(username, password, issuer, signingKey string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{
		username: username,
		password: password,
		issuer:   issuer,
		key:      []byte(signingKey),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Login checks the admin credentials and issues an access token.
func (i *Issuer) Login(username, password string) (Token, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(i.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(i.password)) == 1
	if i.username == "" || !userOK || !passOK {
		return Token{}, ErrBadCredentials
	}
	return i.Issue(username, RoleAdmin)
}

// Issue signs an access token for subject.
func (i *Issuer) Issue(subject, role string) (Token, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func (i *Issuer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.key, nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if i.issuer != "" && claims.Issuer != i.issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}
