// Package auth is the authorization gate in front of the core: it resolves a
// caller to (accountID, role) or fails. Business-rule authorization (caller
// must be the escrow's payer, etc.) stays inside the core operations.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"escrowflow/account"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrInvalidToken signals a token that failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// AccountStore defines the account access required by the gate.
type AccountStore interface {
	Create(ctx context.Context, params account.CreateParams) (account.Account, error)
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	GetByID(ctx context.Context, id string) (account.Account, error)
}

// RegisterRequest carries a signup normalized for the service.
type RegisterRequest struct {
	Email    string
	Password string
	Role     account.Role
}

// LoginResult bundles the token and account returned after a successful login.
type LoginResult struct {
	Token   string
	Account account.Account
}

// Service handles authentication business logic.
type Service struct {
	accounts  AccountStore
	jwtSecret []byte
}

// NewService creates a new authentication service.
func NewService(accounts AccountStore, jwtSecret string) *Service {
	return &Service{
		accounts:  accounts,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register provisions a new platform account with a zero balance.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (account.Account, error) {
	if len(req.Password) < 8 {
		return account.Account{}, ErrWeakPassword
	}
	if req.Email == "" {
		return account.Account{}, fmt.Errorf("auth: email is required")
	}

	role := req.Role
	if role == "" {
		role = account.RolePayer
	}
	if !account.ValidRole(role) {
		return account.Account{}, fmt.Errorf("auth: invalid role %q", role)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return account.Account{}, fmt.Errorf("auth: hash password: %w", err)
	}

	return s.accounts.Create(ctx, account.CreateParams{
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		Role:         role,
	})
}

// Login authenticates an account and returns a JWT token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(acct.ID, acct.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{Token: token, Account: acct}, nil
}

// VerifyToken validates a JWT token and returns the caller identity.
func (s *Service) VerifyToken(tokenString string) (string, account.Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidToken
	}

	accountID, ok := claims["account_id"].(string)
	if !ok {
		return "", "", fmt.Errorf("auth: invalid account_id in token")
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return "", "", fmt.Errorf("auth: invalid role in token")
	}
	role := account.Role(roleStr)
	if !account.ValidRole(role) {
		return "", "", fmt.Errorf("auth: invalid role %q in token", roleStr)
	}

	return accountID, role, nil
}

// generateToken creates a JWT token for the account.
func (s *Service) generateToken(accountID string, role account.Role) (string, error) {
	claims := jwt.MapClaims{
		"account_id": accountID,
		"role":       role,
		"exp":        time.Now().Add(24 * time.Hour).Unix(),
		"iat":        time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
