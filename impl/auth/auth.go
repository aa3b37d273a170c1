// Package auth issues participant bearer tokens and resolves them back to participants.
// Only a hash of the token is stored.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"votesecret/entity"
)

const tokenBytes = 32

type Database interface {
	GetParticipantByToken(ctx context.Context, tokenHash string) (*entity.Participant, error)
}

type Auth struct {
	db Database
}

func New(db Database) *Auth {
	return &Auth{db: db}
}

func (a Auth) ParticipantByToken(ctx context.Context, token string) (*entity.Participant, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database not connected")
	}
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}
	participant, err := a.db.GetParticipantByToken(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, fmt.Errorf("participant not found")
	}
	return participant, nil
}

// NewToken returns a random token to hand to a participant once.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
