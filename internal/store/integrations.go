package store

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mossline/storepilot/internal/action"
)

// IntegrationRow represents a connected external account. AccessToken is
// plaintext in memory and encrypted at rest.
type IntegrationRow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Type        string    `json:"integration_type"`
	ExternalID  string    `json:"external_id"`
	AccessToken string    `json:"-"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// encryptKey returns the 32-byte AES key from the STOREPILOT_ENCRYPT_KEY
// env var.
func encryptKey() ([]byte, error) {
	keyHex := os.Getenv("STOREPILOT_ENCRYPT_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("STOREPILOT_ENCRYPT_KEY not set")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode STOREPILOT_ENCRYPT_KEY: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("STOREPILOT_ENCRYPT_KEY must be 64 hex chars (32 bytes), got %d bytes", len(key))
	}
	return key, nil
}

// encrypt uses AES-256-GCM to encrypt plaintext.
func encrypt(plaintext string) ([]byte, error) {
	key, err := encryptKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// decrypt uses AES-256-GCM to decrypt ciphertext.
func decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) == 0 {
		return "", nil
	}
	key, err := encryptKey()
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// UpsertIntegration saves a connected account, replacing the stored token
// when the (user, type, external id) triple already exists. The upserted
// row becomes the active one for its type.
func (s *Store) UpsertIntegration(ctx context.Context, row *IntegrationRow) error {
	encToken, err := encrypt(row.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE integrations SET active=false, updated_at=NOW()
		 WHERE user_id=$1 AND integration_type=$2 AND active=true`,
		row.UserID, row.Type,
	); err != nil {
		return fmt.Errorf("deactivate previous: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO integrations (id, user_id, integration_type, external_id, access_token_enc, active)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, true)
		 ON CONFLICT (user_id, integration_type, external_id)
		 DO UPDATE SET access_token_enc=$4, active=true, updated_at=NOW()`,
		row.UserID, row.Type, row.ExternalID, encToken,
	); err != nil {
		return fmt.Errorf("upsert integration: %w", err)
	}
	return tx.Commit(ctx)
}

// ActiveCredential returns the caller's active credential for an
// integration type, with the token decrypted. Implements the credential
// source the action registry consumes.
func (s *Store) ActiveCredential(ctx context.Context, userID, integrationType string) (*action.Credential, error) {
	row := s.db.QueryRow(ctx,
		`SELECT external_id, access_token_enc FROM integrations
		 WHERE user_id=$1 AND integration_type=$2 AND active=true
		 ORDER BY updated_at DESC LIMIT 1`,
		userID, integrationType)

	var externalID string
	var encToken []byte
	if err := row.Scan(&externalID, &encToken); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, action.ErrNoCredential
		}
		return nil, fmt.Errorf("query integration: %w", err)
	}

	token, err := decrypt(encToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	return &action.Credential{ExternalID: externalID, AccessToken: token}, nil
}

// ListIntegrations returns the caller's connected accounts without
// tokens.
func (s *Store) ListIntegrations(ctx context.Context, userID string) ([]*IntegrationRow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, integration_type, external_id, active, created_at, updated_at
		 FROM integrations WHERE user_id=$1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query integrations: %w", err)
	}
	defer rows.Close()

	var out []*IntegrationRow
	for rows.Next() {
		var r IntegrationRow
		if err := rows.Scan(&r.ID, &r.UserID, &r.Type, &r.ExternalID,
			&r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
