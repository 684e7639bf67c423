// Package settings persists the AI API key.
package settings

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rmitchellscott/pdfdesk/internal/database"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"golang.org/x/crypto/nacl/secretbox"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// APIKeySetting is the row the Gemini key lives under.
const APIKeySetting = "gemini_api_key"

var ErrUnseal = errors.New("stored setting could not be decrypted")

// Provider hands out the current API key. An empty key means none is
// configured.
type Provider interface {
	APIKey(ctx context.Context) (string, error)
}

// Static is a Provider with a fixed key.
type Static string

func (s Static) APIKey(context.Context) (string, error) { return string(s), nil }

// Store reads and writes settings through gorm. The API key is cached
// after Load.
type Store struct {
	db  *gorm.DB
	key *[32]byte

	mu     sync.RWMutex
	apiKey string
	loaded bool
}

// NewStore wraps db. When secret is non-empty values are sealed with
// secretbox before they are written.
func NewStore(db *gorm.DB, secret string) *Store {
	s := &Store{db: db}
	if secret != "" {
		k := sha256.Sum256([]byte(secret))
		s.key = &k
	}
	return s
}

// Load reads the API key into memory.
func (s *Store) Load(ctx context.Context) error {
	var row database.Setting
	err := s.db.WithContext(ctx).First(&row, "key = ?", APIKeySetting).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.set("")
		return nil
	case err != nil:
		return fmt.Errorf("failed to load settings: %w", err)
	}

	value := row.Value
	if row.Sealed {
		value, err = s.open(row.Value)
		if err != nil {
			return err
		}
	}
	s.set(value)
	logging.Logf("[SETTINGS] Loaded API key (sealed: %v)", row.Sealed)
	return nil
}

func (s *Store) set(v string) {
	s.mu.Lock()
	s.apiKey = v
	s.loaded = true
	s.mu.Unlock()
}

// APIKey returns the cached key, loading it on first use.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	s.mu.RLock()
	v, loaded := s.apiKey, s.loaded
	s.mu.RUnlock()
	if loaded {
		return v, nil
	}
	if err := s.Load(ctx); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey, nil
}

// SaveAPIKey replaces the stored key. An empty key deletes it.
func (s *Store) SaveAPIKey(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return s.DeleteAPIKey(ctx)
	}

	row := database.Setting{Key: APIKeySetting, Value: apiKey, UpdatedAt: time.Now()}
	if s.key != nil {
		sealed, err := s.seal(apiKey)
		if err != nil {
			return err
		}
		row.Value, row.Sealed = sealed, true
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "sealed", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	s.set(apiKey)
	logging.Logf("[SETTINGS] API key saved")
	return nil
}

// DeleteAPIKey removes the stored key.
func (s *Store) DeleteAPIKey(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Delete(&database.Setting{}, "key = ?", APIKeySetting).Error; err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	s.set("")
	logging.Logf("[SETTINGS] API key removed")
	return nil
}

func (s *Store) seal(plain string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Store) open(sealed string) (string, error) {
	if s.key == nil {
		return "", fmt.Errorf("%w: SETTINGS_SECRET is not set", ErrUnseal)
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < 24+secretbox.Overhead {
		return "", ErrUnseal
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, s.key)
	if !ok {
		return "", ErrUnseal
	}
	return string(plain), nil
}

// Mask shows only the last four characters of a key.
func Mask(key string) string {
	if key == "" {
		return ""
	}
	r := []rune(key)
	if len(r) <= 4 {
		return strings.Repeat("•", len(r))
	}
	return strings.Repeat("•", 8) + string(r[len(r)-4:])
}
