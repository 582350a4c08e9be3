package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/tesola/staking-sync/internal/config"
	"go.uber.org/zap"
)

var ErrUnauthorized = errors.New("unauthorized")

type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ValidateAddress accepts a base58 string that decodes to exactly 32 bytes.
func ValidateAddress(field, value string) (solanago.PublicKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return solanago.PublicKey{}, &ValidationError{Field: field, Value: value, Reason: "is required"}
	}
	decoded := base58.Decode(value)
	if len(decoded) == 0 {
		return solanago.PublicKey{}, &ValidationError{Field: field, Value: value, Reason: "is not base58"}
	}
	if len(decoded) != solanago.PublicKeyLength {
		return solanago.PublicKey{}, &ValidationError{
			Field:  field,
			Value:  value,
			Reason: fmt.Sprintf("decodes to %d bytes, expected %d", len(decoded), solanago.PublicKeyLength),
		}
	}
	return solanago.PublicKeyFromBytes(decoded), nil
}

// Gate holds digests of the configured secrets; the raw values are not retained.
type Gate struct {
	adminKey   []byte
	cronSecret []byte
	logger     *zap.Logger
}

func digest(value string) []byte {
	if value == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(value))
	return sum[:]
}

func NewGate(cfg *config.SecurityConfig, l *zap.Logger) *Gate {
	if !cfg.HasAdminKey() {
		l.Sugar().Warnw("Admin key is not configured; admin requests will be rejected")
	}
	if !cfg.HasCronSecret() {
		l.Sugar().Warnw("Cron secret is not configured; cron requests will be rejected")
	}
	return &Gate{
		adminKey:   digest(cfg.AdminKey),
		cronSecret: digest(cfg.CronSecret),
		logger:     l,
	}
}

func (g *Gate) compare(expected []byte, provided string, name string) error {
	if expected == nil {
		g.logger.Sugar().Debugw("Rejected credential, none configured", zap.String("credential", name))
		return errors.Wrapf(ErrUnauthorized, "%s not configured", name)
	}
	if provided == "" || subtle.ConstantTimeCompare(expected, digest(provided)) != 1 {
		return errors.Wrapf(ErrUnauthorized, "invalid %s", name)
	}
	return nil
}

func (g *Gate) ValidateAdminKey(key string) error {
	return g.compare(g.adminKey, key, "admin key")
}

func (g *Gate) ValidateCronSecret(secret string) error {
	return g.compare(g.cronSecret, secret, "cron secret")
}
