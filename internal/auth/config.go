package auth

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultIssuer          = "rollcall"
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 7 * 24 * time.Hour
	defaultBcryptCost      = 12
	defaultNamespacePrefix = "org"
	defaultNamespaceMaxLen = 63
	defaultOpTimeout       = 5 * time.Second
	defaultRetryAttempts   = 3
	defaultRetryInterval   = 50 * time.Millisecond
	minSecretLength        = 32
)

// Password hashing algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Config is the immutable configuration of the auth core. It is passed by
// value into constructors; nothing in the package reads process globals.
type Config struct {
	Issuer        string
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	PasswordAlgorithm string
	BcryptCost        int
	Argon2            Argon2Params
	HashWorkers       int

	NamespacePrefix string
	NamespaceMaxLen int

	OperationTimeout time.Duration
	RetryAttempts    int
	RetryInterval    time.Duration
}

// Argon2Params are the argon2id cost parameters used for new hashes.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

// DefaultArgon2Params mirror the parameters used for legacy user hashes.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  2,
		Parallelism: 1,
		KeyLength:   32,
		SaltLength:  16,
	}
}

// DefaultConfig returns a Config with every tunable set; secrets stay empty.
func DefaultConfig() Config {
	return Config{
		Issuer:            defaultIssuer,
		AccessTTL:         defaultAccessTTL,
		RefreshTTL:        defaultRefreshTTL,
		PasswordAlgorithm: AlgorithmBcrypt,
		BcryptCost:        defaultBcryptCost,
		Argon2:            DefaultArgon2Params(),
		HashWorkers:       runtime.GOMAXPROCS(0),
		NamespacePrefix:   defaultNamespacePrefix,
		NamespaceMaxLen:   defaultNamespaceMaxLen,
		OperationTimeout:  defaultOpTimeout,
		RetryAttempts:     defaultRetryAttempts,
		RetryInterval:     defaultRetryInterval,
	}
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Issuer) == "" {
		errs = append(errs, errors.New("issuer is required"))
	}
	if len(c.AccessSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("access secret must be at least %d bytes", minSecretLength))
	}
	if len(c.RefreshSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("refresh secret must be at least %d bytes", minSecretLength))
	}
	if len(c.AccessSecret) > 0 && string(c.AccessSecret) == string(c.RefreshSecret) {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token ttls must be positive"))
	} else if c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, errors.New("access ttl must be shorter than refresh ttl"))
	}
	switch c.PasswordAlgorithm {
	case AlgorithmBcrypt:
		if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
			errs = append(errs, fmt.Errorf("bcrypt cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
		}
	case AlgorithmArgon2id:
		if c.Argon2.Memory == 0 || c.Argon2.Iterations == 0 || c.Argon2.Parallelism == 0 || c.Argon2.KeyLength == 0 || c.Argon2.SaltLength == 0 {
			errs = append(errs, errors.New("argon2 parameters must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported password algorithm %q", c.PasswordAlgorithm))
	}
	if c.HashWorkers <= 0 {
		errs = append(errs, errors.New("hash workers must be positive"))
	}
	if !validPrefix(c.NamespacePrefix) {
		errs = append(errs, fmt.Errorf("namespace prefix %q must match [a-z][a-z0-9]*", c.NamespacePrefix))
	}
	if c.NamespaceMaxLen <= len(c.NamespacePrefix)+1 {
		errs = append(errs, errors.New("namespace max length leaves no room for the identifier"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("retry attempts must be at least 1"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("auth config: %w", errors.Join(errs...))
}
