package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bancored/crypto"
	"bancored/storage"
)

// User-visible authentication strings.
const (
	msgUserExists       = "El usuario ya existe"
	msgRegisterOK       = "Usuario registrado exitosamente"
	msgRegisterInternal = "Error al crear el usuario"
	msgLoginOK          = "Login exitoso"
	msgBadCredentials   = "Credenciales incorrectas"
)

// passwordSymbols is the accepted symbol set for the password policy.
const passwordSymbols = "!@#$%^&*(),.?\":{}|<>_-+=[]\\/~`"

// Auth handles registration and login over the store, gated by the login
// limiter.
type Auth struct {
	store   *storage.Store
	limiter *loginLimiter
	logger  *slog.Logger

	// decoyHash is verified against when the username does not exist, so an
	// unknown user costs the same Argon2id work as a wrong password.
	decoyHash string
}

// NewAuth wires the authentication module. The limiter is shared with no one
// else; the store is borrowed.
func NewAuth(store *storage.Store, logger *slog.Logger) (*Auth, error) {
	decoy, err := crypto.HashPassword("decoy-credential-for-timing")
	if err != nil {
		return nil, fmt.Errorf("prepare decoy hash: %w", err)
	}
	return &Auth{
		store:     store,
		limiter:   newLoginLimiter(),
		logger:    logger,
		decoyHash: decoy,
	}, nil
}

// Register creates a new user after the password policy and uniqueness checks
// pass. The returned string is the user-visible outcome.
func (a *Auth) Register(ctx context.Context, username, password string) (bool, string) {
	if msg, ok := checkPasswordPolicy(password); !ok {
		a.logger.Info("registro rechazado por política de contraseña", "username", username)
		return false, msg
	}

	exists, err := a.store.UserExists(ctx, username)
	if err != nil {
		a.logger.Error("consulta de usuario fallida", "username", username, "error", err.Error())
		return false, msgRegisterInternal
	}
	if exists {
		a.logger.Warn("intento de registro con usuario existente", "username", username)
		return false, msgUserExists
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		a.logger.Error("hash de contraseña fallido", "error", err.Error())
		return false, msgRegisterInternal
	}

	if err := a.store.CreateUser(ctx, username, hash); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			// Lost the race against a concurrent registration of the same name.
			return false, msgUserExists
		}
		a.logger.Error("alta de usuario fallida", "username", username, "error", err.Error())
		return false, msgRegisterInternal
	}

	a.logger.Info("usuario registrado", "username", username)
	return true, msgRegisterOK
}

// Login authenticates username/password. The limiter gate runs first: a locked
// user is refused before any store access, so lockout dominates even a correct
// password. Unknown users and wrong passwords share one answer.
func (a *Auth) Login(ctx context.Context, username, password string) (bool, string) {
	allowed, minutes := a.limiter.allow(username)
	if !allowed {
		a.logger.Warn("login bloqueado por rate limit", "username", username, "minutos", minutes)
		return false, lockedMessage(minutes)
	}

	hash, found, err := a.store.PasswordHash(ctx, username)
	if err != nil {
		a.logger.Error("consulta de credenciales fallida", "username", username, "error", err.Error())
		return false, msgBadCredentials
	}
	if !found {
		// Burn the same verification cost as a real mismatch.
		_, _ = crypto.VerifyPassword(a.decoyHash, password)
		a.limiter.record(username, false)
		a.logger.Warn("login con usuario inexistente", "username", username)
		return false, msgBadCredentials
	}

	ok, err := crypto.VerifyPassword(hash, password)
	if err != nil {
		a.logger.Error("hash almacenado ilegible", "username", username, "error", err.Error())
		a.limiter.record(username, false)
		return false, msgBadCredentials
	}
	a.limiter.record(username, ok)
	if !ok {
		a.logger.Warn("contraseña incorrecta", "username", username)
		return false, msgBadCredentials
	}

	a.logger.Info("login exitoso", "username", username)
	return true, msgLoginOK
}

func lockedMessage(minutes int) string {
	return fmt.Sprintf("Usuario bloqueado. Intenta en %d minuto(s)", minutes)
}

// checkPasswordPolicy returns the first failing rule's message. All rules must
// hold for registration to proceed.
func checkPasswordPolicy(password string) (string, bool) {
	if strings.TrimSpace(password) == "" {
		return "La contraseña no puede estar vacía", false
	}
	if len([]rune(password)) < 12 {
		return "La contraseña debe tener al menos 12 caracteres", false
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return "La contraseña debe incluir al menos una mayúscula", false
	case !hasLower:
		return "La contraseña debe incluir al menos una minúscula", false
	case !hasDigit:
		return "La contraseña debe incluir al menos un número", false
	case !hasSymbol:
		return "La contraseña debe incluir al menos un símbolo", false
	}
	return "", true
}
