package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/pkg/crypto"
)

var ErrNotFound = errors.New("credential: token não encontrado")

// Store guarda o token de acesso do usuário em disco, cifrado com AES-GCM.
// O token é um credencial opaco emitido pelo backend; quando for um JWT
// parseável, a identidade do usuário é extraída da claim "sub".
type Store struct {
	path   string
	encKey string
	log    *zap.Logger

	mu    sync.RWMutex
	token string
}

func NewStore(dataDir, encKey string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("credential: criar diretório: %w", err)
	}

	s := &Store{
		path:   filepath.Join(dataDir, "credential.bin"),
		encKey: encKey,
		log:    log,
	}

	if err := s.load(); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("credential: ler arquivo: %w", err)
	}

	plain, err := crypto.Decrypt(blob, s.encKey)
	if err != nil {
		s.log.Warn("credential: arquivo inválido, descartando", zap.Error(err))
		_ = os.Remove(s.path)
		return ErrNotFound
	}

	s.mu.Lock()
	s.token = strings.TrimSpace(string(plain))
	s.mu.Unlock()

	s.log.Info("credential: token restaurado do disco")
	return nil
}

// Set substitui o token atual e o persiste cifrado.
func (s *Store) Set(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credential: token vazio")
	}

	blob, err := crypto.Encrypt([]byte(token), s.encKey)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, blob, 0600); err != nil {
		return fmt.Errorf("credential: gravar arquivo: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Clear remove o token do disco e da memória.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("credential: remover arquivo: %w", err)
	}
	return nil
}

func (s *Store) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNotFound
	}
	return s.token, nil
}

// UserID extrai a identidade do usuário da claim "sub" do token.
// Tokens que não são JWTs parseáveis resultam em identidade vazia,
// o que impede a ativação da sessão realtime.
func (s *Store) UserID() string {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return ""
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	// Assinatura não é verificada aqui: a validação é do backend,
	// este lado só precisa da identidade para escopo da sessão.
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}
