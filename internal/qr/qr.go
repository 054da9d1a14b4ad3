package qr

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultMinLength é o menor payload plausível vindo do backend.
// Payloads reais nunca chegam perto desse limite.
const DefaultMinLength = 50

const (
	dataURIPrefix = "data:image/"
	pngPrefix     = "data:image/png;base64,"
)

var (
	ErrEmpty        = errors.New("qr: payload ausente")
	ErrTooShort     = errors.New("qr: payload curto demais")
	ErrUnrecognized = errors.New("qr: formato não reconhecido")
	ErrCorrupted    = errors.New("qr: imagem corrompida")
)

var (
	base64Re  = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)
	pairingRe = regexp.MustCompile(`^\d+@[A-Za-z0-9+/=,]+$`)
)

// Normalize converte o payload bruto do evento em uma data URI exibível.
//
// O backend não é controlado por este código e emite o QR em três formas:
// data URI completa, imagem base64 sem prefixo, ou o código de pareamento
// cru do WhatsApp (segmentos separados por vírgula). Toda a heurística de
// detecção vive aqui, atrás de uma única função.
func Normalize(payload string, minLength int) (string, error) {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if payload == "" {
		return "", ErrEmpty
	}
	if len(payload) < minLength {
		return "", fmt.Errorf("%w: %d bytes", ErrTooShort, len(payload))
	}

	if strings.HasPrefix(payload, dataURIPrefix) {
		return payload, nil
	}

	// Imagem base64 sem prefixo (assinatura PNG "iVBOR" ou charset base64).
	if strings.HasPrefix(payload, "iVBOR") || base64Re.MatchString(payload) {
		return pngPrefix + payload, nil
	}

	// Código de pareamento cru: renderiza localmente em PNG.
	if pairingRe.MatchString(payload) {
		png, err := qrcode.Encode(payload, qrcode.Medium, 512)
		if err != nil {
			return "", fmt.Errorf("qr: renderizar código de pareamento: %w", err)
		}
		return pngPrefix + base64.StdEncoding.EncodeToString(png), nil
	}

	return "", ErrUnrecognized
}

// DecodeCheck decodifica a data URI como imagem para confirmar que ela é
// exibível. É usado nos caminhos em que o payload completo está em mãos
// (busca manual via REST); no caminho de eventos a validação é apenas de
// formato, para não descartar QRs que o renderizador aceitaria.
func DecodeCheck(uri string) error {
	idx := strings.Index(uri, "base64,")
	if idx < 0 {
		return ErrUnrecognized
	}

	raw, err := base64.StdEncoding.DecodeString(uri[idx+len("base64,"):])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return nil
}
