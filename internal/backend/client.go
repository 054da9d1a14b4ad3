package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/model"
)

const basePath = "/api/whatsapp-web"

// envelope é o formato de toda resposta do backend.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// CredentialSource fornece o token bearer das requisições.
type CredentialSource interface {
	Token() (string, error)
}

// Client consome a API REST da plataforma. Nenhuma regra de negócio vive
// aqui; falhas viram erros com a mensagem do servidor quando ela existe.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, creds CredentialSource, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		log:     log,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: new request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	token, err := c.creds.Token()
	if err != nil {
		return fmt.Errorf("backend: credencial ausente: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: ler resposta: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("backend: resposta inválida: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("requisição falhou (status %d)", resp.StatusCode)
		}
		c.log.Warn("backend: resposta de erro",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return errors.New(msg)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("backend: decodificar data: %w", err)
		}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("backend: marshal: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *Client) Accounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if err := c.doJSON(ctx, http.MethodGet, basePath+"/accounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) Campaigns(ctx context.Context) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	if err := c.doJSON(ctx, http.MethodGet, basePath+"/campaigns", nil, &campaigns); err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (c *Client) Analytics(ctx context.Context, timeRange string) (model.Analytics, error) {
	if timeRange == "" {
		timeRange = "7d"
	}
	var analytics model.Analytics
	err := c.doJSON(ctx, http.MethodGet, basePath+"/analytics?timeRange="+timeRange, nil, &analytics)
	return analytics, err
}

// Connect inicia uma nova tentativa de vínculo para a conta nomeada e
// devolve a conta criada ou reaproveitada pelo backend.
func (c *Client) Connect(ctx context.Context, accountName string) (model.Account, error) {
	payload := map[string]string{"accountName": accountName}
	var account model.Account
	if err := c.doJSON(ctx, http.MethodPost, basePath+"/connect", payload, &account); err != nil {
		return model.Account{}, err
	}
	return account, nil
}

func (c *Client) Disconnect(ctx context.Context, accountID string) error {
	return c.doJSON(ctx, http.MethodPost, basePath+"/disconnect/"+accountID, nil, nil)
}

func (c *Client) DeleteAccount(ctx context.Context, accountID string) error {
	return c.doJSON(ctx, http.MethodDelete, basePath+"/accounts/"+accountID, nil, nil)
}

// FetchQR busca um artefato QR fresco via REST, como alternativa ao caminho
// orientado a eventos.
func (c *Client) FetchQR(ctx context.Context, accountID string) (string, error) {
	var data struct {
		QRCode string `json:"qrCode"`
	}
	if err := c.doJSON(ctx, http.MethodGet, basePath+"/qr/"+accountID, nil, &data); err != nil {
		return "", err
	}
	if data.QRCode == "" {
		return "", errors.New("nenhum QR code disponível")
	}
	return data.QRCode, nil
}

// SendInput descreve um disparo de campanha.
type SendInput struct {
	AccountID  string
	Recipients []string
	Type       string // text | image | video
	Text       string
	MediaName  string
	Media      io.Reader
}

// Validate aplica a validação de entrada antes de qualquer requisição.
func (in SendInput) Validate() error {
	if in.AccountID == "" {
		return errors.New("conta não selecionada")
	}
	if len(in.Recipients) == 0 {
		return errors.New("lista de destinatários vazia")
	}
	switch in.Type {
	case "", "text":
		if strings.TrimSpace(in.Text) == "" {
			return errors.New("mensagem de texto vazia")
		}
	case "image", "video":
		if in.Media == nil {
			return errors.New("arquivo de mídia ausente")
		}
	default:
		return fmt.Errorf("tipo de mensagem desconhecido: %s", in.Type)
	}
	return nil
}

// Send dispara uma campanha; mídia vai como multipart.
func (c *Client) Send(ctx context.Context, in SendInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	msgType := in.Type
	if msgType == "" {
		msgType = "text"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("accountId", in.AccountID); err != nil {
		return fmt.Errorf("backend: montar multipart: %w", err)
	}

	recipients, err := json.Marshal(in.Recipients)
	if err != nil {
		return fmt.Errorf("backend: marshal destinatários: %w", err)
	}
	if err := w.WriteField("recipients", string(recipients)); err != nil {
		return fmt.Errorf("backend: montar multipart: %w", err)
	}

	content, err := json.Marshal(map[string]string{
		"type": msgType,
		"text": strings.TrimSpace(in.Text),
	})
	if err != nil {
		return fmt.Errorf("backend: marshal conteúdo: %w", err)
	}
	if err := w.WriteField("content", string(content)); err != nil {
		return fmt.Errorf("backend: montar multipart: %w", err)
	}

	if in.Media != nil {
		part, err := w.CreateFormFile("media", in.MediaName)
		if err != nil {
			return fmt.Errorf("backend: montar multipart: %w", err)
		}
		if _, err := io.Copy(part, in.Media); err != nil {
			return fmt.Errorf("backend: copiar mídia: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("backend: fechar multipart: %w", err)
	}

	return c.do(ctx, http.MethodPost, basePath+"/send", &buf, w.FormDataContentType(), nil)
}
