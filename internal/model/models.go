package model

import "time"

// AccountStatus é a projeção, do lado do console, do estado da sessão que o
// backend mantém para uma conta vinculável. Não é o estado completo do
// backend, apenas o rótulo exibível.
type AccountStatus string

const (
	AccountStatusDisconnected  AccountStatus = "disconnected"
	AccountStatusConnecting    AccountStatus = "connecting"
	AccountStatusAuthenticated AccountStatus = "authenticated"
	AccountStatusReady         AccountStatus = "ready"
	AccountStatusError         AccountStatus = "error"
)

// Terminal informa se o status encerra o fluxo de vínculo. Um QR exibido só
// faz sentido em connecting/authenticated; qualquer status terminal o descarta.
func (s AccountStatus) Terminal() bool {
	switch s {
	case AccountStatusReady, AccountStatusDisconnected, AccountStatusError:
		return true
	}
	return false
}

// CanStartLinking informa se uma nova tentativa de vínculo é permitida.
func (s AccountStatus) CanStartLinking() bool {
	return s == AccountStatusReady || s == AccountStatusDisconnected || s == ""
}

type Account struct {
	ID          string        `json:"id"`
	AccountName string        `json:"accountName"`
	PhoneNumber string        `json:"phoneNumber,omitempty"`
	ProfileName string        `json:"profileName,omitempty"`
	Status      AccountStatus `json:"status"`
	ConnectedAt *time.Time    `json:"connectedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

type MessageContent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type CampaignProgress struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

type Campaign struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	AccountID      string           `json:"accountId"`
	MessageContent MessageContent   `json:"messageContent"`
	Progress       CampaignProgress `json:"progress"`
	Status         string           `json:"status"`
	CreatedAt      time.Time        `json:"createdAt"`
}

type AnalyticsOverview struct {
	TotalMessages int     `json:"totalMessages"`
	DeliveryRate  float64 `json:"deliveryRate"`
	ReadRate      float64 `json:"readRate"`
}

type DailyStat struct {
	Date      string `json:"date" csv:"date"`
	Sent      int    `json:"sent" csv:"sent"`
	Delivered int    `json:"delivered" csv:"delivered"`
	Read      int    `json:"read" csv:"read"`
}

type MessageTypeStat struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type Analytics struct {
	Overview     AnalyticsOverview `json:"overview"`
	DailyStats   []DailyStat       `json:"dailyStats"`
	MessageTypes []MessageTypeStat `json:"messageTypes"`
}

// QRArtifact é o payload visual transitório de troca de credenciais,
// associado a exatamente uma conta durante o vínculo.
type QRArtifact struct {
	AccountID  string    `json:"accountId"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type EventLog struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Type      string    `json:"type"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}
