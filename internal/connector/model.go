package connector

import (
	"strings"
	"time"
)

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderChatGPT   Provider = "chatgpt"
)

var providers = []Provider{ProviderAnthropic, ProviderGemini, ProviderChatGPT}

func ParseProvider(value string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range providers {
		if p == known {
			return p, nil
		}
	}
	return "", ErrUnknownProvider
}

// Connector is a stored credential. EncryptedToken is the vault blob and is
// never serialized.
type Connector struct {
	ID             int64
	UserID         int64
	Provider       Provider
	EncryptedToken string
	IsActive       bool
	LastUsedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Response struct {
	ID         int64      `json:"id"`
	Provider   Provider   `json:"provider"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (c Connector) Response() Response {
	return Response{
		ID:         c.ID,
		Provider:   c.Provider,
		IsActive:   c.IsActive,
		LastUsedAt: c.LastUsedAt,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

type VerifyResponse struct {
	Provider   Provider   `json:"provider"`
	Valid      bool       `json:"valid"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
