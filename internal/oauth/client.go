package oauth

import "crypto/subtle"

type Client struct {
	ID     string
	Secret string
}

// ClientRegistry resolves registered OAuth clients. The service ships with
// a single static client; a table-backed registry can satisfy the same
// interface.
type ClientRegistry interface {
	Lookup(clientID string) (Client, bool)
}

type StaticClient Client

func (c StaticClient) Lookup(clientID string) (Client, bool) {
	if c.ID == "" || !constantTimeEqual(c.ID, clientID) {
		return Client{}, false
	}
	return Client(c), true
}

func authenticateClient(registry ClientRegistry, clientID, clientSecret string) (Client, error) {
	client, ok := registry.Lookup(clientID)
	if !ok {
		return Client{}, ErrInvalidClient
	}
	if client.Secret == "" || !constantTimeEqual(client.Secret, clientSecret) {
		return Client{}, ErrInvalidClient
	}
	return client, nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
