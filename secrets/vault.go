package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

var _ Store = (*Vault)(nil)

// Vault stores secrets in a KV version 2 engine.
type Vault struct {
	client *api.Client
	mount  string
}

// VaultConfig describes how to reach Vault.
type VaultConfig struct {
	Address string
	Token   string
	Mount   string
	Timeout time.Duration

	// MaxRetries is passed to the client. Zero disables retries so failures
	// reach the caller within Timeout.
	MaxRetries int
}

// NewVault wraps an existing client. mount is the KV v2 mount, "secret" when
// empty.
func NewVault(client *api.Client, mount string) *Vault {
	mount = strings.Trim(mount, "/")
	if mount == "" {
		mount = "secret"
	}
	return &Vault{client: client, mount: mount}
}

// DialVault builds a client from cfg.
func DialVault(cfg VaultConfig) (*Vault, error) {
	vc := api.DefaultConfig()
	if cfg.Address != "" {
		vc.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		vc.Timeout = cfg.Timeout
	}
	vc.MaxRetries = cfg.MaxRetries
	client, err := api.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return NewVault(client, cfg.Mount), nil
}

func (v *Vault) dataPath(path string) string {
	return v.mount + "/data/" + strings.TrimLeft(path, "/")
}

// Get reads the latest KV v2 version at path.
func (v *Vault) Get(ctx context.Context, path string) (map[string]any, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.dataPath(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrNotFound
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || len(data) == 0 {
		// KV v2 returns data=null for soft-deleted versions.
		return nil, ErrNotFound
	}
	return data, nil
}

// Put writes value as a new KV v2 version at path.
func (v *Vault) Put(ctx context.Context, path string, value map[string]any) error {
	_, err := v.client.Logical().WriteWithContext(ctx, v.dataPath(path), map[string]interface{}{
		"data": value,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
