// Package subscriptions manages webhook-style subscription bindings: ensure,
// renew, and delete against provider packs, with durable per-binding state
// and a renewal scheduler. The delegated user reference is stored and passed
// through verbatim; this service never resolves or inspects credentials.
package subscriptions

import (
	"time"

	"github.com/drblury/packflow/internal/runtime/jsoncodec"
)

// AuthUserRef is the opaque delegated-credential reference a subscription
// acts under. TokenKey is a lookup key for the secrets collaborator, never a
// secret itself.
type AuthUserRef struct {
	UserID      string `json:"user_id"`
	TokenKey    string `json:"token_key"`
	TenantID    string `json:"tenant_id,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// State is the persisted record of one subscription binding. BindingID is
// issued once and never changes for the binding's lifetime.
type State struct {
	BindingID        string       `json:"binding_id"`
	Provider         string       `json:"provider"`
	Tenant           string       `json:"tenant"`
	Team             string       `json:"team,omitempty"`
	Resource         string       `json:"resource,omitempty"`
	ChangeTypes      []string     `json:"change_types,omitempty"`
	NotificationURL  string       `json:"notification_url,omitempty"`
	ClientState      string       `json:"client_state,omitempty"`
	User             *AuthUserRef `json:"user,omitempty"`
	SubscriptionID   string       `json:"subscription_id,omitempty"`
	ExpirationUnixMS int64        `json:"expiration_unix_ms,omitempty"`
	LastError        string       `json:"last_error,omitempty"`
	Attempt          int          `json:"attempt,omitempty"`
	NextRunAtUnixMS  int64        `json:"next_run_at_unix_ms,omitempty"`
	Failed           bool         `json:"failed,omitempty"`
}

// Expiration returns the expiration as a time, zero when unset.
func (s *State) Expiration() time.Time {
	if s.ExpirationUnixMS <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.ExpirationUnixMS)
}

// RenewDueAt returns the instant this binding becomes due for renewal.
func (s *State) RenewDueAt(skew time.Duration) time.Time {
	return s.Expiration().Add(-skew)
}

// EnsureInV1 is the wire input of subscription_ensure.
type EnsureInV1 struct {
	V                      int         `json:"v"`
	Provider               string      `json:"provider"`
	TenantHint             string      `json:"tenant_hint,omitempty"`
	TeamHint               string      `json:"team_hint,omitempty"`
	BindingID              string      `json:"binding_id,omitempty"`
	Resource               string      `json:"resource"`
	ChangeTypes            []string    `json:"change_types"`
	NotificationURL        string      `json:"notification_url"`
	ExpirationTargetUnixMS int64       `json:"expiration_target_unix_ms,omitempty"`
	ClientState            string      `json:"client_state,omitempty"`
	User                   AuthUserRef `json:"user"`
}

// RenewInV1 is the wire input of subscription_renew.
type RenewInV1 struct {
	V                      int         `json:"v"`
	Provider               string      `json:"provider"`
	SubscriptionID         string      `json:"subscription_id"`
	ExpirationTargetUnixMS int64       `json:"expiration_target_unix_ms,omitempty"`
	User                   AuthUserRef `json:"user"`
}

// DeleteInV1 is the wire input of subscription_delete.
type DeleteInV1 struct {
	V              int         `json:"v"`
	Provider       string      `json:"provider"`
	SubscriptionID string      `json:"subscription_id"`
	User           AuthUserRef `json:"user"`
}

// providerResult is the part of an ensure/renew output this service reads.
// Providers may nest it under a "subscription" key or return it flat.
type providerResult struct {
	SubscriptionID   string `json:"subscription_id"`
	ExpirationUnixMS int64  `json:"expiration_unix_ms"`
	LastError        string `json:"last_error"`
}

func decodeProviderResult(raw []byte) providerResult {
	if len(raw) == 0 {
		return providerResult{}
	}
	var nested struct {
		Subscription *providerResult `json:"subscription"`
	}
	if err := jsoncodec.Unmarshal(raw, &nested); err == nil && nested.Subscription != nil {
		return *nested.Subscription
	}
	var flat providerResult
	if err := jsoncodec.Unmarshal(raw, &flat); err != nil {
		return providerResult{}
	}
	return flat
}
