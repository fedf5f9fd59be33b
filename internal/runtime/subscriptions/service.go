package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/drblury/packflow/internal/runtime/envelope"
	errspkg "github.com/drblury/packflow/internal/runtime/errors"
	"github.com/drblury/packflow/internal/runtime/ids"
	"github.com/drblury/packflow/internal/runtime/jsoncodec"
	"github.com/drblury/packflow/internal/runtime/logging"
	"github.com/drblury/packflow/internal/runtime/pack"
)

// DefaultRenewExtension is added to the current expiration when a renewal
// does not request an explicit target.
const DefaultRenewExtension = 24 * time.Hour

// EnsureRequest is the desired state handed to Ensure.
type EnsureRequest struct {
	Provider               string
	Tenant                 string
	Team                   string
	Resource               string
	ChangeTypes            []string
	NotificationURL        string
	ClientState            string
	User                   *AuthUserRef
	ExpirationTargetUnixMS int64
	// BindingID pins an existing binding; leave empty to let Ensure find or
	// issue one.
	BindingID string
}

// Service drives the subscription lifecycle operations against provider
// packs and keeps the store in sync.
type Service struct {
	runtime pack.Runtime
	store   *Store
	log     logging.ServiceLogger
	now     func() time.Time
}

// NewService builds a subscription service.
func NewService(runtime pack.Runtime, store *Store, log logging.ServiceLogger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{runtime: runtime, store: store, log: log, now: time.Now}
}

// Ensure creates or confirms a subscription binding. It is idempotent: an
// identical desired subscription reuses the existing binding id and record
// instead of creating a second one.
func (s *Service) Ensure(ctx context.Context, req EnsureRequest) (*State, error) {
	if req.Provider == "" {
		return nil, fmt.Errorf("subscription ensure: %w", errspkg.ErrProviderRequired)
	}
	if req.Resource == "" {
		return nil, fmt.Errorf("subscription ensure: %w", errspkg.ErrResourceRequired)
	}
	if req.NotificationURL == "" {
		return nil, fmt.Errorf("subscription ensure: notification_url is required")
	}

	bindingID := req.BindingID
	if bindingID == "" {
		if existing, err := s.findExisting(req); err != nil {
			return nil, err
		} else if existing != nil {
			bindingID = existing.BindingID
		} else {
			bindingID = ids.NewBindingID()
		}
	}

	changeTypes := req.ChangeTypes
	if len(changeTypes) == 0 {
		changeTypes = []string{"created"}
	}

	input := EnsureInV1{
		V:                      1,
		Provider:               req.Provider,
		TenantHint:             req.Tenant,
		TeamHint:               req.Team,
		BindingID:              bindingID,
		Resource:               req.Resource,
		ChangeTypes:            changeTypes,
		NotificationURL:        req.NotificationURL,
		ExpirationTargetUnixMS: req.ExpirationTargetUnixMS,
		ClientState:            req.ClientState,
		User:                   s.userOrDefault(req.User, req.Tenant, req.Team),
	}
	output, err := s.invoke(ctx, req.Provider, pack.OpSubscriptionEnsure, req.Tenant, req.Team, input)
	if err != nil {
		return nil, err
	}

	result := decodeProviderResult(output)
	state := &State{
		BindingID:        bindingID,
		Provider:         req.Provider,
		Tenant:           req.Tenant,
		Team:             req.Team,
		Resource:         req.Resource,
		ChangeTypes:      changeTypes,
		NotificationURL:  req.NotificationURL,
		ClientState:      req.ClientState,
		User:             req.User,
		SubscriptionID:   result.SubscriptionID,
		ExpirationUnixMS: result.ExpirationUnixMS,
		LastError:        result.LastError,
	}
	if err := s.store.Write(state); err != nil {
		return nil, err
	}

	s.log.Info("subscription ensured", logging.LogFields{
		"binding_id": state.BindingID,
		"provider":   state.Provider,
		"tenant":     state.Tenant,
		"resource":   state.Resource,
	})
	return state, nil
}

// Renew extends the binding's expiration via the stored delegated reference
// and persists the refreshed state. A binding that already exhausted its
// renewal attempts is refused; only a fresh Ensure recovers it.
func (s *Service) Renew(ctx context.Context, state *State) (*State, error) {
	if state.Failed {
		return nil, fmt.Errorf("subscription renew: binding %s: %w", state.BindingID, errspkg.ErrSubscriptionFailed)
	}
	if state.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription renew: binding %s has no subscription_id", state.BindingID)
	}

	input := RenewInV1{
		V:                      1,
		Provider:               state.Provider,
		SubscriptionID:         state.SubscriptionID,
		ExpirationTargetUnixMS: s.nextExpirationTarget(state),
		User:                   s.userOrDefault(state.User, state.Tenant, state.Team),
	}
	output, err := s.invoke(ctx, state.Provider, pack.OpSubscriptionRenew, state.Tenant, state.Team, input)
	if err != nil {
		return nil, err
	}

	result := decodeProviderResult(output)
	renewed := *state
	if result.SubscriptionID != "" {
		renewed.SubscriptionID = result.SubscriptionID
	}
	if result.ExpirationUnixMS > 0 {
		renewed.ExpirationUnixMS = result.ExpirationUnixMS
	}
	renewed.LastError = ""
	renewed.Attempt = 0
	renewed.NextRunAtUnixMS = 0
	renewed.Failed = false

	if err := s.store.Write(&renewed); err != nil {
		return nil, err
	}
	s.log.Info("subscription renewed", logging.LogFields{
		"binding_id": renewed.BindingID,
		"provider":   renewed.Provider,
		"expires_at": renewed.Expiration().Format(time.RFC3339),
	})
	return &renewed, nil
}

// Delete tears the subscription down at the provider and removes the
// persisted record.
func (s *Service) Delete(ctx context.Context, state *State) error {
	if state.BindingID == "" {
		return fmt.Errorf("subscription delete: %w", errspkg.ErrBindingIDRequired)
	}
	if state.SubscriptionID != "" {
		input := DeleteInV1{
			V:              1,
			Provider:       state.Provider,
			SubscriptionID: state.SubscriptionID,
			User:           s.userOrDefault(state.User, state.Tenant, state.Team),
		}
		if _, err := s.invoke(ctx, state.Provider, pack.OpSubscriptionDelete, state.Tenant, state.Team, input); err != nil {
			return err
		}
	}
	if err := s.store.Delete(state); err != nil {
		return err
	}
	s.log.Info("subscription deleted", logging.LogFields{
		"binding_id": state.BindingID,
		"provider":   state.Provider,
	})
	return nil
}

// Get returns one binding's persisted state, nil when absent.
func (s *Service) Get(provider, tenant, team, bindingID string) (*State, error) {
	if bindingID == "" {
		return nil, fmt.Errorf("subscription get: %w", errspkg.ErrBindingIDRequired)
	}
	return s.store.Read(provider, tenant, team, bindingID)
}

// List returns all persisted bindings.
func (s *Service) List() ([]*State, error) {
	return s.store.List()
}

func (s *Service) invoke(ctx context.Context, provider, op, tenant, team string, input any) ([]byte, error) {
	payload, err := jsoncodec.Marshal(input)
	if err != nil {
		return nil, err
	}
	return s.runtime.Invoke(ctx, pack.Call{
		Domain:   "messaging",
		Provider: provider,
		Op:       op,
		Tenant:   tenant,
		Team:     team,
		Input:    payload,
	})
}

// findExisting locates a persisted binding matching the desired subscription
// identity (provider, scope, resource, notification URL).
func (s *Service) findExisting(req EnsureRequest) (*State, error) {
	states, err := s.store.List()
	if err != nil {
		return nil, err
	}
	for _, state := range states {
		if state.Provider == req.Provider &&
			state.Tenant == req.Tenant &&
			state.Team == req.Team &&
			state.Resource == req.Resource &&
			state.NotificationURL == req.NotificationURL {
			return state, nil
		}
	}
	return nil, nil
}

func (s *Service) nextExpirationTarget(state *State) int64 {
	base := state.ExpirationUnixMS
	if base <= 0 {
		base = s.now().UnixMilli()
	}
	return base + DefaultRenewExtension.Milliseconds()
}

func (s *Service) userOrDefault(user *AuthUserRef, tenant, team string) AuthUserRef {
	if user != nil {
		return *user
	}
	if team == "" {
		team = envelope.DefaultTeam
	}
	return AuthUserRef{
		UserID:   tenant + "-" + team,
		TokenKey: "operator-" + team,
		TenantID: tenant,
	}
}
