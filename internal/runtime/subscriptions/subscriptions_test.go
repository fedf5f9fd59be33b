package subscriptions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/drblury/packflow/internal/runtime/dlq"
	errspkg "github.com/drblury/packflow/internal/runtime/errors"
	"github.com/drblury/packflow/internal/runtime/jsoncodec"
	"github.com/drblury/packflow/internal/runtime/logging"
	"github.com/drblury/packflow/internal/runtime/pack"
	"github.com/drblury/packflow/internal/runtime/pack/packtest"
	"github.com/drblury/packflow/internal/runtime/retry"
)

func ensureOK(expirationMS int64) packtest.OpFunc {
	return func(_ context.Context, call pack.Call) ([]byte, error) {
		var input EnsureInV1
		if err := jsoncodec.Unmarshal(call.Input, &input); err != nil {
			return nil, err
		}
		out := map[string]any{
			"subscription": map[string]any{
				"subscription_id":    "sub-" + input.BindingID,
				"expiration_unix_ms": expirationMS,
			},
		}
		return jsoncodec.Marshal(out)
	}
}

func testService(t *testing.T) (*Service, *packtest.FakeRuntime) {
	t.Helper()
	rt := packtest.NewFakeRuntime()
	store := NewStore(filepath.Join(t.TempDir(), "subscriptions"))
	return NewService(rt, store, logging.Nop()), rt
}

func testEnsureRequest() EnsureRequest {
	return EnsureRequest{
		Provider:        "graph",
		Tenant:          "acme",
		Team:            "core",
		Resource:        "/me/messages",
		ChangeTypes:     []string{"created", "updated"},
		NotificationURL: "https://example.test/v1/messaging/ingress/graph/acme/core",
		User:            &AuthUserRef{UserID: "user-1", TokenKey: "token-key-1"},
	}
}

func TestEnsureCreatesBinding(t *testing.T) {
	svc, rt := testService(t)
	expiration := time.Now().Add(time.Hour).UnixMilli()
	rt.Handle("graph", pack.OpSubscriptionEnsure, ensureOK(expiration))

	state, err := svc.Ensure(context.Background(), testEnsureRequest())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if state.BindingID == "" {
		t.Fatal("BindingID is empty")
	}
	if state.SubscriptionID != "sub-"+state.BindingID {
		t.Errorf("SubscriptionID = %q", state.SubscriptionID)
	}
	if state.ExpirationUnixMS != expiration {
		t.Errorf("ExpirationUnixMS = %d, want %d", state.ExpirationUnixMS, expiration)
	}

	stored, err := svc.Get("graph", "acme", "core", state.BindingID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored == nil || stored.BindingID != state.BindingID {
		t.Errorf("stored state = %+v", stored)
	}
	if stored.User == nil || stored.User.TokenKey != "token-key-1" {
		t.Errorf("delegated reference not stored verbatim: %+v", stored.User)
	}

	calls := rt.CallsTo("graph", pack.OpSubscriptionEnsure)
	if len(calls) != 1 {
		t.Fatalf("ensure calls = %d, want 1", len(calls))
	}
	var input EnsureInV1
	if err := jsoncodec.Unmarshal(calls[0].Input, &input); err != nil {
		t.Fatalf("decode ensure input: %v", err)
	}
	if input.BindingID != state.BindingID {
		t.Errorf("wire binding id = %q, want %q", input.BindingID, state.BindingID)
	}
	if input.User.TokenKey != "token-key-1" {
		t.Errorf("wire user = %+v, want passthrough reference", input.User)
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	svc, rt := testService(t)
	rt.Handle("graph", pack.OpSubscriptionEnsure, ensureOK(time.Now().Add(time.Hour).UnixMilli()))

	first, err := svc.Ensure(context.Background(), testEnsureRequest())
	if err != nil {
		t.Fatalf("first Ensure() error = %v", err)
	}
	second, err := svc.Ensure(context.Background(), testEnsureRequest())
	if err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}

	if first.BindingID != second.BindingID {
		t.Errorf("binding ids differ: %q vs %q", first.BindingID, second.BindingID)
	}
	states, err := svc.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(states) != 1 {
		t.Errorf("persisted records = %d, want 1", len(states))
	}
}

func TestEnsureDefaultsChangeTypes(t *testing.T) {
	svc, rt := testService(t)
	rt.Handle("graph", pack.OpSubscriptionEnsure, ensureOK(time.Now().Add(time.Hour).UnixMilli()))

	req := testEnsureRequest()
	req.ChangeTypes = nil
	state, err := svc.Ensure(context.Background(), req)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if len(state.ChangeTypes) != 1 || state.ChangeTypes[0] != "created" {
		t.Errorf("ChangeTypes = %v, want [created]", state.ChangeTypes)
	}
}

func TestEnsureValidation(t *testing.T) {
	svc, _ := testService(t)

	req := testEnsureRequest()
	req.Provider = ""
	if _, err := svc.Ensure(context.Background(), req); !errors.Is(err, errspkg.ErrProviderRequired) {
		t.Errorf("Ensure() without provider = %v, want ErrProviderRequired", err)
	}

	req = testEnsureRequest()
	req.Resource = ""
	if _, err := svc.Ensure(context.Background(), req); !errors.Is(err, errspkg.ErrResourceRequired) {
		t.Errorf("Ensure() without resource = %v, want ErrResourceRequired", err)
	}

	req = testEnsureRequest()
	req.NotificationURL = ""
	if _, err := svc.Ensure(context.Background(), req); err == nil {
		t.Error("Ensure() without notification_url = nil error")
	}
}

func TestRenewRefusesFailedBinding(t *testing.T) {
	svc, _ := testService(t)

	state := &State{BindingID: "b-1", Provider: "graph", SubscriptionID: "sub-1", Failed: true}
	if _, err := svc.Renew(context.Background(), state); !errors.Is(err, errspkg.ErrSubscriptionFailed) {
		t.Errorf("Renew() on failed binding = %v, want ErrSubscriptionFailed", err)
	}
}

func TestGetAndDeleteRequireBindingID(t *testing.T) {
	svc, _ := testService(t)

	if _, err := svc.Get("graph", "acme", "core", ""); !errors.Is(err, errspkg.ErrBindingIDRequired) {
		t.Errorf("Get() without binding id = %v, want ErrBindingIDRequired", err)
	}
	if err := svc.Delete(context.Background(), &State{Provider: "graph"}); !errors.Is(err, errspkg.ErrBindingIDRequired) {
		t.Errorf("Delete() without binding id = %v, want ErrBindingIDRequired", err)
	}
}

func TestNewStoreRequiresBase(t *testing.T) {
	defer func() {
		if got := recover(); got != errspkg.ErrStoreDirRequired {
			t.Errorf("NewStore(\"\") panic = %v, want ErrStoreDirRequired", got)
		}
	}()
	NewStore("")
}

func TestNewRenewerRequiresService(t *testing.T) {
	defer func() {
		if got := recover(); got != errspkg.ErrServiceRequired {
			t.Errorf("NewRenewer without service panic = %v, want ErrServiceRequired", got)
		}
	}()
	NewRenewer(RenewerOptions{})
}

func TestRenewExtendsExpiration(t *testing.T) {
	svc, rt := testService(t)
	oldExpiration := time.Now().Add(5 * time.Minute).UnixMilli()
	rt.Handle("graph", pack.OpSubscriptionEnsure, ensureOK(oldExpiration))

	var renewInput RenewInV1
	rt.Handle("graph", pack.OpSubscriptionRenew, func(_ context.Context, call pack.Call) ([]byte, error) {
		if err := jsoncodec.Unmarshal(call.Input, &renewInput); err != nil {
			return nil, err
		}
		return jsoncodec.Marshal(map[string]any{
			"subscription_id":    renewInput.SubscriptionID,
			"expiration_unix_ms": renewInput.ExpirationTargetUnixMS,
		})
	})

	state, err := svc.Ensure(context.Background(), testEnsureRequest())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	renewed, err := svc.Renew(context.Background(), state)
	if err != nil {
		t.Fatalf("Renew() error = %v", err)
	}

	wantTarget := oldExpiration + DefaultRenewExtension.Milliseconds()
	if renewInput.ExpirationTargetUnixMS != wantTarget {
		t.Errorf("renewal target = %d, want %d", renewInput.ExpirationTargetUnixMS, wantTarget)
	}
	if renewed.ExpirationUnixMS != wantTarget {
		t.Errorf("renewed expiration = %d, want %d", renewed.ExpirationUnixMS, wantTarget)
	}
	if renewed.BindingID != state.BindingID {
		t.Errorf("binding id changed on renew: %q -> %q", state.BindingID, renewed.BindingID)
	}
}

func TestDeleteRemovesState(t *testing.T) {
	svc, rt := testService(t)
	rt.Handle("graph", pack.OpSubscriptionEnsure, ensureOK(time.Now().Add(time.Hour).UnixMilli()))
	rt.Handle("graph", pack.OpSubscriptionDelete, func(_ context.Context, _ pack.Call) ([]byte, error) {
		return []byte(`{}`), nil
	})

	state, err := svc.Ensure(context.Background(), testEnsureRequest())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if err := svc.Delete(context.Background(), state); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	stored, err := svc.Get("graph", "acme", "core", state.BindingID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored != nil {
		t.Errorf("state still present after delete: %+v", stored)
	}
	if calls := rt.CallsTo("graph", pack.OpSubscriptionDelete); len(calls) != 1 {
		t.Errorf("delete calls = %d, want 1", len(calls))
	}
}

func newTestRenewer(t *testing.T, svc *Service, policy retry.Policy) (*Renewer, string) {
	t.Helper()
	dlqPath := filepath.Join(t.TempDir(), "subscriptions.jsonl")
	writer, err := dlq.NewWriter(dlqPath)
	if err != nil {
		t.Fatalf("dlq.NewWriter() error = %v", err)
	}
	t.Cleanup(func() { writer.Close() })
	return NewRenewer(RenewerOptions{
		Service:     svc,
		Policy:      policy,
		Skew:        10 * time.Minute,
		Interval:    time.Minute,
		DeadLetters: writer,
		Logger:      logging.Nop(),
	}), dlqPath
}

func TestRenewerDueThreshold(t *testing.T) {
	svc, rt := testService(t)
	renewer, _ := newTestRenewer(t, svc, retry.DefaultPolicy())

	renewed := map[string]bool{}
	rt.Handle("graph", pack.OpSubscriptionRenew, func(_ context.Context, call pack.Call) ([]byte, error) {
		var input RenewInV1
		if err := jsoncodec.Unmarshal(call.Input, &input); err != nil {
			return nil, err
		}
		renewed[input.SubscriptionID] = true
		return jsoncodec.Marshal(map[string]any{
			"subscription_id":    input.SubscriptionID,
			"expiration_unix_ms": input.ExpirationTargetUnixMS,
		})
	})

	now := time.Now()
	// 9 minutes out with a 10 minute skew: due
	dueState := &State{
		BindingID: "bind-due", Provider: "graph", Tenant: "acme",
		SubscriptionID: "sub-due", ExpirationUnixMS: now.Add(9 * time.Minute).UnixMilli(),
	}
	// 11 minutes out: not due
	notDueState := &State{
		BindingID: "bind-later", Provider: "graph", Tenant: "acme",
		SubscriptionID: "sub-later", ExpirationUnixMS: now.Add(11 * time.Minute).UnixMilli(),
	}
	for _, state := range []*State{dueState, notDueState} {
		if err := svc.store.Write(state); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	renewer.RenewDue(context.Background())

	if !renewed["sub-due"] {
		t.Error("binding expiring in 9m was not renewed")
	}
	if renewed["sub-later"] {
		t.Error("binding expiring in 11m was renewed early")
	}
}

func TestRenewerBacksOffOnRetryableFailure(t *testing.T) {
	svc, rt := testService(t)
	renewer, _ := newTestRenewer(t, svc, retry.DefaultPolicy())
	rt.Handle("graph", pack.OpSubscriptionRenew, func(_ context.Context, _ pack.Call) ([]byte, error) {
		return nil, &pack.OpError{Code: "throttled", Message: "slow down", Retryable: true}
	})

	state := &State{
		BindingID: "bind-1", Provider: "graph", Tenant: "acme",
		SubscriptionID: "sub-1", ExpirationUnixMS: time.Now().Add(time.Minute).UnixMilli(),
	}
	if err := svc.store.Write(state); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	renewer.RenewDue(context.Background())

	stored, err := svc.Get("graph", "acme", "", "bind-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", stored.Attempt)
	}
	if stored.NextRunAtUnixMS <= time.Now().UnixMilli() {
		t.Errorf("NextRunAtUnixMS = %d, want future backoff", stored.NextRunAtUnixMS)
	}
	if stored.Failed {
		t.Error("binding marked failed after first retryable failure")
	}

	// still backing off: the next tick must not renew again
	rt.Reset()
	renewer.RenewDue(context.Background())
	if calls := rt.CallsTo("graph", pack.OpSubscriptionRenew); len(calls) != 0 {
		t.Errorf("renew calls during backoff = %d, want 0", len(calls))
	}
}

func TestRenewerMarksFailedAndDeadLetters(t *testing.T) {
	svc, rt := testService(t)
	policy := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	renewer, dlqPath := newTestRenewer(t, svc, policy)
	rt.Handle("graph", pack.OpSubscriptionRenew, func(_ context.Context, _ pack.Call) ([]byte, error) {
		return nil, &pack.OpError{Code: "denied", Message: "credential revoked", Retryable: false}
	})

	state := &State{
		BindingID: "bind-1", Provider: "graph", Tenant: "acme", Team: "core",
		SubscriptionID: "sub-1", ExpirationUnixMS: time.Now().Add(time.Minute).UnixMilli(),
	}
	if err := svc.store.Write(state); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	renewer.RenewDue(context.Background())

	stored, err := svc.Get("graph", "acme", "core", "bind-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !stored.Failed {
		t.Error("binding not marked failed on non-retryable failure")
	}

	records, err := dlq.ReadAll(dlqPath)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("dlq records = %d, want 1", len(records))
	}
	if records[0].JobID != "bind-1" || records[0].Error.Code != "denied" {
		t.Errorf("dlq record = %+v", records[0])
	}

	// failed bindings are skipped until a fresh ensure
	rt.Reset()
	renewer.RenewDue(context.Background())
	if calls := rt.CallsTo("graph", pack.OpSubscriptionRenew); len(calls) != 0 {
		t.Errorf("renew calls for failed binding = %d, want 0", len(calls))
	}
}

func TestStoreLayout(t *testing.T) {
	base := filepath.Join(t.TempDir(), "subs")
	store := NewStore(base)
	state := &State{BindingID: "bind-1", Provider: "graph", Tenant: "acme"}
	if err := store.Write(state); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := filepath.Join(base, "graph", "acme", "default", "bind-1.json")
	if got := store.statePath("graph", "acme", "", "bind-1"); got != want {
		t.Errorf("statePath = %q, want %q", got, want)
	}
	stored, err := store.Read("graph", "acme", "", "bind-1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if stored == nil {
		t.Fatal("Read() = nil for written state")
	}
}
