package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/packflow/internal/runtime/errors"
	"github.com/drblury/packflow/internal/runtime/eventrouter"
	"github.com/drblury/packflow/internal/runtime/logging"
	"github.com/drblury/packflow/internal/runtime/pack"
	"github.com/drblury/packflow/internal/runtime/pack/packtest"
)

func TestDefaultMiddlewaresOrder(t *testing.T) {
	regs := DefaultMiddlewares()
	require.Len(t, regs, 7)

	names := make([]string, 0, len(regs))
	for _, reg := range regs {
		names = append(names, reg.Name)
	}
	assert.Equal(t, []string{
		"correlation_id",
		"log_messages",
		"tracer",
		"metrics",
		"retry",
		"poison_queue",
		"recoverer",
	}, names)
}

func TestRegisterMiddlewareRequiresRouter(t *testing.T) {
	s := &Service{}
	err := s.RegisterMiddleware(CorrelationIDMiddleware())
	assert.Error(t, err)
}

func TestRegisterMiddlewareRequiresMiddlewareOrBuilder(t *testing.T) {
	s := newMiddlewareTestService(t)
	err := s.RegisterMiddleware(MiddlewareRegistration{Name: "empty"})
	assert.Error(t, err)
}

func TestRegisterMiddlewareBuilderErrorPropagates(t *testing.T) {
	s := newMiddlewareTestService(t)
	wantErr := errors.New("builder failed")
	err := s.RegisterMiddleware(MiddlewareRegistration{
		Name: "broken",
		Builder: func(*Service) (message.HandlerMiddleware, error) {
			return nil, wantErr
		},
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestCorrelationIDMiddlewareStampsMissingID(t *testing.T) {
	s := &Service{}
	mw := s.correlationIDMiddleware()

	handler := mw(func(msg *message.Message) ([]*message.Message, error) {
		return nil, nil
	})

	msg := message.NewMessage("uuid-1", nil)
	_, err := handler(msg)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.Metadata.Get(eventrouter.MetaCorrelationID))
}

func TestCorrelationIDMiddlewareKeepsExistingID(t *testing.T) {
	s := &Service{}
	mw := s.correlationIDMiddleware()

	handler := mw(func(msg *message.Message) ([]*message.Message, error) {
		return nil, nil
	})

	msg := message.NewMessage("uuid-1", nil)
	msg.Metadata.Set(eventrouter.MetaCorrelationID, "corr-1")
	_, err := handler(msg)
	require.NoError(t, err)
	assert.Equal(t, "corr-1", msg.Metadata.Get(eventrouter.MetaCorrelationID))
}

func TestPoisonQueueMiddlewareRequiresPublisher(t *testing.T) {
	s := newMiddlewareTestService(t)
	s.publisher = nil

	reg := PoisonQueueMiddleware(nil)
	_, err := reg.Builder(s)
	assert.ErrorIs(t, err, errspkg.ErrPublisherRequired)
}

func TestPoisonQueueMiddlewareRequiresTopic(t *testing.T) {
	s := newMiddlewareTestService(t)
	s.Conf.PoisonTopic = ""

	reg := PoisonQueueMiddleware(nil)
	_, err := reg.Builder(s)
	assert.ErrorIs(t, err, errspkg.ErrTopicRequired)
}

func TestRetryMiddlewareConfigDefaults(t *testing.T) {
	cfg := RetryMiddlewareConfig{}.withDefaults()
	assert.Greater(t, cfg.MaxRetries, 0)
	assert.Greater(t, cfg.InitialInterval.Nanoseconds(), int64(0))
	assert.Greater(t, cfg.MaxInterval.Nanoseconds(), int64(0))
}

func TestRetryShouldRetryFollowsOpError(t *testing.T) {
	s := newMiddlewareTestService(t)
	mw := s.retryMiddlewareWithConfig(RetryMiddlewareConfig{MaxRetries: 1})

	attempts := 0
	handler := mw(func(msg *message.Message) ([]*message.Message, error) {
		attempts++
		return nil, &pack.OpError{Code: "terminal", Message: "no", Retryable: false}
	})

	msg := message.NewMessage("uuid-1", nil)
	msg.SetContext(context.Background())
	_, err := handler(msg)
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func newMiddlewareTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(testConfig(t), logging.Nop(), context.Background(), ServiceDependencies{
		Runtime:                   packtest.NewFakeRuntime(),
		Discovery:                 testDiscovery(),
		DisableDefaultMiddlewares: true,
	})
}
