package handler_test

import (
	"context"

	"shop/internal/domain/model"
	"shop/internal/gateway"
	repo "shop/internal/repository"

	"github.com/stretchr/testify/mock"
)

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) CreateIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.Intent), args.Error(1)
}

func (m *GatewayMock) VerifyAndParseEvent(payload []byte, sig string, secret string) (gateway.Event, error) {
	args := m.Called(payload, sig, secret)
	return args.Get(0).(gateway.Event), args.Error(1)
}

func (m *GatewayMock) CreateRefund(ctx context.Context, req gateway.RefundRequest) (gateway.Refund, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.Refund), args.Error(1)
}

func (m *GatewayMock) ListRefunds(ctx context.Context, req gateway.RefundListRequest) (gateway.RefundPage, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gateway.RefundPage), args.Error(1)
}

// 使うrepoだけ差し替える（残りは呼ばれたらpanic）
type TxReposStub struct {
	repo.TxRepos
	events repo.ProcessedEventRepository
}

func (s *TxReposStub) ProcessedEvents() repo.ProcessedEventRepository { return s.events }

type TxManagerMock struct {
	repos repo.TxRepos
	err   error
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if m.err != nil {
		return m.err
	}
	return fn(m.repos)
}

type ProcessedEventRepoMock struct{ mock.Mock }

func (m *ProcessedEventRepoMock) Exists(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *ProcessedEventRepoMock) Create(ctx context.Context, e model.ProcessedEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}
