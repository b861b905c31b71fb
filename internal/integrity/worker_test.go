package integrity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docreview/review-portal/review-portal-backend/internal/documents"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) ListDocumentIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockVerifier) VerifyDocument(ctx context.Context, id string) (*documents.VerifyResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*documents.VerifyResult), args.Error(1)
}

func TestRunOnceReportsInconsistentDocuments(t *testing.T) {
	v := new(mockVerifier)
	v.On("ListDocumentIDs", mock.Anything).Return([]string{"a", "b", "c", "d"}, nil)
	v.On("VerifyDocument", mock.Anything, "a").Return(&documents.VerifyResult{DocumentID: "a", Consistent: true}, nil)
	v.On("VerifyDocument", mock.Anything, "b").Return(&documents.VerifyResult{DocumentID: "b", Error: "span mismatch"}, nil)
	v.On("VerifyDocument", mock.Anything, "c").Return(nil, errors.New("connection reset"))
	v.On("VerifyDocument", mock.Anything, "d").Return(&documents.VerifyResult{DocumentID: "d", Consistent: true}, nil)

	w := NewWorker(v, zap.NewNop(), Config{Schedule: "@hourly", Concurrency: 2})
	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, []string{"b"}, report.Inconsistent)
	assert.Equal(t, []string{"c"}, report.Failed)
	v.AssertExpectations(t)
}

func TestRunOnceListFailure(t *testing.T) {
	v := new(mockVerifier)
	v.On("ListDocumentIDs", mock.Anything).Return(nil, errors.New("db down"))

	_, err := NewWorker(v, zap.NewNop(), DefaultConfig()).RunOnce(context.Background())
	assert.ErrorContains(t, err, "failed to list documents")
}

func TestStartRejectsBadSchedule(t *testing.T) {
	w := NewWorker(new(mockVerifier), zap.NewNop(), Config{Schedule: "every now and then"})
	assert.ErrorContains(t, w.Start(context.Background()), "invalid schedule")
	w.Stop()
}

func TestStartTwice(t *testing.T) {
	w := NewWorker(new(mockVerifier), zap.NewNop(), Config{Schedule: "@daily"})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	assert.Error(t, w.Start(context.Background()))
}
