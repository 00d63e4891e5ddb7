package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/elasticity-cli/internal/elasticity"
	"github.com/sells-group/elasticity-cli/internal/posterior"
)

type mockSampler struct {
	mock.Mock
}

func (m *mockSampler) Sample(ctx context.Context, spec *elasticity.Spec, opts elasticity.SampleOptions) (*posterior.Archive, error) {
	args := m.Called(ctx, spec, opts)
	a, _ := args.Get(0).(*posterior.Archive)
	return a, args.Error(1)
}

type mockStager struct {
	mock.Mock
}

func (m *mockStager) Stage(ctx context.Context, key, location string) (string, error) {
	args := m.Called(ctx, key, location)
	return args.String(0), args.Error(1)
}
