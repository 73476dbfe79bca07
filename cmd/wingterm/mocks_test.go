package main

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ehrlich-b/wingterm/internal/auth"
	"github.com/ehrlich-b/wingterm/internal/transport"
)

type mockCredentialCache struct {
	mock.Mock
}

func (m *mockCredentialCache) Load() (*auth.Credentials, error) {
	args := m.Called()
	c, _ := args.Get(0).(*auth.Credentials)
	return c, args.Error(1)
}

func (m *mockCredentialCache) Save(c *auth.Credentials) error {
	return m.Called(c).Error(0)
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, up transport.UploadRequest) (*transport.UploadResult, error) {
	args := m.Called(ctx, up)
	r, _ := args.Get(0).(*transport.UploadResult)
	return r, args.Error(1)
}
