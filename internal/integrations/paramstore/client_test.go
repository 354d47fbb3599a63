package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
}

func (f *fakeAPI) GetParameter(_ context.Context, _ *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func paramOut(value string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: strPtr(value)}}
}

func TestGetParameter_HappyPath(t *testing.T) {
	client, err := New(&fakeAPI{getOut: paramOut(`{"k":"v"}`)})
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, `{"k":"v"}`, v)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	client, err := New(&fakeAPI{getErr: errors.New("boom")})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestToken_HappyPath(t *testing.T) {
	client, err := New(&fakeAPI{getOut: paramOut(`{"token":"ya29.secret"}`)})
	require.NoError(t, err)
	token, err := client.Token(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "ya29.secret", token)
}

func TestToken_NotJSON(t *testing.T) {
	client, err := New(&fakeAPI{getOut: paramOut(`not-json`)})
	require.NoError(t, err)
	_, err = client.Token(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unmarshal")
}

func TestToken_Empty(t *testing.T) {
	client, err := New(&fakeAPI{getOut: paramOut(`{"token":""}`)})
	require.NoError(t, err)
	_, err = client.Token(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}
