package auth_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdesk/backend/internal/auth"
	"github.com/nimbusdesk/backend/internal/models"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := auth.NewJWTService("test-secret", 1)
	d := models.Descriptor{ID: uuid.New(), Kind: models.KindMultiTenant, Role: models.RoleAgent}

	token, err := svc.Generate(d)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, d, claims.Descriptor())
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := auth.NewJWTService("secret-a", 1).Generate(models.Descriptor{ID: uuid.New()})
	require.NoError(t, err)

	_, err = auth.NewJWTService("secret-b", 1).Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTRejectsExpired(t *testing.T) {
	svc := auth.NewJWTService("test-secret", -1)
	token, err := svc.Generate(models.Descriptor{ID: uuid.New()})
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTRejectsGarbage(t *testing.T) {
	_, err := auth.NewJWTService("test-secret", 1).Validate("not-a-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
