package transaction

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapCreateErrorUniqueViolation(t *testing.T) {
	raced := fmt.Errorf("transaction: insert header: %w",
		&pgconn.PgError{Code: "23505", ConstraintName: "transactions_doc_number_key"})

	err := mapCreateError(raced)
	domainErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindConcurrentModification, domainErr.Kind)
	require.Equal(t, http.StatusConflict, domainErr.HTTPStatus())
}

func TestMapCreateErrorPassesOthersThrough(t *testing.T) {
	plain := errors.New("connection reset")
	require.Same(t, plain, mapCreateError(plain))

	notNull := fmt.Errorf("transaction: insert header: %w", &pgconn.PgError{Code: "23502"})
	require.Same(t, notNull, mapCreateError(notNull))
}

func TestIsSerializationFailure(t *testing.T) {
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsSerializationFailure(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"})))
	require.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsSerializationFailure(errors.New("timeout")))
}
