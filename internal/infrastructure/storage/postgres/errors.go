package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"fleetledger/internal/core/apperror"
)

// SQLSTATE codes the repositories translate.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// MapError converts constraint violations into AppErrors. entity, field and
// value describe the row for DUPLICATE_ENTRY; other errors pass through.
func MapError(err error, entity, field, value string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return apperror.NewDuplicate(entity, field, value).
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case codeForeignKeyViolation:
		return apperror.NewValidation("referenced entity does not exist").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case codeCheckViolation:
		return apperror.NewValidation("value violates a ledger constraint").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	}
	return err
}
