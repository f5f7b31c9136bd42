package postgres

import (
	"errors"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// mapError translates driver errors into credential sentinels. Anything
// unrecognised is returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return credential.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return credential.ErrDuplicate
		case codeForeignKeyViolation, codeInvalidText:
			return credential.ErrNotFound
		}
	}
	return err
}
