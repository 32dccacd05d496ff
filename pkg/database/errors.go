package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		if strings.Contains(pqErr.Message, "still referenced") || strings.Contains(pqErr.Detail, "still referenced") {
			return errors.Conflict("record is still referenced by other records")
		}
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Raised by the stock_transactions immutability trigger
	case "P0001":
		return errors.Conflict(pqErr.Message)

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_nonnegative"):
		return errors.Conflict("stock quantity cannot go below zero")

	case strings.Contains(constraint, "used_ips_bounds"):
		return errors.Conflict("pool usage must stay between zero and its capacity")

	case strings.Contains(constraint, "transaction_type"):
		return errors.Validation(map[string]string{
			"transaction_type": "must be one of: IN, OUT",
		})

	case strings.Contains(constraint, "pool_type"):
		return errors.Validation(map[string]string{
			"pool_type": "must be one of: public, private, management",
		})

	case strings.Contains(constraint, "priority"):
		return errors.Validation(map[string]string{
			"priority": "must be one of: normal, urgent",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "sku"):
		return "an item with this SKU already exists"
	case strings.Contains(constraint, "request_number"):
		return "a request with this number already exists"
	case strings.Contains(constraint, "pool_address"):
		return "this address is already allocated in the pool"
	case strings.Contains(constraint, "ip_pools_name"):
		return "a pool with this name already exists"
	default:
		return "a record with these values already exists"
	}
}

// IsUniqueViolation reports whether err is a unique constraint violation on
// a constraint whose name contains the given fragment.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, constraint)
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// IsCheckViolation reports whether err is a CHECK constraint violation.
func IsCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23514"
}
