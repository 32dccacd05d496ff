package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Allocation failures. Each one is returned wrapped in an AppError so callers
// can match with Is and still read the offending resource from Details.
var (
	ErrItemNotFound       = errors.New("item not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrAlreadyProcessed   = errors.New("request already processed")
	ErrPoolNotFound       = errors.New("pool not found")
	ErrPoolExhausted      = errors.New("pool exhausted")
	ErrSubnetFragmented   = errors.New("subnet fragmented")
	ErrAllocationNotFound = errors.New("allocation not found")
)

// ItemNotFound is returned when a line item reference matches no stock item.
func ItemNotFound(ref string) *AppError {
	return &AppError{
		Err:        ErrItemNotFound,
		Code:       "ITEM_NOT_FOUND",
		Message:    fmt.Sprintf("item '%s' not found in inventory", ref),
		StatusCode: http.StatusNotFound,
		Details:    map[string]string{"item": ref},
	}
}

// InsufficientStock reports which item was short and by how much.
func InsufficientStock(itemID, sku, name string, available, requested int) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("insufficient stock for %s: available %d, requested %d", name, available, requested),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"item_id":   itemID,
			"sku":       sku,
			"available": strconv.Itoa(available),
			"requested": strconv.Itoa(requested),
		},
	}
}

// AlreadyProcessed is returned when a request has left the pending state.
func AlreadyProcessed(requestNumber, status string) *AppError {
	return &AppError{
		Err:        ErrAlreadyProcessed,
		Code:       "ALREADY_PROCESSED",
		Message:    fmt.Sprintf("request %s already processed (%s)", requestNumber, status),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"request_number": requestNumber,
			"status":         status,
		},
	}
}

func PoolNotFound(poolID string) *AppError {
	return &AppError{
		Err:        ErrPoolNotFound,
		Code:       "POOL_NOT_FOUND",
		Message:    "pool not found",
		StatusCode: http.StatusNotFound,
		Details:    map[string]string{"pool_id": poolID},
	}
}

func PoolExhausted(poolID string, used, total int) *AppError {
	return &AppError{
		Err:        ErrPoolExhausted,
		Code:       "POOL_EXHAUSTED",
		Message:    fmt.Sprintf("pool exhausted: %d of %d addresses in use", used, total),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"pool_id":   poolID,
			"used_ips":  strconv.Itoa(used),
			"total_ips": strconv.Itoa(total),
		},
	}
}

// SubnetFragmented signals that the pool counter claims free capacity but no
// host address in the CIDR is actually free.
func SubnetFragmented(poolID string, used, total int) *AppError {
	return &AppError{
		Err:        ErrSubnetFragmented,
		Code:       "SUBNET_FRAGMENTED",
		Message:    fmt.Sprintf("no free address in pool although %d of %d are in use", used, total),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"pool_id":   poolID,
			"used_ips":  strconv.Itoa(used),
			"total_ips": strconv.Itoa(total),
		},
	}
}

func AllocationNotFound(allocationID string) *AppError {
	return &AppError{
		Err:        ErrAllocationNotFound,
		Code:       "ALLOCATION_NOT_FOUND",
		Message:    "allocation not found",
		StatusCode: http.StatusNotFound,
		Details:    map[string]string{"allocation_id": allocationID},
	}
}

func AddressInUse(address string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "ADDRESS_IN_USE",
		Message:    fmt.Sprintf("address %s is already allocated", address),
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"ip_address": address},
	}
}

// PoolInUse blocks destructive pool changes while allocations exist.
func PoolInUse(poolID string, used int) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "POOL_IN_USE",
		Message:    fmt.Sprintf("pool has %d active allocations", used),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"pool_id":  poolID,
			"used_ips": strconv.Itoa(used),
		},
	}
}
