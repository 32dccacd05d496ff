package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
)

type lineInput struct {
	Name     string `json:"name" validate:"required_without=SKU"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

type requestInput struct {
	Engineer string      `json:"engineer_name" validate:"required"`
	Priority string      `json:"priority" validate:"omitempty,oneof=normal urgent"`
	Items    []lineInput `json:"items" validate:"required,min=1,dive"`
}

func TestValidate_ReportsJSONFieldPaths(t *testing.T) {
	err := Validate(requestInput{
		Priority: "asap",
		Items:    []lineInput{{SKU: "FC-100M", Quantity: 0}, {Quantity: 2}},
	})

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Equal(t, "this field is required", appErr.Details["engineer_name"])
	assert.Equal(t, "must be one of: normal urgent", appErr.Details["priority"])
	assert.Equal(t, "must be greater than or equal to 1", appErr.Details["items[0].quantity"])
	assert.Equal(t, "required when SKU is empty", appErr.Details["items[1].name"])
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(requestInput{
		Engineer: "Ravi",
		Items:    []lineInput{{Name: "Fiber cable", Quantity: 1}},
	}))
}

func TestPagination(t *testing.T) {
	page, perPage := Pagination(httptest.NewRequest("GET", "/?page=3&per_page=500", nil), 20, 100)
	assert.Equal(t, 3, page)
	assert.Equal(t, 100, perPage)

	page, perPage = Pagination(httptest.NewRequest("GET", "/?page=-1", nil), 20, 100)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, perPage)
}

func TestNewMeta(t *testing.T) {
	assert.Equal(t, &Meta{Page: 1, PerPage: 20, Total: 41, TotalPages: 3}, NewMeta(1, 20, 41))
}
