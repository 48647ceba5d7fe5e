package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/pagination"
)

// PaginationParams reads limit and cursor query parameters. Absent values
// fall back to the pagination defaults downstream.
func PaginationParams(r *http.Request) (pagination.Params, error) {
	params := pagination.Params{}

	if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
		value, err := strconv.Atoi(limitStr)
		if err != nil || value <= 0 {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer")
		}
		params.Limit = value
	}
	params.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))
	return params, nil
}

// PathUUID parses a chi URL parameter as a UUID.
func PathUUID(value, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
