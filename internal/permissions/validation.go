package permissions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/orderdesk/authz/internal/platform/httpx"
	"github.com/orderdesk/authz/internal/rbac"
)

type submitInput struct {
	RequesterID       string               `validate:"required,max=128"`
	TargetPrincipalID string               `validate:"required,max=128"`
	Proposed          []rbac.PermissionRow `validate:"required,min=1,max=100,unique=ResourceKey,dive"`
	Reason            string               `validate:"required,max=500"`
}

type decisionInput struct {
	ReviewerID   string `validate:"required,max=128"`
	ReviewReason string `validate:"max=500"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validatePermissionRow, rbac.PermissionRow{})
	return v
}

func validatePermissionRow(sl validator.StructLevel) {
	row := sl.Current().Interface().(rbac.PermissionRow)
	if !rbac.ValidResourceKey(row.ResourceKey) {
		sl.ReportError(row.ResourceKey, "ResourceKey", "resourceKey", "resourcekey", "")
	}
	if !row.DataScope.Valid() {
		sl.ReportError(row.DataScope, "DataScope", "dataScope", "datascope", "")
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(parts, "; "))
}

func normalizeRows(rows []rbac.PermissionRow) []rbac.PermissionRow {
	out := make([]rbac.PermissionRow, len(rows))
	for i, row := range rows {
		row.ResourceKey = strings.TrimSpace(row.ResourceKey)
		row.DataScope = rbac.DataScope(strings.ToLower(strings.TrimSpace(string(row.DataScope))))
		out[i] = row
	}
	return out
}
