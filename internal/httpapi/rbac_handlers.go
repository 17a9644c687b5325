package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"schoolhub.org/internal/audit"
	"schoolhub.org/internal/auth"
)

type assignmentRequest struct {
	UserID string `json:"user_id" validate:"required"`
	RoleID string `json:"role_id" validate:"required"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
}

func (a *API) handleAssignments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost, http.MethodDelete:
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		return
	}
	if !a.ensurePermission(w, r, auth.ResourceRBAC, auth.ActionManage) {
		return
	}
	var req assignmentRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if r.Method == http.MethodPost {
		if err := a.svc.AssignRole(r.Context(), req.UserID, req.RoleID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.assignment.create", map[string]any{
			"user_id": req.UserID,
			"role_id": req.RoleID,
		})
		writeJSON(w, http.StatusCreated, map[string]any{
			"user_id": req.UserID,
			"role_id": req.RoleID,
		})
		return
	}

	if err := a.svc.RemoveAssignment(r.Context(), req.UserID, req.RoleID); err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.assignment.delete", map[string]any{
		"user_id": req.UserID,
		"role_id": req.RoleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/rbac/roles/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermission(w, r, auth.ResourceRBAC, auth.ActionManage) {
		return
	}

	var req updateRolePermissionsRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grants := auth.ParseGrants(req.Permissions)
	if len(grants) != len(req.Permissions) {
		writeError(w, r, http.StatusBadRequest, "permissions must be resource:action pairs")
		return
	}

	if err := a.svc.SetRolePermissions(r.Context(), roleID, grants); err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.permissions.update", map[string]any{
		"role_id": roleID,
		"count":   len(grants),
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "rbac operation failed")
	}
}
