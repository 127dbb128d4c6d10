package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"docbase.org/internal/audit"
	"docbase.org/internal/schema"
)

type createEntityRequest struct {
	Name string `json:"name"`
}

type renameEntityRequest struct {
	Name string `json:"name"`
}

type createFieldRequest struct {
	ColumnName   string  `json:"column_name"`
	ColumnType   string  `json:"column_type"`
	Size         int     `json:"size"`
	Placeholder  string  `json:"placeholder"`
	DefaultValue *string `json:"default_value"`
	IsUnique     bool    `json:"is_unique"`
}

type updateFieldRequest struct {
	ColumnName   *string `json:"column_name"`
	ColumnType   *string `json:"column_type"`
	Size         *int    `json:"size"`
	Placeholder  *string `json:"placeholder"`
	DefaultValue *string `json:"default_value"`
	IsUnique     *bool   `json:"is_unique"`
}

func (a *API) handleEntities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureAccess(w, r, catalogEntities, "read") {
			return
		}
		entities, err := a.registry.ListEntities(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
	case http.MethodPost:
		if !a.ensureAccess(w, r, catalogEntities, "create") {
			return
		}
		var req createEntityRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		entity, err := a.registry.CreateEntity(r.Context(), req.Name)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "schema.entity.created", map[string]any{
			"entity_id": entity.ID,
			"name":      entity.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/entities/%s", entity.ID))
		writeJSON(w, http.StatusCreated, entity)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEntityResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/entities/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	entityID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleEntity(w, r, entityID)
	case len(parts) == 2 && parts[1] == "fields":
		a.handleEntityFields(w, r, entityID)
	case len(parts) == 3 && parts[1] == "fields":
		a.handleEntityField(w, r, entityID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleEntity(w http.ResponseWriter, r *http.Request, entityID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureAccess(w, r, catalogEntities, "read") {
			return
		}
		entity, err := a.registry.GetEntity(r.Context(), entityID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entity)
	case http.MethodPatch:
		if !a.ensureAccess(w, r, catalogEntities, "update") {
			return
		}
		var req renameEntityRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		entity, err := a.registry.RenameEntity(r.Context(), entityID, req.Name)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "schema.entity.renamed", map[string]any{
			"entity_id": entity.ID,
			"name":      entity.Name,
		})
		writeJSON(w, http.StatusOK, entity)
	case http.MethodDelete:
		if !a.ensureAccess(w, r, catalogEntities, "delete") {
			return
		}
		if err := a.registry.DeleteEntity(r.Context(), entityID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "schema.entity.deleted", map[string]any{
			"entity_id": entityID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleEntityFields(w http.ResponseWriter, r *http.Request, entityID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureAccess(w, r, catalogEntities, "read") {
			return
		}
		fields, err := a.registry.FieldsForEntity(r.Context(), entityID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
	case http.MethodPost:
		if !a.ensureAccess(w, r, catalogEntities, "update") {
			return
		}
		var req createFieldRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		field, err := a.registry.AddField(r.Context(), schema.Field{
			EntityID:     entityID,
			ColumnName:   req.ColumnName,
			ColumnType:   schema.FieldType(req.ColumnType),
			Size:         req.Size,
			Placeholder:  req.Placeholder,
			DefaultValue: req.DefaultValue,
			IsUnique:     req.IsUnique,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "schema.field.added", map[string]any{
			"entity_id":   entityID,
			"field_id":    field.ID,
			"column_name": field.ColumnName,
			"column_type": string(field.ColumnType),
		})
		writeJSON(w, http.StatusCreated, field)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEntityField(w http.ResponseWriter, r *http.Request, entityID, fieldID string) {
	switch r.Method {
	case http.MethodPatch:
		if !a.ensureAccess(w, r, catalogEntities, "update") {
			return
		}
		var req updateFieldRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		upd := schema.FieldUpdate{
			ColumnName:   req.ColumnName,
			Size:         req.Size,
			Placeholder:  req.Placeholder,
			DefaultValue: req.DefaultValue,
			IsUnique:     req.IsUnique,
		}
		if req.ColumnType != nil {
			ft := schema.FieldType(*req.ColumnType)
			upd.ColumnType = &ft
		}
		field, err := a.registry.UpdateField(r.Context(), entityID, fieldID, upd)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "schema.field.updated", map[string]any{
			"entity_id": entityID,
			"field_id":  field.ID,
		})
		writeJSON(w, http.StatusOK, field)
	case http.MethodDelete:
		if !a.ensureAccess(w, r, catalogEntities, "update") {
			return
		}
		if err := a.registry.RemoveField(r.Context(), entityID, fieldID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "schema.field.removed", map[string]any{
			"entity_id": entityID,
			"field_id":  fieldID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}
