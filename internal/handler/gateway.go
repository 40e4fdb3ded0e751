package handler

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/NelsonFranklinWere/emil/backend/internal/gate"
)

var forbiddenPage = template.Must(template.New("forbidden").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Access denied</title></head>
<body>
  <h1>Access denied</h1>
  <p>Your account does not have access to this area.</p>
  <p><a href="{{.Home}}">Back to the dashboard</a></p>
</body>
</html>
`))

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.successResponse(w, r, "ok", nil)
}

func (h *Handler) Forbidden(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	if err := forbiddenPage.Execute(w, struct{ Home string }{Home: "/dashboard"}); err != nil {
		h.logInternalServerError(r, err)
	}
}

func (h *Handler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	p, _ := gate.PrincipalFromContext(r.Context())
	h.successResponse(w, r, "identity verified", map[string]string{
		"id":    p.Subject,
		"email": p.Email,
		"role":  p.Role.String(),
	})
}

func (h *Handler) ListAccessEvents(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Limit int `validate:"min=1,max=500"`
	}{Limit: 50}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.errorResponse(w, r, http.StatusBadRequest, "limit must be a number")
			return
		}
		req.Limit = limit
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	events, err := h.events.ListAccessEvents(r.Context(), req.Limit)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "access events", events)
}
