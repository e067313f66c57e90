package http

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/atinyakov/TimeKeeper/internal/erp"
)

// RestletHandler serves the signed time-entry restlet. Application errors are
// reported as {"success": false, "error": ...} with status 200.
type RestletHandler struct {
	Ledger Ledger
}

type restletProject struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Customer string `json:"customer"`
}

// Get lists the projects time can be booked against.
func (h *RestletHandler) Get(w http.ResponseWriter, r *http.Request) {
	projects := h.Ledger.Projects()
	out := make([]restletProject, 0, len(projects))
	for _, p := range projects {
		out = append(out, restletProject{ID: p.ID, Name: p.Name, Customer: p.Customer})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "projects": out})
}

type restletEntry struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Project     string          `json:"project"`
	Hours       decimal.Decimal `json:"hours"`
	Description string          `json:"description"`
}

// Post books a time entry.
func (h *RestletHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req restletEntry
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "invalid body"})
		return
	}
	rec, err := h.Ledger.Book(erp.Booking{
		Project:     req.Project,
		Date:        req.Date,
		Hours:       req.Hours,
		Description: req.Description,
		ExternalID:  req.ID,
	})
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": rec.ID})
}
