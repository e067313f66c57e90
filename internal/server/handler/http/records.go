package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/atinyakov/TimeKeeper/internal/erp"
	"github.com/atinyakov/TimeKeeper/internal/middleware"
	"github.com/atinyakov/TimeKeeper/internal/models"
)

// TimeEntryRecordPath is the location prefix of created time entries.
const TimeEntryRecordPath = "/services/rest/record/v1/timeentry"

// Ledger books time and lists projects.
type Ledger interface {
	Projects() []models.Project
	Book(b erp.Booking) (erp.Record, error)
}

// RecordHandler serves the record REST API.
type RecordHandler struct {
	Ledger Ledger
}

type refName struct {
	Name string `json:"name"`
}

type projectItem struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Customer *refName `json:"customer,omitempty"`
}

// ListProjects handles GET /services/rest/record/v1/project.
func (h *RecordHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects := h.Ledger.Projects()
	items := make([]projectItem, 0, len(projects))
	for _, p := range projects {
		item := projectItem{ID: p.ID, Name: p.Name}
		if p.Customer != "" {
			item.Customer = &refName{Name: p.Customer}
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":        items,
		"count":        len(items),
		"totalResults": len(items),
		"hasMore":      false,
	})
}

type timeEntryRequest struct {
	Project struct {
		ID string `json:"id"`
	} `json:"project"`
	Date        string          `json:"date"`
	Hours       decimal.Decimal `json:"hours"`
	Description string          `json:"description"`
	Employee    *struct {
		ID string `json:"id"`
	} `json:"employee"`
}

// CreateTimeEntry handles POST /services/rest/record/v1/timeentry.
// On success it answers 204 with the new record in the Location header.
func (h *RecordHandler) CreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req timeEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid body")
		return
	}

	employee := ""
	if req.Employee != nil {
		employee = req.Employee.ID
	} else if p, ok := middleware.PrincipalFromContext(r.Context()); ok {
		employee = p.EmployeeID
	}

	rec, err := h.Ledger.Book(erp.Booking{
		Project:     req.Project.ID,
		Date:        req.Date,
		Hours:       req.Hours,
		Description: req.Description,
		Employee:    employee,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, erp.ErrUnknownProject) || errors.Is(err, erp.ErrInvalidBooking) {
			status = http.StatusBadRequest
		}
		writeProblem(w, status, err.Error())
		return
	}

	w.Header().Set("Location", TimeEntryRecordPath+"/"+rec.ID)
	w.WriteHeader(http.StatusNoContent)
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{
		"type":   "https://www.rfc-editor.org/rfc/rfc9110.html#section-15",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
