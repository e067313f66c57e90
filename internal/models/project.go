package models

// Project is a remote-owned project a time entry can be booked against.
// Projects are cached in memory only.
type Project struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Customer string `json:"customer"`
}

// FindProject returns the project with the given id.
func FindProject(projects []Project, id string) (Project, bool) {
	for _, p := range projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}
