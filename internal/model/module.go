package model

import "strings"

// Module is a course module ("VKM") from the catalog.  JSON names follow the
// catalog export the frontend already consumes.
type Module struct {
	ID                  uint64  `json:"id"`
	Name                string  `json:"name"`
	ShortDescription    string  `json:"shortdescription"`
	Description         string  `json:"description"`
	Content             string  `json:"content"`
	StudyCredit         int     `json:"studycredit"`
	Location            string  `json:"location"`
	ContactID           int64   `json:"contact_id"`
	Level               string  `json:"level"`
	LearningOutcomes    string  `json:"learningoutcomes"`
	ModuleTags          string  `json:"module_tags"`
	PopularityScore     float64 `json:"popularity_score"`
	EstimatedDifficulty float64 `json:"estimated_difficulty"`
	AvailableSpots      int     `json:"available_spots"`
	StartDate           string  `json:"start_date"`
}

// Tags splits the comma separated module_tags column.
func (m Module) Tags() []string {
	var out []string
	for _, t := range strings.Split(m.ModuleTags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ModuleFilter narrows a catalog listing.  Zero values are ignored.
type ModuleFilter struct {
	Search   string // case-insensitive substring of the name
	Location string
	Credits  *int
}

// ModulePage is one page of a catalog listing together with the total
// number of matches.
type ModulePage struct {
	Modules []Module `json:"vkms"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
}
