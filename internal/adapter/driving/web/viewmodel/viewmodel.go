// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// Flash categories.
const (
	FlashError   = "error"
	FlashSuccess = "success"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `json:"c"` // FlashError or FlashSuccess
	Message  string `json:"m"`
}

// PageViewModel holds what every page needs: its title, queued flashes and
// the CSRF form token.
type PageViewModel struct {
	Title     string
	Flashes   []Flash
	CSRFField string // name of the hidden CSRF input
	CSRFToken string
}

// ContributionRowViewModel holds presentation-ready data for one dashboard row.
type ContributionRowViewModel struct {
	ID          int64
	Word        string
	Clue        string
	Name        string
	IsAnonymous bool
	CreatedAt   string
	DeletePath  string
}

// DashboardViewModel holds the admin dashboard: all contributions, newest first.
type DashboardViewModel struct {
	PageViewModel
	Total int
	Rows  []ContributionRowViewModel
}

// SuccessViewModel holds the thank-you page shown after a stored contribution.
type SuccessViewModel struct {
	PageViewModel
	Name string
}

// ErrorViewModel holds a generic error page such as the rate-limit page.
type ErrorViewModel struct {
	PageViewModel
	Message string
}
