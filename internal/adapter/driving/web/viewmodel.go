package web

import (
	"strconv"

	vm "github.com/ericfisherdev/cruciverba/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/cruciverba/internal/application"
	"github.com/ericfisherdev/cruciverba/internal/domain/model"
)

// toContributionRow converts a domain Contribution to a dashboard row.
func toContributionRow(c model.Contribution) vm.ContributionRowViewModel {
	var createdAt string
	if !c.CreatedAt.IsZero() {
		createdAt = c.CreatedAt.Format(application.ExportTimeLayout)
	}

	return vm.ContributionRowViewModel{
		ID:          c.ID,
		Word:        c.Word,
		Clue:        c.Clue,
		Name:        c.DisplayName(),
		IsAnonymous: c.Name == "",
		CreatedAt:   createdAt,
		DeletePath:  "/admin/delete/" + strconv.FormatInt(c.ID, 10),
	}
}

// toDashboardViewModel builds the admin dashboard from contributions already
// ordered newest first.
func toDashboardViewModel(page vm.PageViewModel, contributions []model.Contribution) vm.DashboardViewModel {
	rows := make([]vm.ContributionRowViewModel, 0, len(contributions))
	for _, c := range contributions {
		rows = append(rows, toContributionRow(c))
	}

	return vm.DashboardViewModel{
		PageViewModel: page,
		Total:         len(rows),
		Rows:          rows,
	}
}
