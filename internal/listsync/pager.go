package listsync

// DefaultLimit is the page size used when a screen declares none.
const DefaultLimit = 10

// PageState contains metadata for the paginated listing of a screen.
type PageState struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPageState computes pagination metadata and clamps page into range.
func NewPageState(page, limit, total int) PageState {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if total < 0 {
		total = 0
	}
	totalPages := TotalPages(total, limit)
	return PageState{
		Page:       ClampPage(page, totalPages),
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// TotalPages returns max(1, ceil(total/limit)).
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

// ClampPage moves page into [1, totalPages].
func ClampPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	return min(max(page, 1), totalPages)
}

// CanPrev is false on the first page.
func (p PageState) CanPrev() bool { return p.Page > 1 }

// CanNext is false on the last page.
func (p PageState) CanNext() bool { return p.Page < p.TotalPages }

// ButtonKind distinguishes pager controls.
type ButtonKind string

const (
	ButtonPage     ButtonKind = "page"
	ButtonEllipsis ButtonKind = "ellipsis"
	ButtonBoundary ButtonKind = "boundary"
)

// PageButton is one control of the pagination window.
type PageButton struct {
	Kind    ButtonKind `json:"kind"`
	Value   int        `json:"value,omitempty"`
	Current bool       `json:"current,omitempty"`
}

// Window lists the page buttons around page: its neighbours, plus boundary
// buttons for the first and last page when they fall outside, separated by
// an ellipsis when pages are skipped.
func Window(page, totalPages int) []PageButton {
	if totalPages < 1 {
		totalPages = 1
	}
	page = ClampPage(page, totalPages)
	start := max(1, page-1)
	end := min(totalPages, page+1)

	buttons := make([]PageButton, 0, end-start+5)
	if start > 1 {
		buttons = append(buttons, PageButton{Kind: ButtonBoundary, Value: 1})
		if start-1 > 1 {
			buttons = append(buttons, PageButton{Kind: ButtonEllipsis})
		}
	}
	for n := start; n <= end; n++ {
		buttons = append(buttons, PageButton{Kind: ButtonPage, Value: n, Current: n == page})
	}
	if end < totalPages {
		if totalPages-end > 1 {
			buttons = append(buttons, PageButton{Kind: ButtonEllipsis})
		}
		buttons = append(buttons, PageButton{Kind: ButtonBoundary, Value: totalPages})
	}
	return buttons
}
