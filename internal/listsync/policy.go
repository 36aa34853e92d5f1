package listsync

// Trigger names what caused a fetch.
type Trigger int

const (
	TriggerFilter Trigger = iota + 1
	TriggerSort
	TriggerLimit
	TriggerPage
	TriggerRefresh
)

func (t Trigger) String() string {
	switch t {
	case TriggerFilter:
		return "filter"
	case TriggerSort:
		return "sort"
	case TriggerLimit:
		return "limit"
	case TriggerPage:
		return "page"
	case TriggerRefresh:
		return "refresh"
	}
	return "unknown"
}

// NextPage is the page-reset rule: filter, sort and limit changes restart at
// page 1, pagination and refresh keep the current page.
func NextPage(t Trigger, current int) int {
	switch t {
	case TriggerFilter, TriggerSort, TriggerLimit:
		return 1
	}
	if current < 1 {
		return 1
	}
	return current
}
