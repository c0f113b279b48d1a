package storage

// Page is a normalized page/limit pair for list queries.
type Page struct {
	Page  int
	Limit int
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

func NormalizePage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return Page{Page: page, Limit: limit}
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PageMeta describes a result page. TotalResult is counted with the same
// filter as the page query, so totals stay exact under filtering.
type PageMeta struct {
	Page        int `json:"page"`
	Limit       int `json:"limit"`
	TotalResult int `json:"total_result"`
	TotalPage   int `json:"total_page"`
}

func NewPageMeta(p Page, total int) PageMeta {
	pages := total / p.Limit
	if total%p.Limit != 0 {
		pages++
	}
	return PageMeta{Page: p.Page, Limit: p.Limit, TotalResult: total, TotalPage: pages}
}
