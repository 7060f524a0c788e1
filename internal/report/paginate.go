package report

// DefaultPageSize is the number of table rows per page.
const DefaultPageSize = 30

// PageCount returns how many pages of size hold total items.
func PageCount(total, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	if total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// ClampPage bounds page to [1, max(pages, 1)].
func ClampPage(page, pages int) int {
	if page < 1 {
		return 1
	}
	if pages < 1 {
		return 1
	}
	if page > pages {
		return pages
	}
	return page
}

// Paginate returns page (1-based) of items. Pages outside the range yield an
// empty slice.
func Paginate[T any](items []T, page, size int) []T {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 1 || page > PageCount(len(items), size) {
		return []T{}
	}
	start := (page - 1) * size
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
