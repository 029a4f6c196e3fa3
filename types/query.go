package types

// FilterOperator is a comparison applied by a Filter.
type FilterOperator string

// Supported filter operators.
const (
	OpEq         FilterOperator = "eq"
	OpNe         FilterOperator = "ne"
	OpLt         FilterOperator = "lt"
	OpLte        FilterOperator = "lte"
	OpGt         FilterOperator = "gt"
	OpGte        FilterOperator = "gte"
	OpIn         FilterOperator = "in"
	OpNin        FilterOperator = "nin"
	OpContains   FilterOperator = "contains"
	OpNContains  FilterOperator = "ncontains"
	OpContainss  FilterOperator = "containss" // case-sensitive contains
	OpStartsWith FilterOperator = "startswith"
	OpEndsWith   FilterOperator = "endswith"
	OpNull       FilterOperator = "null"
	OpNNull      FilterOperator = "nnull"
)

// Filter is a single (field, operator, value) condition.
type Filter struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value"`
}

// SortOrder is the direction of a Sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Sort orders results by one field.
type Sort struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order"`
}

// PaginationMode selects where pagination is applied.
type PaginationMode string

const (
	PaginationServer PaginationMode = "server"
	PaginationOff    PaginationMode = "off"
)

// Default pagination values.
const (
	DefaultCurrentPage = 1
	DefaultPageSize    = 10
)

// Pagination selects a page of results.
type Pagination struct {
	Current  int            `json:"current"`
	PageSize int            `json:"pageSize"`
	Mode     PaginationMode `json:"mode,omitempty"`
}

// Normalize fills zero values with defaults.
func (p Pagination) Normalize() Pagination {
	if p.Current <= 0 {
		p.Current = DefaultCurrentPage
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.Mode == "" {
		p.Mode = PaginationServer
	}
	return p
}

// ListParams are the parameters of a list request. Filters and Sort are
// ordered; two params holding the same conditions in a different order are
// different requests.
type ListParams struct {
	Filters    []Filter    `json:"filters,omitempty"`
	Sort       []Sort      `json:"sort,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Meta       Meta        `json:"meta,omitempty"`
}

// ListResult is a page of records plus the total size of the collection.
type ListResult struct {
	Data  []Record `json:"data"`
	Total int      `json:"total"`
}

// CustomRequest is a call to a non-CRUD endpoint.
type CustomRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Sort    []Sort            `json:"sort,omitempty"`
	Filters []Filter          `json:"filters,omitempty"`
	Query   any               `json:"query,omitempty"`
	Payload any               `json:"payload,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Meta    Meta              `json:"meta,omitempty"`
}

// CustomResponse is the result of a CustomRequest.
type CustomResponse struct {
	Data any `json:"data"`
}
