package basemodels

// PaginateResult chứa kết quả truy vấn có phân trang
type PaginateResult[T any] struct {
	Items      []T   `json:"items"`      // Danh sách items của trang hiện tại
	Page       int64 `json:"page"`       // Trang hiện tại (bắt đầu từ 1)
	Limit      int64 `json:"limit"`      // Số items mỗi trang
	Total      int64 `json:"total"`      // Tổng số items
	TotalPages int64 `json:"totalPages"` // Tổng số trang
}
