package domain

// Role groups users. Name is unique.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
