package property

import "time"

// Property is a rental unit tracked by its owning user.
type Property struct {
	ID           string    `json:"id"`
	UserID       string    `json:"-"`
	ComplexName  string    `json:"complexName"`
	BuildingName string    `json:"buildingName"`
	UnitNo       string    `json:"unitNo"`
	TypeInfo     string    `json:"typeInfo,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type PropertyInput struct {
	ComplexName  string `json:"complexName"`
	BuildingName string `json:"buildingName"`
	UnitNo       string `json:"unitNo"`
	TypeInfo     string `json:"typeInfo"`
	Note         string `json:"note"`
}
