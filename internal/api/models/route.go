package models

// SaferRouteRequest is the body of POST /v1/routes/safer.
type SaferRouteRequest struct {
	Origin      *Point `json:"origin" validate:"required"`
	Destination *Point `json:"destination" validate:"required"`
	City        string `json:"city,omitempty" validate:"max=120"`
}
