package osrm

// routeResponse is the body of the OSRM route service.
type routeResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
	Routes  []route `json:"routes"`
}

type route struct {
	Distance float64  `json:"distance"` // meters
	Duration float64  `json:"duration"` // seconds
	Geometry geometry `json:"geometry"`
}

// geometry is a GeoJSON LineString with [lng, lat] pairs.
type geometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// OSRM response codes.
const (
	codeOK           = "Ok"
	codeNoRoute      = "NoRoute"
	codeNoSegment    = "NoSegment"
	codeInvalidQuery = "InvalidQuery"
	codeInvalidValue = "InvalidValue"
	codeTooBig       = "TooBig"
)
