package openrouteservice

// directionsRequest is the body of POST /v2/directions/{profile}/geojson.
type directionsRequest struct {
	Coordinates       [][]float64        `json:"coordinates"`
	AlternativeRoutes *alternativeRoutes `json:"alternative_routes,omitempty"`
	Instructions      bool               `json:"instructions"`
	Units             string             `json:"units"`
}

// alternativeRoutes configures ORS alternative route generation.
type alternativeRoutes struct {
	TargetCount  int     `json:"target_count"`
	ShareFactor  float64 `json:"share_factor"`
	WeightFactor float64 `json:"weight_factor"`
}

// featureCollection is the GeoJSON directions response.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Geometry struct {
		Type        string      `json:"type"`
		Coordinates [][]float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		Summary struct {
			Distance float64 `json:"distance"` // meters
			Duration float64 `json:"duration"` // seconds
		} `json:"summary"`
	} `json:"properties"`
}

// errorResponse is an ORS error body.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ORS error codes used for mapping.
const (
	errorCodeRouteNotFound = 2009
	errorCodePointNotFound = 2010
)
