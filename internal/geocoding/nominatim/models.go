package nominatim

// reverseResponse is the jsonv2 body of /reverse.
type reverseResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error,omitempty"`
}

// searchItem is one element of the jsonv2 /search array. Nominatim encodes
// coordinates as strings.
type searchItem struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Address keys in order of preference.
var (
	areaKeys = []string{"neighbourhood", "neighborhood", "suburb", "quarter", "city_district", "hamlet"}
	cityKeys = []string{"city", "town", "village", "municipality", "county"}
)
