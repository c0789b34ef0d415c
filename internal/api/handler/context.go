// Package handler implements the HTTP handlers of the API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dexxeth/tourist-safety-shield/internal/api/middleware"
	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
	"github.com/dexxeth/tourist-safety-shield/internal/api/response"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// GetUserID returns the authenticated user id.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// decodeBody reads a JSON body into dst and validates it. It writes the
// 400 itself and reports false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		detail := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			detail = "request body is required"
		}
		response.BadRequest(w, r, detail, nil)
		return false
	}
	if errs := models.Validate(dst); len(errs) > 0 {
		response.BadRequest(w, r, "request validation failed", errs)
		return false
	}
	return true
}

// queryParams reads typed query parameters and collects field errors.
type queryParams struct {
	r    *http.Request
	errs []models.FieldError
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{r: r}
}

func (q *queryParams) str(name string) string {
	return strings.TrimSpace(q.r.URL.Query().Get(name))
}

func (q *queryParams) intOr(name string, def, lo, hi int) int {
	raw := q.str(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		q.fail(name, "must be an integer between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
		return def
	}
	return v
}

func (q *queryParams) floatOr(name string, def, lo, hi float64) float64 {
	raw := q.str(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < lo || v > hi {
		q.fail(name, "must be a number between "+strconv.FormatFloat(lo, 'f', -1, 64)+" and "+strconv.FormatFloat(hi, 'f', -1, 64))
		return def
	}
	return v
}

func (q *queryParams) durationOr(name string, def, maxDur time.Duration) time.Duration {
	raw := q.str(name)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 || v > maxDur {
		q.fail(name, "must be a positive duration up to "+maxDur.String())
		return def
	}
	return v
}

// origin reads lat and lng. Both absent yields nil; one absent or an
// invalid pair is a field error.
func (q *queryParams) origin(required bool) *geo.Coordinate {
	latRaw, lngRaw := q.str("lat"), q.str("lng")
	if latRaw == "" && lngRaw == "" {
		if required {
			q.fail("lat", "lat is required")
			q.fail("lng", "lng is required")
		}
		return nil
	}
	lat, latErr := strconv.ParseFloat(latRaw, 64)
	lng, lngErr := strconv.ParseFloat(lngRaw, 64)
	if latErr != nil {
		q.fail("lat", "lat must be a number")
	}
	if lngErr != nil {
		q.fail("lng", "lng must be a number")
	}
	if latErr != nil || lngErr != nil {
		return nil
	}
	c := geo.Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		q.fail("lat,lng", err.Error())
		return nil
	}
	return &c
}

func (q *queryParams) fail(field, msg string) {
	q.errs = append(q.errs, models.FieldError{Field: field, Message: msg, Code: "invalid"})
}

// ok writes a 400 when any parameter failed.
func (q *queryParams) ok(w http.ResponseWriter) bool {
	if len(q.errs) == 0 {
		return true
	}
	response.BadRequest(w, q.r, "invalid query parameters", q.errs)
	return false
}
