package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deppfellow/osmcha-backend/internal/errs"
)

// Accepted layouts for date query parameters, tried in order.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseBoolParam(name, raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, badParam(name, "must be true or false")
	}
	return &v, nil
}

func parseTimeParam(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, badParam(name, "must be an RFC 3339 timestamp or YYYY-MM-DD date")
}

func parseIntParam(name, raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, badParam(name, "must be a number")
	}
	return &v, nil
}

func parseFloatParam(name, raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, badParam(name, "must be a number")
	}
	return &v, nil
}

// parseBBoxParam parses "west,south,east,north".
func parseBBoxParam(name, raw string) ([]float64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, badParam(name, "must be west,south,east,north")
	}
	coords := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, badParam(name, "must be west,south,east,north")
		}
		coords[i] = v
	}
	return coords, nil
}

func badParam(name, message string) error {
	return errs.NewBadRequestError(
		fmt.Sprintf("Invalid %s parameter", name), true, nil,
		[]errs.FieldError{{Field: name, Error: message}}, nil)
}
