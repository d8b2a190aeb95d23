package warehouses

import (
	"errors"
	"strings"
)

func (s *Service) validate(w Warehouse) error {
	if w.OwnerID <= 0 {
		return errors.New("owner is required")
	}
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("warehouse name is required")
	}
	if (w.Latitude == nil) != (w.Longitude == nil) {
		return errors.New("latitude and longitude must be provided together")
	}
	if w.Latitude != nil {
		if *w.Latitude < -90 || *w.Latitude > 90 {
			return errors.New("latitude out of range")
		}
		if *w.Longitude < -180 || *w.Longitude > 180 {
			return errors.New("longitude out of range")
		}
	}
	return nil
}
