package materials

import (
	"errors"
	"strings"
)

func (s *Service) validate(m Material) error {
	if m.OwnerID <= 0 {
		return errors.New("owner is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("material name is required")
	}
	return ValidateAttributes(m.Attributes)
}
