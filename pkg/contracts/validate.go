package contracts

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// MaxFieldLength bounds every free-text field, in bytes.
const MaxFieldLength = 256

// CheckField validates a free-text field. The returned error is a plain
// description; callers wrap it into an ErrInvalidInput rejection.
func CheckField(name, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
	if len(value) > MaxFieldLength {
		return fmt.Errorf("%s exceeds %d bytes", name, MaxFieldLength)
	}
	if !utf8.ValidString(value) {
		return fmt.Errorf("%s is not valid UTF-8", name)
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s contains control character %U", name, r)
		}
	}
	return nil
}

// CheckReading validates the free-text fields of a reading.
func CheckReading(r Reading) error {
	if err := CheckField("vessel_id", r.VesselID, true); err != nil {
		return err
	}
	if err := CheckField("position", r.Position, false); err != nil {
		return err
	}
	return CheckField("port_state", r.PortState, false)
}
