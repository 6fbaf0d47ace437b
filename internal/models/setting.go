package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SettingMode is the kind of value held by a Setting.
type SettingMode int

const (
	// SettingAuto leaves the decision to the engine.
	SettingAuto SettingMode = iota
	// SettingOff disables the component.
	SettingOff
	// SettingOn enables the component with its default size.
	SettingOn
	// SettingTerms enables the component with an explicit Fourier term count.
	SettingTerms
)

// Setting is a seasonality toggle: "auto", true, false, or a positive number
// of Fourier terms.
type Setting struct {
	Mode  SettingMode
	Terms int
}

// Auto returns the automatic-detection setting.
func Auto() Setting { return Setting{Mode: SettingAuto} }

// On returns the enabled setting.
func On() Setting { return Setting{Mode: SettingOn} }

// Off returns the disabled setting.
func Off() Setting { return Setting{Mode: SettingOff} }

// Terms returns a setting with an explicit Fourier term count.
func Terms(n int) Setting { return Setting{Mode: SettingTerms, Terms: n} }

// Validate rejects non-positive term counts.
func (s Setting) Validate() error {
	switch s.Mode {
	case SettingAuto, SettingOn, SettingOff:
		return nil
	case SettingTerms:
		if s.Terms <= 0 {
			return fmt.Errorf("%w: fourier terms must be positive, got %d", ErrConfiguration, s.Terms)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown setting mode %d", ErrConfiguration, s.Mode)
}

// String renders the setting the way ParseSetting reads it.
func (s Setting) String() string {
	switch s.Mode {
	case SettingOn:
		return "true"
	case SettingOff:
		return "false"
	case SettingTerms:
		return strconv.Itoa(s.Terms)
	}
	return "auto"
}

// ParseSetting reads "auto", "true"/"false" or a positive integer.
func ParseSetting(v string) (Setting, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "auto", "":
		return Auto(), nil
	case "true", "on", "yes":
		return On(), nil
	case "false", "off", "no":
		return Off(), nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return Setting{}, fmt.Errorf("%w: seasonality must be auto, true, false or a positive integer, got %q", ErrConfiguration, v)
	}
	s := Terms(n)
	return s, s.Validate()
}

// MarshalJSON encodes "auto", a boolean, or the term count.
func (s Setting) MarshalJSON() ([]byte, error) {
	switch s.Mode {
	case SettingOn:
		return []byte("true"), nil
	case SettingOff:
		return []byte("false"), nil
	case SettingTerms:
		return json.Marshal(s.Terms)
	}
	return []byte(`"auto"`), nil
}

// UnmarshalJSON accepts "auto", a boolean, or an integral number.
func (s *Setting) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		if x != "auto" {
			return fmt.Errorf("setting string must be \"auto\", got %q", x)
		}
		*s = Auto()
	case bool:
		if x {
			*s = On()
		} else {
			*s = Off()
		}
	case float64:
		if x != math.Trunc(x) || x <= 0 {
			return fmt.Errorf("setting term count must be a positive integer, got %v", x)
		}
		*s = Terms(int(x))
	default:
		return fmt.Errorf("setting must be \"auto\", a boolean or an integer, got %s", string(b))
	}
	return nil
}
