package profile

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kinship/backend/internal/models"
)

// Field types.
const (
	TypeTextbox   = "textbox"
	TypeTextarea  = "textarea"
	TypeNumber    = "number"
	TypeURL       = "url"
	TypeDatebox   = "datebox"
	TypeSelectbox = "selectbox"
	TypeRadio     = "radio"
	TypeCheckbox  = "checkbox"
)

// Visibility levels, from most to least open.
const (
	VisibilityPublic     = "public"
	VisibilityLoggedIn   = "loggedin"
	VisibilityFriends    = "friends"
	VisibilityAdminsOnly = "adminsonly"
)

// PrimaryFieldID is the Name field, mirrored into each member's display name.
const PrimaryFieldID int64 = 1

const dateLayout = "2006-01-02"

var fieldTypes = map[string]bool{
	TypeTextbox: true, TypeTextarea: true, TypeNumber: true, TypeURL: true,
	TypeDatebox: true, TypeSelectbox: true, TypeRadio: true, TypeCheckbox: true,
}

var visibilities = map[string]bool{
	VisibilityPublic: true, VisibilityLoggedIn: true, VisibilityFriends: true, VisibilityAdminsOnly: true,
}

func hasOptions(fieldType string) bool {
	return fieldType == TypeSelectbox || fieldType == TypeRadio || fieldType == TypeCheckbox
}

// normalize validates raw input for the field and returns the stored form.
// Checkbox values are JSON arrays of selected options.
func normalize(field models.ProfileField, raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" || (field.Type == TypeCheckbox && (value == "[]" || value == "null")) {
		return "", nil
	}

	switch field.Type {
	case TypeTextbox, TypeTextarea:
		return value, nil
	case TypeNumber:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return "", fmt.Errorf("%w: %q is not a number", ErrInvalidValue, value)
		}
		return value, nil
	case TypeURL:
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidValue, value)
		}
		return u.String(), nil
	case TypeDatebox:
		d, err := time.Parse(dateLayout, value)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidValue, value)
		}
		return d.Format(dateLayout), nil
	case TypeSelectbox, TypeRadio:
		if !contains(field.Options, value) {
			return "", fmt.Errorf("%w: %q is not an option", ErrInvalidValue, value)
		}
		return value, nil
	case TypeCheckbox:
		var selected []string
		if err := json.Unmarshal([]byte(value), &selected); err != nil {
			return "", fmt.Errorf("%w: checkbox values must be a JSON array", ErrInvalidValue)
		}
		var kept []string
		seen := map[string]bool{}
		for _, option := range field.Options {
			if contains(selected, option) && !seen[option] {
				kept = append(kept, option)
				seen[option] = true
			}
		}
		if len(kept) != len(dedupe(selected)) {
			return "", fmt.Errorf("%w: unknown checkbox option", ErrInvalidValue)
		}
		if len(kept) == 0 {
			return "", nil
		}
		encoded, err := json.Marshal(kept)
		if err != nil {
			return "", fmt.Errorf("encode checkbox value: %w", err)
		}
		return string(encoded), nil
	default:
		return "", fmt.Errorf("%w: unsupported field type %q", ErrInvalidValue, field.Type)
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func dedupe(values []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
