package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidationError represents a structured validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects multiple field errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// Valid roles - must match the users.role CHECK constraint.
var ValidRoles = []string{"admin", "user"}

// RequireField checks a required string field is non-empty.
func RequireField(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// ValidateEnum checks a field is one of allowed values.
func ValidateEnum(ve *ValidationErrors, field, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	ve.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,64}$`)

// ValidateUsername checks login names: 3-64 of letters, digits, . _ -
func ValidateUsername(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if !usernamePattern.MatchString(value) {
		ve.Add(field, "must be 3-64 letters, digits, '.', '_' or '-'")
	}
}

var itemCodePattern = regexp.MustCompile(`^[A-Z]{3}\.\d{5}$`)

// ValidItemCode reports whether s looks like "MPR.02199".
func ValidItemCode(s string) bool {
	return itemCodePattern.MatchString(s)
}

// ValidateUploadName checks an uploaded file name against allowed extensions.
func ValidateUploadName(ve *ValidationErrors, field, name string, exts ...string) {
	if name == "" {
		ve.Add(field, "no file selected")
		return
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return
		}
	}
	ve.Add(field, fmt.Sprintf("only %s files are allowed", strings.Join(exts, ", ")))
}

// ValidateMaxLength checks a field does not exceed max characters.
func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if len([]rune(value)) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// ValidateIntRange checks min <= value <= max.
func ValidateIntRange(ve *ValidationErrors, field string, value, min, max int) {
	if value < min || value > max {
		ve.Add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidateHexColor checks a "#rrggbb" colour.
func ValidateHexColor(ve *ValidationErrors, field, value string) {
	if !hexColorPattern.MatchString(value) {
		ve.Add(field, "must be a colour like #1a2b3c")
	}
}

// CNPJDigits strips everything but digits from a CNPJ.
func CNPJDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCNPJ reports whether s, punctuation ignored, is a 14-digit CNPJ with
// correct check digits.
func ValidCNPJ(s string) bool {
	d := CNPJDigits(s)
	if len(d) != 14 || strings.Count(d, d[:1]) == 14 {
		return false
	}
	return cnpjCheckDigit(d[:12]) == d[12] && cnpjCheckDigit(d[:13]) == d[13]
}

func cnpjCheckDigit(digits string) byte {
	sum := 0
	weight := len(digits) - 7
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * weight
		weight--
		if weight < 2 {
			weight = 9
		}
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + 11 - r)
}

// FormatCNPJ renders a valid CNPJ as NN.NNN.NNN/NNNN-NN.
func FormatCNPJ(s string) string {
	d := CNPJDigits(s)
	if len(d) != 14 {
		return s
	}
	return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
}

// ValidateCNPJ checks a required CNPJ field.
func ValidateCNPJ(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
		return
	}
	if !ValidCNPJ(value) {
		ve.Add(field, "is not a valid CNPJ")
	}
}
