package crm

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrTokenUnavailable  = errors.New("CRM token unavailable")
	ErrConfigUnavailable = errors.New("CRM configuration unavailable")
	ErrItemMissing       = errors.New("CRM item identifier missing")
	ErrInvalidLink       = errors.New("invalid CRM link")
)

// Error codes returned by the link endpoint.
const (
	CodeTokenUnavailable  = "CRM_TOKEN_UNAVAILABLE"
	CodeConfigUnavailable = "CRM_CONFIG_UNAVAILABLE"
	CodeItemMissing       = "CRM_ITEM_MISSING"
)

var lower = cases.Lower(language.Und)

// BuildLink returns the deep link for item into the CRM at base. The base is
// opaque; it is joined with "&" when it already carries a query.
func BuildLink(base, item, token string) (string, error) {
	if token == "" {
		return "", ErrTokenUnavailable
	}
	if strings.TrimSpace(base) == "" {
		return "", ErrConfigUnavailable
	}
	if strings.TrimSpace(item) == "" {
		return "", ErrItemMissing
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString(joiner(base))
	b.WriteString("token=")
	b.WriteString(Escape(token))
	b.WriteString("&cod_item=")
	b.WriteString(Escape(item))
	b.WriteString("&filter_cod=")
	b.WriteString(Escape(lower.String(item)))
	return b.String(), nil
}

func joiner(base string) string {
	switch {
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		return ""
	case strings.Contains(base, "?"):
		return "&"
	default:
		return "?"
	}
}

// Escape percent-encodes s for use as a query component. Spaces become %20.
func Escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// ErrorCode maps a link error to the code sent to the browser.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrTokenUnavailable):
		return CodeTokenUnavailable
	case errors.Is(err, ErrConfigUnavailable):
		return CodeConfigUnavailable
	case errors.Is(err, ErrItemMissing):
		return CodeItemMissing
	}
	return ""
}

var tokenParam = regexp.MustCompile(`token=([a-f0-9]+)`)

// ExtractToken pulls the session token out of a link copied from the CRM.
func ExtractToken(link string) (string, error) {
	m := tokenParam.FindStringSubmatch(link)
	if m == nil {
		return "", ErrInvalidLink
	}
	return m[1], nil
}

// ValidateBase checks a configured base URL. An empty base is allowed and
// leaves link building disabled.
func ValidateBase(base string) error {
	if base == "" {
		return nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("crm base url must be http or https")
	}
	if u.Host == "" {
		return errors.New("crm base url has no host")
	}
	return nil
}
