// Package moderation проверяет тексты мероприятий на контакты в обход площадки.
package moderation

import (
	"regexp"
	"strings"
)

type ViolationType string

const (
	ViolationPhone   ViolationType = "phone"
	ViolationLink    ViolationType = "link"
	ViolationContact ViolationType = "contact"
)

type Violation struct {
	Type  ViolationType
	Match string
}

func (v *Violation) Error() string {
	return string(v.Type) + ": " + v.Match
}

var (
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\+7|8)[\s\-\(]*\d{3}[\s\-\)]*\d{3}[\s\-]*\d{2}[\s\-]*\d{2}`),
		regexp.MustCompile(`\b\d{10,11}\b`),
	}
	digitPattern  = regexp.MustCompile(`\d`)
	urlPattern    = regexp.MustCompile(`(?i)https?://[^\s]+`)
	domainPattern = regexp.MustCompile(`(?i)\b[a-z0-9][-a-z0-9]*\.(ru|com|net|org|io|me|cc|ly|gl|su|рф|info|biz|xyz|online|site|shop|store)\b[^\s]*`)
	handlePattern = regexp.MustCompile(`(?i)t\.me/[a-zA-Z0-9_]+|(^|\s)@[a-zA-Z][a-zA-Z0-9_]{4,}`)
)

// Detector хранит белый список доменов, заданный конфигурацией.
type Detector struct {
	allowed []string
}

func New(allowedDomains []string) *Detector {
	allowed := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allowed = append(allowed, d)
		}
	}
	return &Detector{allowed: allowed}
}

// Check возвращает первое нарушение или nil.
func (d *Detector) Check(text string) *Violation {
	lower := strings.ToLower(text)

	for _, p := range phonePatterns {
		if match := p.FindString(text); match != "" && len(digitPattern.FindAllString(match, -1)) >= 10 {
			return &Violation{Type: ViolationPhone, Match: match}
		}
	}

	for _, pattern := range []*regexp.Regexp{urlPattern, domainPattern} {
		for _, match := range pattern.FindAllString(lower, -1) {
			if !d.allowedURL(match) {
				return &Violation{Type: ViolationLink, Match: match}
			}
		}
	}

	if match := handlePattern.FindString(lower); match != "" && !d.allowedURL("t.me") {
		return &Violation{Type: ViolationContact, Match: strings.TrimSpace(match)}
	}
	return nil
}

func (d *Detector) allowedURL(url string) bool {
	for _, domain := range d.allowed {
		if strings.Contains(url, domain) {
			return true
		}
	}
	return false
}
