package sanitize

import (
	"regexp"
	"strconv"
)

// Rules returns the built-in detectors in the order they are applied.
func Rules() []Detector {
	return []Detector{
		pattern{label: "EMAIL", re: emailRe},
		pattern{label: "CARD", re: cardRe, valid: luhn},
		pattern{label: "PHONE", re: phoneRe},
		pattern{label: "IP", re: ipv4Re, valid: octets},
	}
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
	cardRe  = regexp.MustCompile(`\d(?:[ \-]?\d){12,18}`)
	phoneRe = regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?(?:\(\d{3}\)|\d{3})[ .\-]?\d{3}[ .\-]?\d{4}`)
	ipv4Re  = regexp.MustCompile(`(?:\d{1,3}\.){3}\d{1,3}`)
)

// pattern is a regexp detector with an optional post-match check.
type pattern struct {
	label string
	re    *regexp.Regexp
	valid func(string) bool
}

func (p pattern) Detect(text string) []Span {
	var out []Span
	for _, loc := range p.re.FindAllStringIndex(text, -1) {
		if p.valid != nil && !p.valid(text[loc[0]:loc[1]]) {
			continue
		}
		out = append(out, Span{Start: loc[0], End: loc[1], Label: p.label})
	}
	return out
}

// luhn reports whether the digits in s pass the Luhn checksum.
func luhn(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}

func octets(s string) bool {
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != '.' {
			continue
		}
		v, err := strconv.Atoi(s[start:i])
		if err != nil || v > 255 {
			return false
		}
		start = i + 1
	}
	return true
}
