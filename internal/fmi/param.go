package fmi

import "strings"

// ParamName recovers the short parameter identifier from an observedProperty href.
//
// FMI uses query-string style hrefs like:
//
//	https://opendata.fmi.fi/meta?observableProperty=observation&param=t2m&language=eng
//
// Path-style hrefs ending in the parameter name are also accepted.
func ParamName(href string) string {
	if _, after, ok := strings.Cut(href, "param="); ok {
		name, _, _ := strings.Cut(after, "&")
		return name
	}
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return ""
}
