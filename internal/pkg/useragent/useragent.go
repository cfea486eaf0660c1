// Package useragent classifies raw User-Agent strings into the device class,
// browser and operating system recorded on visitor sessions. The rule tables
// live in an embedded YAML file and use PCRE patterns (negative lookaheads
// distinguish Android tablets from phones, which the standard regexp engine
// cannot express).
package useragent

import (
	_ "embed"
	"fmt"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device classes reported on sessions.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"

	Unknown = "unknown"
)

// UserAgent is the classification result for one raw UA string.
type UserAgent struct {
	UserAgent string
	Browser   string
	OS        string
	Device    string
	Mobile    bool
	Tablet    bool
	Desktop   bool
	Bot       bool
}

//go:embed rules.yml
var rulesYAML []byte

type namedRule struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type matchRule struct {
	Regex string `yaml:"regex"`
}

type ruleSet struct {
	Bots     []namedRule `yaml:"bots"`
	Browsers []namedRule `yaml:"browsers"`
	OSs      []namedRule `yaml:"oss"`
	Tablets  []matchRule `yaml:"tablets"`
	Mobiles  []matchRule `yaml:"mobiles"`
}

type compiledRule struct {
	regex *pcre.Regexp
	name  string
}

type classifier struct {
	bots     []compiledRule
	browsers []compiledRule
	oss      []compiledRule
	tablets  []compiledRule
	mobiles  []compiledRule
}

var (
	instance *classifier
	once     sync.Once
	initErr  error
)

func compileRules(named []namedRule, plain []matchRule) ([]compiledRule, error) {
	var rules []compiledRule
	for _, r := range named {
		regex, err := pcre.Compile(r.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", r.Regex, err)
		}
		rules = append(rules, compiledRule{regex: regex, name: r.Name})
	}
	for _, r := range plain {
		regex, err := pcre.Compile(r.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", r.Regex, err)
		}
		rules = append(rules, compiledRule{regex: regex})
	}
	return rules, nil
}

func getClassifier() (*classifier, error) {
	once.Do(func() {
		var rs ruleSet
		if err := yaml.Unmarshal(rulesYAML, &rs); err != nil {
			initErr = fmt.Errorf("failed to parse UA rules: %w", err)
			return
		}

		c := &classifier{}
		if c.bots, initErr = compileRules(rs.Bots, nil); initErr != nil {
			return
		}
		if c.browsers, initErr = compileRules(rs.Browsers, nil); initErr != nil {
			return
		}
		if c.oss, initErr = compileRules(rs.OSs, nil); initErr != nil {
			return
		}
		if c.tablets, initErr = compileRules(nil, rs.Tablets); initErr != nil {
			return
		}
		if c.mobiles, initErr = compileRules(nil, rs.Mobiles); initErr != nil {
			return
		}
		instance = c
	})
	return instance, initErr
}

func firstMatch(rules []compiledRule, ua string) (string, bool) {
	for _, rule := range rules {
		if rule.regex.MatchString(ua) {
			return rule.name, true
		}
	}
	return "", false
}

// Parse classifies a raw User-Agent string. An empty or unmatched string
// yields the unknown values rather than an error.
func Parse(raw string) UserAgent {
	result := UserAgent{
		UserAgent: raw,
		Browser:   Unknown,
		OS:        Unknown,
		Device:    Unknown,
	}
	if raw == "" {
		return result
	}

	c, err := getClassifier()
	if err != nil {
		return result
	}

	if _, ok := firstMatch(c.bots, raw); ok {
		result.Bot = true
		return result
	}

	if browser, ok := firstMatch(c.browsers, raw); ok {
		result.Browser = browser
	}
	if os, ok := firstMatch(c.oss, raw); ok {
		result.OS = os
	}

	switch {
	case matchesAny(c.tablets, raw):
		result.Tablet = true
		result.Device = DeviceTablet
	case matchesAny(c.mobiles, raw):
		result.Mobile = true
		result.Device = DeviceMobile
	default:
		result.Desktop = true
		result.Device = DeviceDesktop
	}

	return result
}

func matchesAny(rules []compiledRule, ua string) bool {
	_, ok := firstMatch(rules, ua)
	return ok
}
