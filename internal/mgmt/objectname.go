package mgmt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DeploymentDomain is the management domain deployments are published under.
const DeploymentDomain = "jboss.as"

var ErrMalformedName = errors.New("malformed object name")

type property struct {
	key   string
	value string
}

// ObjectName addresses a resource in the management namespace, written as
// "domain:key=value[,key=value...]".
type ObjectName struct {
	domain string
	props  []property
}

// ParseObjectName validates s and returns the parsed name. Wildcards are not
// accepted because names here always address a single resource.
func ParseObjectName(s string) (ObjectName, error) {
	domain, rest, ok := strings.Cut(s, ":")
	if !ok {
		return ObjectName{}, fmt.Errorf("%w: %q has no domain separator", ErrMalformedName, s)
	}
	if domain == "" {
		return ObjectName{}, fmt.Errorf("%w: %q has an empty domain", ErrMalformedName, s)
	}
	if strings.ContainsAny(domain, "*?\n") {
		return ObjectName{}, fmt.Errorf("%w: invalid character in domain %q", ErrMalformedName, domain)
	}
	if rest == "" {
		return ObjectName{}, fmt.Errorf("%w: %q has no key properties", ErrMalformedName, s)
	}

	on := ObjectName{domain: domain}
	seen := make(map[string]struct{})
	for _, pair := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return ObjectName{}, fmt.Errorf("%w: key property %q lacks '='", ErrMalformedName, pair)
		}
		if k == "" {
			return ObjectName{}, fmt.Errorf("%w: empty key in %q", ErrMalformedName, s)
		}
		if v == "" {
			return ObjectName{}, fmt.Errorf("%w: empty value for key %q", ErrMalformedName, k)
		}
		if strings.ContainsAny(k, ":=*?\n") || strings.ContainsAny(v, ":=*?\n") {
			return ObjectName{}, fmt.Errorf("%w: invalid character in %q", ErrMalformedName, pair)
		}
		if _, dup := seen[k]; dup {
			return ObjectName{}, fmt.Errorf("%w: duplicate key %q", ErrMalformedName, k)
		}
		seen[k] = struct{}{}
		on.props = append(on.props, property{key: k, value: v})
	}
	return on, nil
}

// DeploymentName returns the object name of the named deployment.
func DeploymentName(deployment string) string {
	return DeploymentDomain + ":deployment=" + deployment
}

func (o ObjectName) Domain() string { return o.domain }

// Property returns the value of key, or "" when absent.
func (o ObjectName) Property(key string) string {
	for _, p := range o.props {
		if p.key == key {
			return p.value
		}
	}
	return ""
}

// String returns the name with key properties in the order they were given.
func (o ObjectName) String() string {
	var b strings.Builder
	b.WriteString(o.domain)
	b.WriteByte(':')
	for i, p := range o.props {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.value)
	}
	return b.String()
}

// Canonical returns the name with key properties sorted by key. Two names
// addressing the same resource have the same canonical form.
func (o ObjectName) Canonical() string {
	sorted := make([]property, len(o.props))
	copy(sorted, o.props)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].key < sorted[j].key })
	return ObjectName{domain: o.domain, props: sorted}.String()
}
