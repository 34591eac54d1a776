package eventbus

import (
	"fmt"
	"strings"
)

const (
	// SubjectPrefix is the canonical prefix for order events.
	SubjectPrefix = "fulfillment.v1"
)

// Domain identifies order event domains.
type Domain string

const (
	DomainSaga         Domain = "saga"
	DomainStep         Domain = "step"
	DomainCompensation Domain = "compensation"
)

// Subject returns the canonical subject for an event in a domain.
func Subject(domain Domain, shardKey, eventType string) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, sanitizeSegment(string(domain)), sanitizeSegment(shardKey), sanitizeSegment(eventType))
}

// DomainWildcardSubject returns canonical wildcard subject for a domain.
func DomainWildcardSubject(domain Domain) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, sanitizeSegment(string(domain)))
}

// AllSubjects matches every order event.
func AllSubjects() string {
	return SubjectPrefix + ".>"
}

// sanitizeSegment keeps a value inside one subject segment.
func sanitizeSegment(value string) string {
	if value == "" {
		return "unknown"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(value)
}
