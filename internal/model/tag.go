package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AssociationKind is the reserved prefix of an association tag.
type AssociationKind string

const (
	AssocCustomer AssociationKind = "customer"
	AssocMessage  AssociationKind = "sms"
	AssocProvider AssociationKind = "solapi"
	AssocVisit    AssociationKind = "visit"
)

var associationKinds = []AssociationKind{AssocCustomer, AssocMessage, AssocProvider, AssocVisit}

var ErrMalformedTag = errors.New("malformed association tag")

// Association is a typed many-to-many link stored as a plain tag string.
// Construct it with CustomerTag, MessageTag, ProviderTag or VisitTag.
type Association struct {
	kind  AssociationKind
	value string
}

func CustomerTag(id string) (Association, error) {
	return newAssociation(AssocCustomer, id)
}

func MessageTag(id string) (Association, error) {
	return newAssociation(AssocMessage, id)
}

func ProviderTag(id string) (Association, error) {
	return newAssociation(AssocProvider, id)
}

// VisitTag accepts YYYY-MM-DD or YYYY.MM.DD and always stores YYYY-MM-DD.
func VisitTag(date string) (Association, error) {
	d := strings.ReplaceAll(strings.TrimSpace(date), ".", "-")
	if _, err := time.Parse("2006-01-02", d); err != nil {
		return Association{}, fmt.Errorf("%w: visit date %q", ErrMalformedTag, date)
	}
	return Association{kind: AssocVisit, value: d}, nil
}

func newAssociation(kind AssociationKind, value string) (Association, error) {
	v := strings.TrimSpace(value)
	if v == "" || strings.ContainsAny(v, " \t\n,{}\"") {
		return Association{}, fmt.Errorf("%w: %s id %q", ErrMalformedTag, kind, value)
	}
	return Association{kind: kind, value: v}, nil
}

func (a Association) Kind() AssociationKind { return a.kind }
func (a Association) Value() string         { return a.value }
func (a Association) IsZero() bool          { return a.kind == "" }

// String returns the stored tag form, e.g. customer-42.
func (a Association) String() string {
	return string(a.kind) + "-" + a.value
}

// ParseAssociation reverses String. Tags outside the reserved grammar
// (classification tags like "survey") return ErrMalformedTag.
func ParseAssociation(tag string) (Association, error) {
	for _, k := range associationKinds {
		prefix := string(k) + "-"
		if !strings.HasPrefix(tag, prefix) {
			continue
		}
		value := strings.TrimPrefix(tag, prefix)
		if k == AssocVisit {
			return VisitTag(value)
		}
		return newAssociation(k, value)
	}
	return Association{}, fmt.Errorf("%w: %q", ErrMalformedTag, tag)
}

// IsAssociation reports whether tag uses one of the reserved prefixes.
func IsAssociation(tag string) bool {
	_, err := ParseAssociation(tag)
	return err == nil
}
