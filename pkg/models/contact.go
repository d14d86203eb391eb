package models

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	MaxContactNameLength = 17
	UnknownContactName   = "Unknown"
	contactNameEllipsis  = "…"
)

var phoneNumberPattern = regexp.MustCompile(`^[+][0-9]{5,20}$`)

var phoneNumberSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// ContactEntry is one entry of the user's address book.
type ContactEntry struct {
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name"`
}

// NewContactEntry normalizes and validates a contact.
func NewContactEntry(phoneNumber string, name string) (ContactEntry, error) {
	phone, err := NormalizePhoneNumber(phoneNumber)
	if err != nil {
		return ContactEntry{}, err
	}
	return ContactEntry{
		PhoneNumber: phone,
		Name:        NormalizeContactName(name),
	}, nil
}

// NormalizePhoneNumber strips separators and checks the E.164-like form.
func NormalizePhoneNumber(phoneNumber string) (string, error) {
	phone := phoneNumberSeparators.Replace(strings.TrimSpace(phoneNumber))
	if !phoneNumberPattern.MatchString(phone) {
		return "", NewValidationError("phoneNumber", "%q must match %s", phoneNumber, phoneNumberPattern)
	}
	return phone, nil
}

// NormalizeContactName composes the name to NFC and truncates it to
// MaxContactNameLength runes followed by an ellipsis.
func NormalizeContactName(name string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return UnknownContactName
	}
	if utf8.RuneCountInString(name) <= MaxContactNameLength {
		return name
	}
	runes := []rune(name)
	return string(runes[:MaxContactNameLength]) + contactNameEllipsis
}

// UserInfo is what the portal knows about another user.
type UserInfo struct {
	UserID      string `json:"userId"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}
