package selector

import (
	"errors"
	"strings"
)

// ErrMethodUnavailable is returned when the requested channel is unknown or
// not eligible for the user.
var ErrMethodUnavailable = errors.New("recovery method unavailable")

// Kind mirrors the public recovery type values.
type Kind uint8

const (
	KindNone Kind = iota
	KindEmail
	KindSupervisor
	KindMFA
)

// Contact holds the directory-sourced addresses of a user.
type Contact struct {
	Email           string
	SupervisorEmail string
}

// Device is one registered MFA method.
type Device struct {
	ID       string
	Kind     string
	Value    string
	Verified bool
}

// Method is a resolved delivery target.
type Method struct {
	Kind        Kind
	ID          string
	DeviceKind  string
	Destination string
	Masked      string
}

// Eligible lists the channels the user can recover through, primary email
// first, then supervisor email, then verified MFA devices in registry order.
func Eligible(contact Contact, devices []Device) []Method {
	out := make([]Method, 0, 2+len(devices))

	if email := strings.TrimSpace(contact.Email); email != "" {
		out = append(out, Method{
			Kind:        KindEmail,
			DeviceKind:  "email",
			Destination: email,
			Masked:      MaskEmail(email),
		})
	}
	if supervisor := strings.TrimSpace(contact.SupervisorEmail); supervisor != "" {
		out = append(out, Method{
			Kind:        KindSupervisor,
			DeviceKind:  "email",
			Destination: supervisor,
			Masked:      MaskEmail(supervisor),
		})
	}
	for _, d := range devices {
		if !d.Verified || d.ID == "" || strings.TrimSpace(d.Value) == "" {
			continue
		}
		out = append(out, Method{
			Kind:        KindMFA,
			ID:          d.ID,
			DeviceKind:  d.Kind,
			Destination: d.Value,
			Masked:      maskDevice(d),
		})
	}

	return out
}

// Choose resolves kind/id to one eligible method.
func Choose(contact Contact, devices []Device, kind Kind, id string) (Method, error) {
	for _, m := range Eligible(contact, devices) {
		if m.Kind != kind {
			continue
		}
		if kind == KindMFA && m.ID != id {
			continue
		}
		return m, nil
	}
	return Method{}, ErrMethodUnavailable
}

// Default returns the first eligible method.
func Default(contact Contact, devices []Device) (Method, error) {
	methods := Eligible(contact, devices)
	if len(methods) == 0 {
		return Method{}, ErrMethodUnavailable
	}
	return methods[0], nil
}

func maskDevice(d Device) string {
	if d.Kind == "email" || strings.Contains(d.Value, "@") {
		return MaskEmail(d.Value)
	}
	return MaskValue(d.Value)
}
