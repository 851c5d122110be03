// Package notify renders the recovery messages sent to users, supervisors and
// MFA devices in the caller's language.
package notify

import (
	"embed"
	"errors"
	"html/template"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var translationFS embed.FS

var translationFiles = []string{
	"translations/active.en.toml",
	"translations/active.fr.toml",
}

// ErrUnknownAudience is returned by Render for an unsupported audience.
var ErrUnknownAudience = errors.New("notify: unknown audience")

// Audience selects the message variant.
type Audience int

const (
	// AudienceUser is the account owner's primary address.
	AudienceUser Audience = iota
	// AudienceSupervisor is the supervisor address; the owner is copied.
	AudienceSupervisor
	// AudienceDevice is a non-email MFA device and only gets a short text.
	AudienceDevice
)

// Data is the template input of a message.
type Data struct {
	Name string
	Code string
	Link string
	TTL  time.Duration
}

// Message is a rendered notification. HTML is empty for AudienceDevice.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

type Renderer struct {
	bundle  *i18n.Bundle
	matcher language.Matcher
}

// NewRenderer loads the embedded translations. English is the fallback.
func NewRenderer() (*Renderer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range translationFiles {
		if _, err := bundle.LoadMessageFileFS(translationFS, file); err != nil {
			return nil, err
		}
	}

	return &Renderer{
		bundle:  bundle,
		matcher: language.NewMatcher(bundle.LanguageTags()),
	}, nil
}

// MatchLanguage returns the best supported tag for an Accept-Language value.
func (r *Renderer) MatchLanguage(acceptLanguage string) language.Tag {
	tag, _ := language.MatchStrings(r.matcher, acceptLanguage)
	base, _ := tag.Base()
	return language.Make(base.String())
}

// Render builds the message for audience in the best match for locale.
func (r *Renderer) Render(locale string, audience Audience, data Data) (Message, error) {
	loc := i18n.NewLocalizer(r.bundle, r.MatchLanguage(locale).String(), "en")
	vars := map[string]any{
		"Name":    data.Name,
		"Code":    data.Code,
		"Link":    data.Link,
		"Minutes": minutes(data.TTL),
	}

	switch audience {
	case AudienceUser:
		var lines []string
		for _, id := range []string{"ResetGreeting", "ResetBody", "ResetLink", "ResetIgnore"} {
			if id == "ResetLink" && data.Link == "" {
				continue
			}
			line, err := localize(loc, id, vars)
			if err != nil {
				return Message{}, err
			}
			lines = append(lines, line)
		}
		subject, err := localize(loc, "ResetSubject", vars)
		if err != nil {
			return Message{}, err
		}
		return Message{Subject: subject, Text: strings.Join(lines, "\n\n"), HTML: paragraphs(lines)}, nil

	case AudienceSupervisor:
		var lines []string
		for _, id := range []string{"SupervisorGreeting", "SupervisorBody", "SupervisorIgnore"} {
			line, err := localize(loc, id, vars)
			if err != nil {
				return Message{}, err
			}
			lines = append(lines, line)
		}
		subject, err := localize(loc, "SupervisorSubject", vars)
		if err != nil {
			return Message{}, err
		}
		return Message{Subject: subject, Text: strings.Join(lines, "\n\n"), HTML: paragraphs(lines)}, nil

	case AudienceDevice:
		text, err := localize(loc, "DeviceText", vars)
		if err != nil {
			return Message{}, err
		}
		return Message{Text: text}, nil
	}

	return Message{}, ErrUnknownAudience
}

func localize(loc *i18n.Localizer, id string, vars map[string]any) (string, error) {
	return loc.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: vars,
	})
}

func paragraphs(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString("<p>")
		b.WriteString(template.HTMLEscapeString(line))
		b.WriteString("</p>\n")
	}
	return b.String()
}

func minutes(d time.Duration) int {
	m := int(d.Round(time.Minute) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}
