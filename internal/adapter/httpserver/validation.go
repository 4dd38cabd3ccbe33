package httpserver

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/laptop-assistant/pkg/textx"
)

// MaxMessageLen caps a single chat message after sanitization.
const MaxMessageLen = 4000

var sessionIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidSessionID reports whether id is safe to use as a session key.
func ValidSessionID(id string) bool { return sessionIDRe.MatchString(id) }

// SanitizeMessage cleans a chat message for the conversation and caps it
// at MaxMessageLen runes.
func SanitizeMessage(input string) string { return textx.SanitizeText(input, MaxMessageLen) }

// SanitizeRequestID drops an inbound X-Request-Id that could pollute logs.
func SanitizeRequestID(id string) string {
	if ValidSessionID(id) {
		return id
	}
	return ""
}

func registerValidations(v *validator.Validate) {
	_ = v.RegisterValidation("sessionid", func(fl validator.FieldLevel) bool {
		return ValidSessionID(fl.Field().String())
	})
}

// validationDetails flattens validator errors into field -> tag.
func validationDetails(err error) map[string]string {
	out := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return out
}
