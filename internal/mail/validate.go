package mail

import (
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"
)

const maxContentLength = 65600

// Validate returns one message per violated field rule, in field order.
func (r SendRequest) Validate(origin string) []string {
	var v []string
	switch {
	case strings.TrimSpace(r.Address) == "":
		v = append(v, "address: must not be blank")
	case !govalidator.IsEmail(r.Address):
		v = append(v, "address: must be a valid email address")
	}
	if strings.TrimSpace(r.Subject) == "" {
		v = append(v, "subject: must not be blank")
	}
	switch {
	case strings.TrimSpace(r.Content) == "":
		v = append(v, "content: must not be blank")
	case !govalidator.StringLength(r.Content, "1", strconv.Itoa(maxContentLength)):
		v = append(v, "content: size must be between 1 and "+strconv.Itoa(maxContentLength))
	}
	switch {
	case strings.TrimSpace(origin) == "":
		v = append(v, "origin: must not be blank")
	case !govalidator.IsEmail(origin):
		v = append(v, "origin: must be a valid email address")
	}
	return v
}
