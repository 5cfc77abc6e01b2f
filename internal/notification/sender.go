package notification

import (
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/privacy"
)

// Sender delivers one message to every configured service. It matches
// the shoutrrr router so tests can substitute it.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// NewShoutrrrSender builds a single router for all urls. Errors never
// contain the service URLs since those carry tokens.
func NewShoutrrrSender(urls []string, timeout time.Duration) (Sender, error) {
	urls = slices.DeleteFunc(slices.Clone(urls), func(u string) bool {
		return strings.TrimSpace(u) == ""
	})
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.New(privacy.WrapError(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("services", len(urls)).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return sender, nil
}

// providerName labels metrics: the service scheme for a single URL,
// "shoutrrr" for several.
func providerName(urls []string) string {
	if len(urls) == 1 {
		return privacy.ServiceName(urls[0])
	}
	return "shoutrrr"
}

// Send delivers m through s. Per service errors are folded into one
// sanitized error.
func Send(s Sender, m Message) error {
	params := stypes.Params{}
	if m.Title != "" {
		params.SetTitle(m.Title)
	}

	var failed []error
	for _, err := range s.Send(m.Body, &params) {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return errors.New(privacy.WrapError(errors.Join(failed...))).
		Component("notification").
		Category(errors.CategoryNotification).
		Context("event", string(m.Event)).
		Context("failed_services", len(failed)).
		Build()
}
