package contact

import (
	"errors"
	"fmt"

	"github.com/entrhq/inreach/pkg/browser"
	"github.com/entrhq/inreach/pkg/types"
)

// ErrNoAddress means the composer has no deliverable address for this person
// and none could be supplied.
var ErrNoAddress = errors.New("no recipient channel")

// Channel is the composer send channel.
type Channel string

const (
	ChannelPlatform Channel = "platform"
	ChannelEmail    Channel = "email"
)

// Selectors locate the composer's channel controls.
type Selectors struct {
	EmailMode     string // present when the composer is already in email mode
	ChannelToggle string // switches the composer to email
	NoAddress     string // notice shown when the site has no address on file
	Recipient     string // address input offered alongside the notice
}

// ChannelSelector puts the composer on the right channel for a row.
type ChannelSelector struct {
	selectors Selectors
}

// NewChannelSelector creates a ChannelSelector.
func NewChannelSelector(selectors Selectors) *ChannelSelector {
	return &ChannelSelector{selectors: selectors}
}

// Select inspects the open composer and switches it to email when an address
// is known or derivable. It returns ErrNoAddress when the switch leaves the
// composer without a recipient, so the caller must not send on that row.
func (s *ChannelSelector) Select(page browser.Page, row types.ProfileRow) (Channel, error) {
	inEmail, err := s.exists(page, s.selectors.EmailMode)
	if err != nil {
		return "", err
	}

	address := Address(row)
	if !inEmail {
		if address == "" {
			return ChannelPlatform, nil
		}
		hasToggle, err := s.exists(page, s.selectors.ChannelToggle)
		if err != nil {
			return "", err
		}
		if !hasToggle {
			return ChannelPlatform, nil
		}
		if err := page.Click(browser.ClickOptions{Selector: s.selectors.ChannelToggle}); err != nil {
			return "", fmt.Errorf("switch to email: %w", err)
		}
	}

	noAddress, err := s.exists(page, s.selectors.NoAddress)
	if err != nil {
		return "", err
	}
	if !noAddress {
		return ChannelEmail, nil
	}

	hasInput, err := s.exists(page, s.selectors.Recipient)
	if err != nil {
		return "", err
	}
	if address == "" || !hasInput {
		return "", ErrNoAddress
	}
	if err := page.Fill(browser.FillOptions{Selector: s.selectors.Recipient, Value: address}); err != nil {
		return "", fmt.Errorf("inject address: %w", err)
	}
	return ChannelEmail, nil
}

func (s *ChannelSelector) exists(page browser.Page, selector string) (bool, error) {
	if selector == "" {
		return false, nil
	}
	return page.Exists(selector)
}
