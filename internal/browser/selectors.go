package browser

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SelectorSet contains the CSS selectors the delivery flow needs for one
// chat web client.
type SelectorSet struct {
	URL string `yaml:"url"`

	// LoggedIn matches only when the chat list of an authenticated session
	// is rendered. Challenge lists markers of QR/verification interstitials.
	LoggedIn  string   `yaml:"loggedIn"`
	Challenge []string `yaml:"challenge"`
	// DismissPopup is clicked when the page is in an unexpected state
	// (modal dialogs, "use here" prompts).
	DismissPopup string `yaml:"dismissPopup"`

	SearchBox  string `yaml:"searchBox"`
	ResultRow  string `yaml:"resultRow"`
	ComposeBox string `yaml:"composeBox"`
	SendButton string `yaml:"sendButton"`

	AttachButton    string `yaml:"attachButton"`
	PhotosVideos    string `yaml:"photosVideos"`
	FileInput       string `yaml:"fileInput"`
	CaptionBox      string `yaml:"captionBox"`
	MediaSendButton string `yaml:"mediaSendButton"`

	// OutgoingMessage matches every message bubble sent by this account.
	OutgoingMessage string `yaml:"outgoingMessage"`
}

// WhatsAppSelectors returns the default selectors for WhatsApp Web.
func WhatsAppSelectors() SelectorSet {
	return SelectorSet{
		URL:      "https://web.whatsapp.com",
		LoggedIn: "#pane-side",
		Challenge: []string{
			"canvas[aria-label*='Scan']",
			"div[data-ref] canvas",
			"iframe[src*='captcha']",
		},
		DismissPopup: "div[role='dialog'] button",

		SearchBox:  "div[contenteditable='true'][data-tab='3']",
		ResultRow:  "#pane-side div[role='listitem']",
		ComposeBox: "footer div[contenteditable='true'][data-tab='10']",
		SendButton: "footer button[aria-label='Send']",

		AttachButton:    "footer button[title='Attach']",
		PhotosVideos:    "div[role='application'] li:has(input[accept*='image'])",
		FileInput:       "input[type='file'][accept*='image']",
		CaptionBox:      "div[contenteditable='true'][aria-label*='caption']",
		MediaSendButton: "div[role='button'][aria-label='Send']",

		OutgoingMessage: "#main div.message-out",
	}
}

// Validate reports selectors the delivery flow cannot run without.
func (s SelectorSet) Validate() error {
	required := map[string]string{
		"loggedIn":        s.LoggedIn,
		"searchBox":       s.SearchBox,
		"resultRow":       s.ResultRow,
		"composeBox":      s.ComposeBox,
		"sendButton":      s.SendButton,
		"attachButton":    s.AttachButton,
		"photosVideos":    s.PhotosVideos,
		"mediaSendButton": s.MediaSendButton,
		"outgoingMessage": s.OutgoingMessage,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("selector %s is empty", name)
		}
	}
	return nil
}

// LoadSelectors reads a YAML selector profile and layers it over the
// WhatsApp Web defaults. Fields absent from the file keep their default.
func LoadSelectors(path string) (SelectorSet, error) {
	sel := WhatsAppSelectors()
	if path == "" {
		return sel, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return sel, fmt.Errorf("read selector profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return sel, fmt.Errorf("parse selector profile %s: %w", path, err)
	}
	return sel, sel.Validate()
}

// ApplyOverrides replaces individual selectors by their YAML key name
// (e.g. "searchBox"). Unknown keys are returned as an error.
func (s *SelectorSet) ApplyOverrides(overrides map[string]string) error {
	fields := map[string]*string{
		"url":             &s.URL,
		"loggedIn":        &s.LoggedIn,
		"dismissPopup":    &s.DismissPopup,
		"searchBox":       &s.SearchBox,
		"resultRow":       &s.ResultRow,
		"composeBox":      &s.ComposeBox,
		"sendButton":      &s.SendButton,
		"attachButton":    &s.AttachButton,
		"photosVideos":    &s.PhotosVideos,
		"fileInput":       &s.FileInput,
		"captionBox":      &s.CaptionBox,
		"mediaSendButton": &s.MediaSendButton,
		"outgoingMessage": &s.OutgoingMessage,
	}
	for k, v := range overrides {
		if v == "" {
			continue
		}
		if k == "challenge" {
			s.Challenge = []string{v}
			continue
		}
		p, ok := fields[k]
		if !ok {
			return fmt.Errorf("unknown selector %q", k)
		}
		*p = v
	}
	return nil
}
