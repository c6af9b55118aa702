// Package view renders the recorder page from a session state.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/metavoice/voicestudio/internal/models"
	"github.com/metavoice/voicestudio/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// SpeakerOption is one entry of the speaker multi-select.
type SpeakerOption struct {
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// ResultView is one playable converted clip.
type ResultView struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Page is everything the recorder page shows. It is a pure function of the
// session state.
type Page struct {
	Recording    bool   `json:"recording"`
	Finalizing   bool   `json:"finalizing"`
	ToggleLabel  string `json:"toggle_label"`
	Timer        string `json:"timer"`
	PlaybackURL  string `json:"playback_url,omitempty"`
	CaptureError string `json:"capture_error,omitempty"`

	Speakers []SpeakerOption `json:"speakers"`

	ConvertEnabled bool         `json:"convert_enabled"`
	Converting     bool         `json:"converting"`
	ConvertError   string       `json:"convert_error,omitempty"`
	Results        []ResultView `json:"results"`
}

// Build derives the page from state. playbackURL maps the held clip to a URL
// the browser can play.
func Build(s session.State, playbackURL func(models.BlobRef) string) Page {
	p := Page{
		Recording:      s.Recording,
		Finalizing:     s.Finalizing,
		ToggleLabel:    "Record",
		Timer:          s.ElapsedText(),
		ConvertEnabled: s.ConvertEnabled(),
		Converting:     s.Conversion == models.ConversionInFlight,
		ConvertError:   s.ConvertError,
		Speakers:       make([]SpeakerOption, 0, len(models.Speakers)),
		Results:        make([]ResultView, 0, len(s.Results)),
	}
	if s.Recording {
		p.ToggleLabel = "Stop"
	}

	// Error text takes the place of the playback control
	if s.CaptureError != "" {
		p.CaptureError = s.CaptureError
	} else if s.Blob != nil && playbackURL != nil {
		p.PlaybackURL = playbackURL(*s.Blob)
	}

	selected := make(map[models.Speaker]bool, len(s.Speakers))
	for _, sp := range s.Speakers {
		selected[sp] = true
	}
	for _, sp := range models.Speakers {
		p.Speakers = append(p.Speakers, SpeakerOption{Name: string(sp), Selected: selected[sp]})
	}

	for _, r := range s.Results {
		p.Results = append(p.Results, ResultView{
			Label: ResultLabel(r.Speaker),
			URL:   r.URL,
		})
	}

	return p
}

// ResultLabel is the heading shown above a converted clip.
func ResultLabel(speaker string) string {
	return "Mode - " + speaker
}

// Render writes the full HTML page.
func Render(w io.Writer, p Page) error {
	if err := pageTemplate.Execute(w, p); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}
