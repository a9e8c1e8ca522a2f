// Package models defines the domain types threaded through the ingest
// pipeline: the extraction summary and the note payload.
package models

// Derived holds optional text channels produced by extraction backends
// after the initial pass (article body, PDF text, OCR, transcript).
type Derived struct {
	URLText string `json:"url_text"`
	PDFText string `json:"pdf_text"`
	OCRText string `json:"ocr_text"`
	ASRText string `json:"asr_text"`
}

// Summary is the extraction result for one input. It is immutable once
// produced; only derived channels may be added as background extraction
// completes, via WithDerived.
type Summary struct {
	RawText string            `json:"raw_text"`
	URLs    []string          `json:"urls"`
	Meta    map[string]string `json:"meta"`
	Derived Derived           `json:"derived"`
}

// Empty reports whether the summary carries no usable content at all:
// no text, no URLs, no file reference, no derived channel.
func (s *Summary) Empty() bool {
	return s.RawText == "" &&
		len(s.URLs) == 0 &&
		len(s.Meta) == 0 &&
		s.Derived == Derived{}
}

// WithDerived returns a copy of the summary with one derived channel set.
// Unknown channel names return the copy unchanged.
func (s *Summary) WithDerived(channel, text string) *Summary {
	out := *s
	out.URLs = append([]string(nil), s.URLs...)
	if len(s.Meta) > 0 {
		out.Meta = make(map[string]string, len(s.Meta))
		for k, v := range s.Meta {
			out.Meta[k] = v
		}
	}
	switch channel {
	case "url_text":
		out.Derived.URLText = text
	case "pdf_text":
		out.Derived.PDFText = text
	case "ocr_text":
		out.Derived.OCRText = text
	case "asr_text":
		out.Derived.ASRText = text
	}
	return &out
}

// DerivedChannels lists the channel names accepted by WithDerived.
var DerivedChannels = []string{"url_text", "pdf_text", "ocr_text", "asr_text"}

// ValidDerivedChannel reports whether name is a known derived channel.
func ValidDerivedChannel(name string) bool {
	for _, c := range DerivedChannels {
		if c == name {
			return true
		}
	}
	return false
}
