package chat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"prompt-enhancer/internal/imaging"
)

const attachmentHeader = "Attached file(s):"

// Attachment is a user-supplied file. It only lives for the turn it came with.
type Attachment struct {
	Name string
	Data []byte
}

type AttachmentReport struct {
	Name         string `json:"name"`
	OriginalSize int    `json:"original_size"`
	Size         int    `json:"size"`
	MimeType     string `json:"mime_type,omitempty"`
	// Quality is the JPEG quality used when the file had to be recompressed.
	Quality    int  `json:"quality,omitempty"`
	Compressed bool `json:"compressed"`
	Oversize   bool `json:"oversize,omitempty"`
	Skipped    bool `json:"skipped,omitempty"`
	// Forwarded is set when the full image travels with the turn as an image part.
	Forwarded bool   `json:"forwarded,omitempty"`
	Error     string `json:"error,omitempty"`
}

// visionTypes are the image formats the chat completions API accepts inline.
var visionTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

type normalized struct {
	block   string
	images  []string
	reports []AttachmentReport
}

func (s *Service) normalizeAttachments(atts []Attachment) normalized {
	var out normalized
	if len(atts) == 0 {
		return out
	}

	opts := imaging.Options{
		MaxBytes:     s.cfg.ImageMaxBytes,
		MinQuality:   s.cfg.ImageMinQuality,
		QualityStep:  s.cfg.ImageQualityStep,
		StartQuality: s.cfg.ImageStartQuality,
	}

	lines := make([]string, 0, len(atts))
	for _, att := range atts {
		report, payload := normalizeAttachment(att, opts)

		if report.Skipped {
			out.reports = append(out.reports, report)
			log.Printf("skipping attachment %q: %s", att.Name, report.Error)
			lines = append(lines, fmt.Sprintf(
				"File name: %s, size: %d bytes (skipped: %s)",
				report.Name, report.OriginalSize, report.Error,
			))
			continue
		}

		dataURL := "data:" + report.MimeType + ";base64," + base64.StdEncoding.EncodeToString(payload)
		line := fmt.Sprintf(
			"File name: %s, size: %d bytes, data: %s",
			report.Name, report.Size, preview(dataURL, s.cfg.AttachmentPreviewChars),
		)
		if report.Compressed {
			line += fmt.Sprintf(" (recompressed from %d bytes at quality %d)", report.OriginalSize, report.Quality)
		}
		lines = append(lines, line)

		if s.cfg.ForwardImages && visionTypes[report.MimeType] {
			if report.Compressed || imaging.Check(payload) == nil {
				out.images = append(out.images, dataURL)
				report.Forwarded = true
			} else {
				log.Printf("not forwarding attachment %q: sniffed as %s but does not decode", att.Name, report.MimeType)
				report.Error = "not a decodable image, sent as text only"
			}
		}
		out.reports = append(out.reports, report)
	}

	out.block = attachmentHeader + "\n" + strings.Join(lines, "\n")
	return out
}

func normalizeAttachment(att Attachment, opts imaging.Options) (AttachmentReport, []byte) {
	report := AttachmentReport{
		Name:         attachmentName(att.Name),
		OriginalSize: len(att.Data),
		Size:         len(att.Data),
		MimeType:     detectMimeType(att.Data),
	}
	if len(att.Data) <= opts.MaxBytes {
		return report, att.Data
	}

	res, err := imaging.Compress(att.Data, opts)
	if err != nil {
		report.Skipped = true
		report.Size = 0
		if errors.Is(err, imaging.ErrDecode) {
			report.Error = "over the size limit and not a decodable image"
		} else {
			report.Error = err.Error()
		}
		return report, nil
	}

	report.Size = len(res.Data)
	report.MimeType = "image/jpeg"
	report.Quality = res.Quality
	report.Compressed = true
	report.Oversize = res.Oversize(opts.MaxBytes)
	return report, res.Data
}

func detectMimeType(data []byte) string {
	mimeType, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return strings.TrimSpace(mimeType)
}

func attachmentName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unnamed"
	}
	return name
}

func preview(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... [truncated, %d chars total]", s[:n], len(s))
}
