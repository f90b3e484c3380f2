package imageproc

// imageproc validates uploaded images before they're allowed anywhere near
// storage. We sniff the real payload format rather than trusting the declared
// content type, and only jpeg/png/webp survive.

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"golang.org/x/image/webp"
)

// Kind determines where an upload is destined for, and prefixes its filename
type Kind string

const (
	KindVehicle Kind = "vehicle"
	KindLogo    Kind = "logo"
	KindFavicon Kind = "favicon"
	KindOGImage Kind = "og-image"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindVehicle, KindLogo, KindFavicon, KindOGImage:
		return Kind(s), nil
	}
	return "", fmt.Errorf("Unknown image kind %q", s)
}

const DefaultMaxBytes = 8 * 1024 * 1024
const maxPixelsPerSide = 8192

type Result struct {
	Data        []byte
	Filename    string
	ContentType string
}

type Processor struct {
	log      logs.Log
	MaxBytes int64
}

func NewProcessor(log logs.Log) *Processor {
	return &Processor{
		log:      log,
		MaxBytes: DefaultMaxBytes,
	}
}

// Process validates the payload and returns it with a generated filename.
// The declared type from the client plays no part in validation.
func (p *Processor) Process(data []byte, kind Kind) (*Result, error) {
	if int64(len(data)) > p.MaxBytes {
		return nil, fmt.Errorf("Image is too large (%v bytes, max %v)", len(data), p.MaxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("Image payload is empty")
	}

	sniffed := http.DetectContentType(data)
	var cfg image.Config
	var err error
	var ext string
	switch sniffed {
	case "image/jpeg":
		cfg, err = jpeg.DecodeConfig(bytes.NewReader(data))
		ext = "jpg"
	case "image/png":
		cfg, err = png.DecodeConfig(bytes.NewReader(data))
		ext = "png"
	case "image/webp":
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
		ext = "webp"
	default:
		return nil, fmt.Errorf("Payload is %v, but only jpeg, png, webp are allowed", sniffed)
	}
	if err != nil {
		return nil, fmt.Errorf("Payload claims to be %v, but does not decode: %w", sniffed, err)
	}
	if cfg.Width > maxPixelsPerSide || cfg.Height > maxPixelsPerSide {
		return nil, fmt.Errorf("Image dimensions %vx%v exceed the maximum of %v", cfg.Width, cfg.Height, maxPixelsPerSide)
	}

	return &Result{
		Data:        data,
		Filename:    fmt.Sprintf("%v-%v.%v", kind, uuid.New(), ext),
		ContentType: sniffed,
	}, nil
}
