package normalizer

import (
	"bytes"
	"strings"
)

// Format is an image container detected from magic bytes.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWEBP    Format = "webp"
	FormatAVIF    Format = "avif"
	FormatSVG     Format = "svg"
	FormatUnknown Format = ""
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Sniff detects the image format from the leading bytes of data.
func Sniff(data []byte) Format {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}

	switch {
	case len(head) > 3 && head[0] == 0xff && head[1] == 0xd8 && head[2] == 0xff:
		return FormatJPEG
	case bytes.HasPrefix(head, pngMagic):
		return FormatPNG
	case bytes.HasPrefix(head, []byte("GIF87a")), bytes.HasPrefix(head, []byte("GIF89a")):
		return FormatGIF
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return FormatWEBP
	case len(head) >= 12 && string(head[4:8]) == "ftyp" && bytes.Contains(head[8:], []byte("avif")):
		return FormatAVIF
	}

	trimmed := strings.TrimSpace(string(head))
	if strings.HasPrefix(trimmed, "<svg") || strings.HasPrefix(trimmed, "<?xml") {
		return FormatSVG
	}
	return FormatUnknown
}

// Supported reports whether the normalizer can decode f.
func (f Format) Supported() bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatGIF, FormatWEBP:
		return true
	default:
		return false
	}
}
