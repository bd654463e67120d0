package content

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/kalambet/coffey/internal/record"
)

// extractFileInfo decodes image dimensions and format. WebP has no
// stdlib decoder, so its dimensions stay zero; the host re-derives them
// anyway.
func extractFileInfo(data []byte, contentType string) record.ImageFileInfo {
	info := record.ImageFileInfo{
		Size:     len(data),
		MimeType: contentType,
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return info
	}
	info.Width = cfg.Width
	info.Height = cfg.Height
	info.Format = format
	return info
}

// extractExif pulls the interesting EXIF fields. Any decode problem
// returns nil; most PNGs and screenshots have no EXIF at all.
func extractExif(data []byte) *record.ImageExif {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	out := &record.ImageExif{
		Make:      exifString(x, exif.Make),
		Model:     exifString(x, exif.Model),
		LensModel: exifString(x, exif.LensModel),
		Software:  exifString(x, exif.Software),
	}

	if t, err := x.DateTime(); err == nil {
		out.DateTimeOriginal = t.UTC().Format(time.RFC3339)
	}
	if lat, lng, err := x.LatLong(); err == nil {
		out.Latitude = &lat
		out.Longitude = &lng
	}
	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil {
		if iso, err := tag.Int(0); err == nil {
			out.ISO = &iso
		}
	}
	out.FNumber = exifRatio(x, exif.FNumber)
	out.ExposureTime = exifRatio(x, exif.ExposureTime)
	out.FocalLengthMM = exifRatio(x, exif.FocalLength)

	if *out == (record.ImageExif{}) {
		return nil
	}
	return out
}

func exifString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}

func exifRatio(x *exif.Exif, name exif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}
	v := float64(num) / float64(den)
	return &v
}
