package record

// ImageFileInfo describes the decoded image file itself.
type ImageFileInfo struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int    `json:"size"`
	MimeType string `json:"mime_type"`
	Format   string `json:"format,omitempty"`
}

// ImageExif is the subset of EXIF fields worth keeping. All fields are
// optional; cameras and editors disagree about what they write.
type ImageExif struct {
	Make             string   `json:"make,omitempty"`
	Model            string   `json:"model,omitempty"`
	LensModel        string   `json:"lens_model,omitempty"`
	DateTimeOriginal string   `json:"date_time_original,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	ISO              *int     `json:"iso,omitempty"`
	FNumber          *float64 `json:"f_number,omitempty"`
	ExposureTime     *float64 `json:"exposure_time,omitempty"`
	FocalLengthMM    *float64 `json:"focal_length,omitempty"`
	Software         string   `json:"software,omitempty"`
}

// HasLocation reports whether GPS coordinates are present.
func (e *ImageExif) HasLocation() bool {
	return e != nil && e.Latitude != nil && e.Longitude != nil
}

// ImageData is the data payload of an image envelope. The envelope's
// sha256 is the hash of the file bytes, not of this payload; UUID is the
// serving handle at the image host.
type ImageData struct {
	UUID             string        `json:"uuid"`
	OriginalFilename string        `json:"original_filename,omitempty"`
	File             ImageFileInfo `json:"file"`
	Exif             *ImageExif    `json:"exif,omitempty"`
	Environment      *Environment  `json:"environment,omitempty"`
}
