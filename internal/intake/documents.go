package intake

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// MaxDocumentSize is the per-file upload limit.
const MaxDocumentSize = 5 << 20

var allowedDocumentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

const (
	reasonTooLarge    = "File size exceeds 5MB limit"
	reasonInvalidType = "Invalid file type. Only JPEG, PNG and PDF files are allowed"
)

// Upload is one file offered for the documents list. Size and MimeType are
// the values declared by the client and are checked before Open is called.
type Upload struct {
	FileName     string
	MimeType     string
	Size         int64
	DocumentType string
	Description  string
	Open         func() (io.ReadCloser, error)
}

// FileError explains why a file was skipped.
type FileError struct {
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
}

func (e FileError) Error() string {
	return e.FileName + ": " + e.Reason
}

// EncodedFile is the result of turning an upload into a data URL.
type EncodedFile struct {
	DataURL  string
	MimeType string
	Size     int64
}

// DocumentEncoder turns an accepted upload into an embeddable data URL.
type DocumentEncoder interface {
	Encode(ctx context.Context, u Upload) (EncodedFile, error)
}

// DataURLEncoder reads the file, sniffs its content type and base64-encodes
// it. Content that does not match an allowed type is refused even when the
// declared type was acceptable.
type DataURLEncoder struct{}

func (DataURLEncoder) Encode(ctx context.Context, u Upload) (EncodedFile, error) {
	if err := ctx.Err(); err != nil {
		return EncodedFile{}, err
	}
	if u.Open == nil {
		return EncodedFile{}, FileError{FileName: u.FileName, Reason: "File content is missing"}
	}
	rc, err := u.Open()
	if err != nil {
		return EncodedFile{}, fmt.Errorf("failed to open %s: %w", u.FileName, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxDocumentSize+1))
	if err != nil {
		return EncodedFile{}, fmt.Errorf("failed to read %s: %w", u.FileName, err)
	}
	if len(data) > MaxDocumentSize {
		return EncodedFile{}, FileError{FileName: u.FileName, Reason: reasonTooLarge}
	}

	detected := mimetype.Detect(data)
	var mime string
	for allowed := range allowedDocumentTypes {
		if detected.Is(allowed) {
			mime = allowed
			break
		}
	}
	if mime == "" {
		return EncodedFile{}, FileError{FileName: u.FileName, Reason: reasonInvalidType}
	}

	return EncodedFile{
		DataURL:  "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
		MimeType: mime,
		Size:     int64(len(data)),
	}, nil
}

// checkUpload applies the declared-size and declared-type limits.
func checkUpload(u Upload) *FileError {
	if u.Size > MaxDocumentSize {
		return &FileError{FileName: u.FileName, Reason: reasonTooLarge}
	}
	mime := strings.ToLower(strings.TrimSpace(u.MimeType))
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if !allowedDocumentTypes[mime] {
		return &FileError{FileName: u.FileName, Reason: reasonInvalidType}
	}
	return nil
}

// encodeUploads checks and encodes files in order. Rejected files are
// reported and skipped; an encoder failure that is not a FileError aborts
// the batch.
func encodeUploads(ctx context.Context, enc DocumentEncoder, files []Upload, now time.Time) ([]Document, []FileError, error) {
	var (
		added    []Document
		rejected []FileError
	)
	for _, u := range files {
		if fe := checkUpload(u); fe != nil {
			rejected = append(rejected, *fe)
			continue
		}
		encoded, err := enc.Encode(ctx, u)
		if err != nil {
			if fe, ok := err.(FileError); ok {
				rejected = append(rejected, fe)
				continue
			}
			return nil, nil, err
		}
		docType := strings.TrimSpace(u.DocumentType)
		if docType == "" {
			docType = "Other"
		}
		added = append(added, Document{
			DocumentType: docType,
			FileName:     u.FileName,
			FileURL:      encoded.DataURL,
			FileSize:     encoded.Size,
			MimeType:     encoded.MimeType,
			Description:  u.Description,
			UploadedAt:   now.UTC().Format(time.RFC3339),
		})
	}
	return added, rejected, nil
}

// setDocumentField updates the editable metadata of a document. File content
// and type are fixed once uploaded.
func setDocumentField(docs []Document, index int, field, value string) ([]Document, error) {
	if index < 0 || index >= len(docs) {
		return docs, nil
	}
	out := make([]Document, len(docs))
	copy(out, docs)
	switch field {
	case "documentType":
		out[index].DocumentType = value
	case "description":
		out[index].Description = value
	default:
		return docs, fmt.Errorf("%w: documents.%s", ErrUnknownField, field)
	}
	return out, nil
}
