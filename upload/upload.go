// Package upload stores launch assets and resolves them to retrievable URIs.
package upload

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/scpcorp/candy-launcher/common"
	"gitlab.com/scpcorp/candy-launcher/logging"
)

var ErrEmptySubmission = errors.New("empty submission")

// ProgressFunc receives the number of bytes sent out of total.
type ProgressFunc func(sent, total int64)

type Submission struct {
	Data        []byte
	ContentType string
	Tags        map[string]string
	// Chunked sends Data in resumable chunks and reports Progress.
	Chunked  bool
	Progress ProgressFunc
}

// Backend stores one submission and returns the URI it is retrievable at.
type Backend interface {
	Put(ctx context.Context, sub Submission) (string, error)
}

type Result struct {
	ImageURI    string `json:"image_uri"`
	ManifestURI string `json:"manifest_uri"`
}

// UploadMetadata uploads the image, points the manifest at it and uploads
// the manifest. The manifest is modified in place.
func UploadMetadata(ctx context.Context, backend Backend, image []byte, manifest *common.Manifest) (*Result, error) {
	log := logging.WithComponent("upload")

	imageURI, err := backend.Put(ctx, Submission{
		Data:        image,
		ContentType: common.ContentTypePNG,
		Tags:        map[string]string{"Content-Type": common.ContentTypePNG},
		Chunked:     true,
		Progress: func(sent, total int64) {
			log.Debug().Int64("sent", sent).Int64("total", total).Msg("Image upload progress")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	log.Info().Str("uri", imageURI).Msg("Image uploaded")

	if err := manifest.ApplyImage(imageURI, common.ContentTypePNG); err != nil {
		return nil, err
	}
	data, err := manifest.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	manifestURI, err := backend.Put(ctx, Submission{
		Data:        data,
		ContentType: common.ContentTypeJSON,
		Tags:        map[string]string{"Content-Type": common.ContentTypeJSON},
	})
	if err != nil {
		return nil, fmt.Errorf("upload manifest: %w", err)
	}
	log.Info().Str("uri", manifestURI).Msg("Manifest uploaded")

	return &Result{ImageURI: imageURI, ManifestURI: manifestURI}, nil
}
