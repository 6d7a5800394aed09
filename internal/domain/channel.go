package domain

import "context"

//go:generate mockgen -source=channel.go -destination=../mocks/channel_mock.go -package=mocks

// TransientFile is a downloaded image waiting to be uploaded. It belongs to a
// single webhook invocation and is removed by the uploader.
type TransientFile struct {
	Path     string
	MimeType string
	Size     int64
}

// ImageSource fetches one image into transient storage.
type ImageSource interface {
	Fetch(ctx context.Context) (TransientFile, error)
}

// FileUploader pushes a transient file to a room and removes the file
// afterwards, whatever the outcome.
type FileUploader interface {
	UploadFile(ctx context.Context, roomID FlexID, file TransientFile) (FileID, error)
}

// Replier posts the reply that embeds an uploaded file.
type Replier interface {
	Reply(ctx context.Context, ev InboundEvent, fileID FileID) error
}
