package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"imagebot/internal/domain"
	"imagebot/internal/mocks"
)

const trigger = "画像送ってみて"

type fixture struct {
	images   *mocks.MockImageSource
	uploader *mocks.MockFileUploader
	replier  *mocks.MockReplier
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		images:   mocks.NewMockImageSource(ctrl),
		uploader: mocks.NewMockFileUploader(ctrl),
		replier:  mocks.NewMockReplier(ctrl),
	}
	f.pipeline = New(Config{
		Trigger:         trigger,
		IgnoredAccounts: []int64{10617115},
		Images:          f.images,
		Uploader:        f.uploader,
		Replier:         f.replier,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func triggerEvent() domain.InboundEvent {
	return domain.InboundEvent{AccountID: 1, Body: trigger, RoomID: "9", MessageID: "5"}
}

func TestHandle_IgnoredAccount(t *testing.T) {
	f := newFixture(t)
	ev := triggerEvent()
	ev.AccountID = 10617115

	res, err := f.pipeline.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, domain.StateIgnored, res.State)
}

func TestHandle_NotTriggered(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	for _, body := range []string{"", "hello", trigger + " ", "画像送って"} {
		ev := triggerEvent()
		ev.Body = body
		res, err := f.pipeline.Handle(context.Background(), ev)
		req.NoError(err)
		req.Equal(domain.StateNotTriggered, res.State, "body %q", body)
	}
}

func TestHandle_TriggerWithoutRoom(t *testing.T) {
	f := newFixture(t)
	ev := triggerEvent()
	ev.RoomID = ""

	_, err := f.pipeline.Handle(context.Background(), ev)
	require.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestHandle_Success(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ev := triggerEvent()
	file := domain.TransientFile{Path: "/tmp/image_1.jpg", MimeType: "image/jpeg"}

	gomock.InOrder(
		f.images.EXPECT().Fetch(gomock.Any()).Return(file, nil),
		f.uploader.EXPECT().UploadFile(gomock.Any(), domain.FlexID("9"), file).Return(domain.FileID("42"), nil),
		f.replier.EXPECT().Reply(gomock.Any(), ev, domain.FileID("42")).Return(nil),
	)

	res, err := f.pipeline.Handle(context.Background(), ev)
	req.NoError(err)
	req.Equal(domain.StateReplied, res.State)
	req.Equal(domain.FileID("42"), res.FileID)
}

func TestHandle_DownloadFails(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.images.EXPECT().Fetch(gomock.Any()).Return(domain.TransientFile{}, domain.DownloadError("HTTP 503"))

	res, err := f.pipeline.Handle(context.Background(), triggerEvent())
	req.ErrorIs(err, domain.ErrDownload)
	req.Equal(domain.StateErrored, res.State)
}

func TestHandle_UploadFails(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	file := domain.TransientFile{Path: "/tmp/image_2.jpg"}

	f.images.EXPECT().Fetch(gomock.Any()).Return(file, nil)
	f.uploader.EXPECT().UploadFile(gomock.Any(), gomock.Any(), file).Return(domain.FileID(""), domain.UploadError("HTTP 403"))

	res, err := f.pipeline.Handle(context.Background(), triggerEvent())
	req.ErrorIs(err, domain.ErrUpload)
	req.Equal(domain.StateErrored, res.State)
}

func TestHandle_ReplyFailsKeepsFileID(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.images.EXPECT().Fetch(gomock.Any()).Return(domain.TransientFile{Path: "/tmp/x.jpg"}, nil)
	f.uploader.EXPECT().UploadFile(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.FileID("42"), nil)
	f.replier.EXPECT().Reply(gomock.Any(), gomock.Any(), domain.FileID("42")).Return(domain.ReplyError("HTTP 500"))

	res, err := f.pipeline.Handle(context.Background(), triggerEvent())
	req.ErrorIs(err, domain.ErrReply)
	req.Equal(domain.StateErrored, res.State)
	req.Equal(domain.FileID("42"), res.FileID)
}

func TestHandle_UntaggedErrorAttributedToStep(t *testing.T) {
	f := newFixture(t)
	f.images.EXPECT().Fetch(gomock.Any()).Return(domain.TransientFile{}, errors.New("boom"))

	_, err := f.pipeline.Handle(context.Background(), triggerEvent())
	require.ErrorIs(t, err, domain.ErrDownload)
	step, ok := domain.FailedStep(err)
	require.True(t, ok)
	require.Equal(t, domain.StepDownload, step)
}
