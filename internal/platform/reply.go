package platform

import (
	"fmt"

	"imagebot/internal/domain"
)

// DefaultCaption is the line between the mention and the embedded file.
const DefaultCaption = "画像です！"

// ComposeReply builds the reply markup: a reply reference to the original
// message, a mention of its sender, the caption and the file embed.
func ComposeReply(ev domain.InboundEvent, fileID domain.FileID, caption string) string {
	if caption == "" {
		caption = DefaultCaption
	}
	return fmt.Sprintf("[rp aid=%s to=%s-%s][pname:%s]さん\n%s\n[file:%s]",
		ev.Sender(), ev.RoomID, ev.MessageID, ev.Sender(), caption, fileID)
}
