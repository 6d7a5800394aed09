package platform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"imagebot/internal/domain"
)

func TestComposeReply(t *testing.T) {
	ev := domain.InboundEvent{AccountID: 1, RoomID: "9", MessageID: "5"}
	msg := ComposeReply(ev, "42", "")

	require.Contains(t, msg, "[rp aid=1 to=9-5]")
	require.Contains(t, msg, "[pname:1]さん")
	require.Contains(t, msg, "[file:42]")
	require.Equal(t, "[rp aid=1 to=9-5][pname:1]さん\n画像です！\n[file:42]", msg)
}

func TestComposeReply_CustomCaption(t *testing.T) {
	ev := domain.InboundEvent{AccountID: 7, RoomID: "100", MessageID: "2000"}
	require.Equal(t, "[rp aid=7 to=100-2000][pname:7]さん\nhere you go\n[file:3]",
		ComposeReply(ev, "3", "here you go"))
}
