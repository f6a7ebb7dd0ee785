package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentUpgradeIsMonotonic(t *testing.T) {
	att := NewInlineAttachment("contrato.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.False(t, att.IsRemote())
	assert.Equal(t, int64(8), att.SizeBytes)

	raw, err := att.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(raw))

	up := att.Upgrade("https://files.example/abc")
	uri, ok := up.RemoteURI()
	require.True(t, ok)
	assert.Equal(t, "https://files.example/abc", uri)
	_, hasInline := up.InlineData()
	assert.False(t, hasInline)

	// 再次升级不会替换已有引用
	again := up.Upgrade("https://files.example/other")
	uri, _ = again.RemoteURI()
	assert.Equal(t, "https://files.example/abc", uri)

	// 空引用不会改变内联附件
	assert.False(t, att.Upgrade("").IsRemote())
	// 原值不受影响
	assert.False(t, att.IsRemote())
}

func TestAttachmentJSONKeepsVariant(t *testing.T) {
	msgs := []Message{{
		ID:   "1",
		Role: RoleUser,
		Text: "analiza",
		Attachments: []Attachment{
			NewInlineAttachment("a.txt", "text/plain", []byte("hola")),
			NewRemoteAttachment("b.pdf", "application/pdf", 10, "files/b"),
		},
	}}
	b, err := json.Marshal(msgs)
	require.NoError(t, err)

	var decoded []Message
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Len(t, decoded[0].Attachments, 2)

	first := decoded[0].Attachments[0]
	assert.Equal(t, PayloadInline, first.Payload().Kind())
	data, _ := first.Bytes()
	assert.Equal(t, "hola", string(data))

	second := decoded[0].Attachments[1]
	uri, ok := second.RemoteURI()
	assert.True(t, ok)
	assert.Equal(t, "files/b", uri)
	assert.Equal(t, int64(10), second.SizeBytes)
}

func TestDeriveTitleAndPreview(t *testing.T) {
	long := "Necesito redactar una acción de tutela por vulneración del derecho a la salud"
	msgs := []Message{
		{Role: RoleUser, Text: "  " + long},
		{Role: RoleModel, Text: "Claro, aquí está el borrador."},
	}
	title := DeriveTitle(msgs)
	assert.Equal(t, string([]rune(long)[:40])+"...", title)
	assert.Equal(t, "Claro, aquí está el borrador.", DerivePreview(msgs))

	assert.Equal(t, "Nueva consulta", DeriveTitle(nil))
	onlyFiles := []Message{{Role: RoleUser, Attachments: []Attachment{NewInlineAttachment("expediente.pdf", "application/pdf", nil)}}}
	assert.Equal(t, "expediente.pdf", DeriveTitle(onlyFiles))
}
