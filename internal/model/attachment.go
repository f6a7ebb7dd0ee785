// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// PayloadKind 标识附件内容当前的表示形式。
type PayloadKind string

const (
	PayloadInline PayloadKind = "inline"
	PayloadRemote PayloadKind = "remote"
)

// Payload 是附件内容的两种互斥表示之一：内联字节或远程引用。
type Payload interface {
	Kind() PayloadKind
	isPayload()
}

// InlinePayload 以 base64 文本携带原始字节。
type InlinePayload struct {
	Data string
}

// RemotePayload 是上传接口返回的稳定引用。
type RemotePayload struct {
	URI string
}

func (InlinePayload) Kind() PayloadKind { return PayloadInline }
func (InlinePayload) isPayload()        {}
func (RemotePayload) Kind() PayloadKind { return PayloadRemote }
func (RemotePayload) isPayload()        {}

// Attachment 代表用户随消息发送的一个文件。
// payload 只能通过构造函数和 Upgrade 设置，保证 inline -> remote 的单向升级。
type Attachment struct {
	Name      string
	MIMEType  string
	SizeBytes int64
	payload   Payload
}

// NewInlineAttachment 用原始字节创建一个内联附件。
func NewInlineAttachment(name, mimeType string, raw []byte) Attachment {
	return Attachment{
		Name:      name,
		MIMEType:  mimeType,
		SizeBytes: int64(len(raw)),
		payload:   InlinePayload{Data: base64.StdEncoding.EncodeToString(raw)},
	}
}

// NewRemoteAttachment 创建一个已经持有远程引用的附件。
func NewRemoteAttachment(name, mimeType string, size int64, uri string) Attachment {
	return Attachment{Name: name, MIMEType: mimeType, SizeBytes: size, payload: RemotePayload{URI: uri}}
}

// Payload 返回附件当前的内容表示。
func (a Attachment) Payload() Payload {
	return a.payload
}

// IsRemote 报告附件是否已经升级为远程引用。
func (a Attachment) IsRemote() bool {
	_, ok := a.payload.(RemotePayload)
	return ok
}

// RemoteURI 返回远程引用（若存在）。
func (a Attachment) RemoteURI() (string, bool) {
	p, ok := a.payload.(RemotePayload)
	return p.URI, ok
}

// InlineData 返回 base64 内容（若仍为内联表示）。
func (a Attachment) InlineData() (string, bool) {
	p, ok := a.payload.(InlinePayload)
	return p.Data, ok
}

// Bytes 解码内联内容。远程附件没有本地字节。
func (a Attachment) Bytes() ([]byte, error) {
	data, ok := a.InlineData()
	if !ok {
		return nil, errors.New("attachment has no inline bytes")
	}
	return base64.StdEncoding.DecodeString(data)
}

// Upgrade 返回持有远程引用的副本，内联字节随之丢弃。
// 已是远程引用的附件原样返回。
func (a Attachment) Upgrade(uri string) Attachment {
	if a.IsRemote() || uri == "" {
		return a
	}
	a.payload = RemotePayload{URI: uri}
	return a
}

// attachmentJSON 是附件的持久化格式：data 与 fileUri 二选一。
type attachmentJSON struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Data     string `json:"data,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (a Attachment) MarshalJSON() ([]byte, error) {
	out := attachmentJSON{Name: a.Name, MIMEType: a.MIMEType, Size: a.SizeBytes}
	switch p := a.payload.(type) {
	case InlinePayload:
		out.Data = p.Data
	case RemotePayload:
		out.FileURI = p.URI
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Attachment) UnmarshalJSON(b []byte) error {
	var in attachmentJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return fmt.Errorf("failed to unmarshal attachment: %w", err)
	}
	a.Name, a.MIMEType, a.SizeBytes = in.Name, in.MIMEType, in.Size
	if in.FileURI != "" {
		a.payload = RemotePayload{URI: in.FileURI}
	} else {
		a.payload = InlinePayload{Data: in.Data}
	}
	return nil
}

// AttachmentView 是返回给前端的附件元数据，不含内容。
type AttachmentView struct {
	Name     string      `json:"name"`
	MIMEType string      `json:"mimeType"`
	Size     int64       `json:"size"`
	Payload  PayloadKind `json:"payload"`
}

// View 返回附件的元数据视图。
func (a Attachment) View() AttachmentView {
	v := AttachmentView{Name: a.Name, MIMEType: a.MIMEType, Size: a.SizeBytes}
	if a.payload != nil {
		v.Payload = a.payload.Kind()
	}
	return v
}
