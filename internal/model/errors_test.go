package model

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundErrorMatchesSentinel(t *testing.T) {
	var err error = &NotFoundError{Resource: "case", ID: "c1"}
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, `case "c1" not found`)
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	for _, err := range []error{
		&IngestionReadError{FileName: "a.pdf", Err: io.ErrUnexpectedEOF},
		&UploadError{Name: "a.pdf", Err: io.ErrUnexpectedEOF},
		&RemoteCallError{Model: "gemini-2.5-flash", Err: io.ErrUnexpectedEOF},
		&PersistenceError{Op: "save case", Err: io.ErrUnexpectedEOF},
	} {
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), err.Error())
	}
}

func TestNewCaseDocumentFlattensMessages(t *testing.T) {
	doc := NewCaseDocument(Conversation{
		ID:       "c1",
		Username: "ana",
		Messages: []Message{
			{Role: RoleUser, Attachments: []Attachment{NewInlineAttachment("a.pdf", "application/pdf", []byte("x"))}},
			{Role: RoleModel, Text: "respuesta"},
		},
	})
	assert.Equal(t, "respuesta", doc.Content)
	assert.Equal(t, []string{"a.pdf"}, doc.AttachmentNames)
	assert.Equal(t, 2, doc.MessageCount)
}
