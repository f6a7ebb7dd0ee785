package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jurisai-go/internal/config"
	"jurisai-go/internal/model"
	"jurisai-go/pkg/gemini"
)

type chatFixture struct {
	uploader  *fakeUploader
	generator *fakeGenerator
	cases     *fakeCaseService
	svc       ChatService
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		uploader:  &fakeUploader{fail: map[string]bool{}},
		generator: &fakeGenerator{},
		cases:     newFakeCaseService(),
	}
	f.svc = NewChatService(NewReconcileService(f.uploader), testRouter(), f.generator, f.cases, config.GeminiConfig{})
	return f
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []map[string]interface{}
}

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	w.mu.Lock()
	w.msgs = append(w.msgs, m)
	w.mu.Unlock()
	return nil
}

func TestSendTextOnlyUsesLowTier(t *testing.T) {
	f := newChatFixture()
	_, sess := openSession("ana")

	res, err := f.svc.Send(context.Background(), sess, SendRequest{Text: "  ¿Qué es una tutela?  "}, nil)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", res.Model)
	assert.True(t, res.Persisted)
	assert.NoError(t, res.RemoteErr)
	assert.Equal(t, "¿Qué es una tutela?", res.UserMessage.Text)
	assert.Equal(t, "respuesta", res.ModelMessage.Text)

	req := f.generator.last()
	assert.False(t, req.GoogleSearch)
	assert.Zero(t, req.ReasoningBudget)
	require.Len(t, req.Turns, 1)
	assert.Equal(t, "user", req.Turns[0].Role)
	assert.Contains(t, req.SystemInstruction, "Eres JurisAI")
	assert.Contains(t, req.SystemInstruction, tonePrompts[ToneFormal])

	msgs := sess.Store.Get()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleModel, msgs[1].Role)
	assert.False(t, sess.Store.TurnActive())

	saved, err := f.cases.Load(context.Background(), "ana", sess.ConversationID())
	require.NoError(t, err)
	assert.Len(t, saved.Messages, 2)
	assert.Equal(t, "¿Qué es una tutela?", saved.Title)
}

func TestSendUpgradesPendingAttachments(t *testing.T) {
	f := newChatFixture()
	_, sess := openSession("ana")
	sess.AddPending([]model.Attachment{inline("contrato.pdf")})

	res, err := f.svc.Send(context.Background(), sess, SendRequest{Text: "analiza", Search: true, Tone: string(ToneConciliatory)}, nil)
	require.NoError(t, err)

	assert.Equal(t, "gemini-3-pro-preview", res.Model)
	assert.Equal(t, 1, res.Uploaded)
	assert.Empty(t, sess.Pending())

	req := f.generator.last()
	assert.True(t, req.GoogleSearch)
	assert.Contains(t, req.SystemInstruction, tonePrompts[ToneConciliatory])
	require.Len(t, req.Turns, 1)
	require.Len(t, req.Turns[0].Parts, 2)
	assert.Equal(t, "https://files.example/contrato.pdf", req.Turns[0].Parts[0].FileURI)
	assert.Equal(t, "analiza", req.Turns[0].Parts[1].Text)

	user := sess.Store.Get()[0]
	require.Len(t, user.Attachments, 1)
	assert.True(t, user.Attachments[0].IsRemote())
	require.Len(t, res.UserMessage.Attachments, 1)
	assert.Equal(t, model.PayloadRemote, res.UserMessage.Attachments[0].Payload)
}

func TestSendAttachmentOnlyTurn(t *testing.T) {
	f := newChatFixture()
	_, sess := openSession("ana")
	sess.AddPending([]model.Attachment{inline("pruebas.pdf")})

	_, err := f.svc.Send(context.Background(), sess, SendRequest{}, nil)
	require.NoError(t, err)

	snap := sess.Snapshot()
	assert.Equal(t, "pruebas.pdf", snap.Title)
}

func TestSendFailedUploadIsSentInline(t *testing.T) {
	f := newChatFixture()
	f.uploader.fail["grande.pdf"] = true
	_, sess := openSession("ana")
	sess.AddPending([]model.Attachment{inline("grande.pdf")})

	res, err := f.svc.Send(context.Background(), sess, SendRequest{Text: "resume"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UploadFailures)

	part := f.generator.last().Turns[0].Parts[0]
	assert.Empty(t, part.FileURI)
	assert.Equal(t, []byte("%PDF grande.pdf"), part.Data)
	assert.False(t, sess.Store.Get()[0].Attachments[0].IsRemote())

	// 下一轮重新上传历史中的内联附件并整体替换
	delete(f.uploader.fail, "grande.pdf")
	before := f.uploader.calls.Load()
	_, err = f.svc.Send(context.Background(), sess, SendRequest{Text: "continúa"}, nil)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.uploader.calls.Load())

	msgs := sess.Store.Get()
	require.Len(t, msgs, 4)
	assert.True(t, msgs[0].Attachments[0].IsRemote())

	req := f.generator.last()
	require.Len(t, req.Turns, 3)
	assert.Equal(t, "https://files.example/grande.pdf", req.Turns[0].Parts[0].FileURI)
	assert.Equal(t, "gemini-3-pro-preview", req.Model)

	// 历史已全部为远程引用，第三轮没有上传
	before = f.uploader.calls.Load()
	_, err = f.svc.Send(context.Background(), sess, SendRequest{Text: "gracias"}, nil)
	require.NoError(t, err)
	assert.Equal(t, before, f.uploader.calls.Load())
}

func TestSendRemoteFailureAppendsErrorMessage(t *testing.T) {
	f := newChatFixture()
	f.generator.err = errors.New("503 unavailable")
	_, sess := openSession("ana")

	res, err := f.svc.Send(context.Background(), sess, SendRequest{Text: "hola"}, nil)
	require.NoError(t, err)

	var rerr *model.RemoteCallError
	require.ErrorAs(t, res.RemoteErr, &rerr)
	assert.Equal(t, "gemini-2.5-flash", rerr.Model)
	assert.Equal(t, RemoteErrorText, res.ModelMessage.Text)

	msgs := sess.Store.Get()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleModel, msgs[1].Role)
	assert.Equal(t, RemoteErrorText, msgs[1].Text)
	assert.True(t, res.Persisted)
}

func TestSendEmptyReplyUsesFallbackAndKeepsSources(t *testing.T) {
	f := newChatFixture()
	f.generator.resp = &gemini.GenerateResponse{
		Text:    "  ",
		Sources: []gemini.Source{{Title: "Corte Constitucional", URI: "https://corteconstitucional.gov.co"}},
	}
	_, sess := openSession("ana")

	res, err := f.svc.Send(context.Background(), sess, SendRequest{Text: "busca", Search: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackReplyText, res.ModelMessage.Text)
	require.Len(t, res.ModelMessage.Sources, 1)
	assert.Equal(t, "Corte Constitucional", res.ModelMessage.Sources[0].Title)
}

func TestSendReasoningIgnoresSearch(t *testing.T) {
	f := newChatFixture()
	_, sess := openSession("ana")

	res, err := f.svc.Send(context.Background(), sess, SendRequest{Text: "estrategia", Reasoning: true, Search: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini-3-pro-preview", res.Model)
	req := f.generator.last()
	assert.False(t, req.GoogleSearch)
	assert.Equal(t, int32(16000), req.ReasoningBudget)
	msgs := sess.Store.Get()
	assert.True(t, msgs[0].ReasoningRequested)
	assert.True(t, msgs[1].ReasoningRequested)
	assert.True(t, res.ModelMessage.ReasoningRequested)
}

func TestSendRejectsEmptyTurn(t *testing.T) {
	f := newChatFixture()
	_, sess := openSession("ana")

	_, err := f.svc.Send(context.Background(), sess, SendRequest{Text: "   "}, nil)
	assert.ErrorIs(t, err, model.ErrEmptyTurn)
	assert.Empty(t, f.generator.reqs)
}

func TestSendRejectsConcurrentTurn(t *testing.T) {
	f := newChatFixture()
	_, sess := openSession("ana")
	require.NoError(t, sess.Store.BeginTurn())

	_, err := f.svc.Send(context.Background(), sess, SendRequest{Text: "hola"}, nil)
	assert.ErrorIs(t, err, model.ErrTurnInProgress)
	assert.Zero(t, sess.Store.Len())
	sess.Store.EndTurn()
}

func TestSendPersistenceFailureIsNotFatal(t *testing.T) {
	f := newChatFixture()
	f.cases.saveErr = errors.New("connection refused")
	_, sess := openSession("ana")

	res, err := f.svc.Send(context.Background(), sess, SendRequest{Text: "hola"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Equal(t, 1, f.cases.saves)
	assert.Equal(t, 2, sess.Store.Len())
}

func TestSendPersistsAfterCancellation(t *testing.T) {
	f := newChatFixture()
	_, sess := openSession("ana")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.Send(ctx, sess, SendRequest{Text: "hola"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Persisted)
}

func TestSendWritesStageAndCompletion(t *testing.T) {
	f := newChatFixture()
	_, sess := openSession("ana")
	sess.AddPending([]model.Attachment{inline("a.pdf")})
	w := &recordingWriter{}

	_, err := f.svc.Send(context.Background(), sess, SendRequest{Text: "hola"}, w)
	require.NoError(t, err)

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "uploading", w.msgs[0]["stage"])
	assert.Equal(t, "generating", w.msgs[1]["stage"])
	assert.Equal(t, "completion", w.msgs[2]["type"])
	assert.Equal(t, "finished", w.msgs[2]["status"])
}
