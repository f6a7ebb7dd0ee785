// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"jurisai-go/internal/config"
	"jurisai-go/internal/model"
	"jurisai-go/internal/session"
	"jurisai-go/pkg/gemini"
	"jurisai-go/pkg/log"
)

// Generator 是远程生成能力。
type Generator interface {
	Generate(ctx context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error)
}

// MessageWriter defines an interface for writing WebSocket messages.
// 对于普通 HTTP 请求传入 nil。
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// SendRequest 是用户提交一轮对话的参数。
type SendRequest struct {
	Text      string `json:"text"`
	Tone      string `json:"tone"`
	Search    bool   `json:"search"`
	Reasoning bool   `json:"reasoning"`
}

// TurnResult 是一轮对话的结果。
type TurnResult struct {
	UserMessage    model.MessageView `json:"userMessage"`
	ModelMessage   model.MessageView `json:"modelMessage"`
	Model          string            `json:"model"`
	Uploaded       int               `json:"uploaded"`
	UploadFailures int               `json:"uploadFailures"`
	Persisted      bool              `json:"persisted"`
	// RemoteErr 非空表示生成失败，ModelMessage 为错误提示。
	RemoteErr error `json:"-"`
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	Send(ctx context.Context, sess *session.Session, req SendRequest, writer MessageWriter) (*TurnResult, error)
}

type chatService struct {
	reconciler ReconcileService
	router     *ModelRouter
	generator  Generator
	cases      CaseService
	systemBase string
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(reconciler ReconcileService, router *ModelRouter, generator Generator, cases CaseService, cfg config.GeminiConfig) ChatService {
	return &chatService{
		reconciler: reconciler,
		router:     router,
		generator:  generator,
		cases:      cases,
		systemBase: cfg.SystemInstruction,
	}
}

// Send 执行一轮对话：追加用户消息、对账附件、选择模型、调用生成、回写附件升级并持久化。
// 同一会话同时只允许一轮；生成失败不返回 error，而是追加一条错误提示消息。
func (s *chatService) Send(ctx context.Context, sess *session.Session, req SendRequest, writer MessageWriter) (*TurnResult, error) {
	if err := sess.Store.BeginTurn(); err != nil {
		return nil, err
	}
	defer sess.Store.EndTurn()

	text := strings.TrimSpace(req.Text)
	if text == "" && len(sess.Pending()) == 0 {
		return nil, model.ErrEmptyTurn
	}

	history := sess.Store.Get()
	userMsg := model.Message{
		ID:                 model.NewMessageID(),
		Role:               model.RoleUser,
		Text:               text,
		Attachments:        sess.TakePending(),
		CreatedAt:          time.Now(),
		ReasoningRequested: req.Reasoning,
	}
	sess.Store.Append(userMsg)

	// 1. 上传当前与历史中的内联附件
	if len(userMsg.Attachments) > 0 || historyHasInline(history) {
		sendStage(writer, "uploading")
	}
	rec := s.reconciler.Reconcile(ctx, userMsg.Attachments, history)
	effective := history
	if rec.HistoryChanged {
		effective = rec.History
	}

	// 2. 选择模型
	hasAny := len(rec.Current) > 0 || historyHasAttachments(effective)
	cfg := s.router.SelectConfig(len(history) > 0, hasAny, req.Reasoning, req.Search)
	log.Infof("[ChatService] user=%s, model=%s, tools=%v, history=%d, attachments=%d",
		sess.Username, cfg.Model, cfg.Tools, len(history), len(rec.Current))

	// 3. 调用生成
	sendStage(writer, "generating")
	turns := buildTurns(effective, model.Message{Role: model.RoleUser, Text: text, Attachments: rec.Current})
	resp, err := s.generator.Generate(ctx, gemini.GenerateRequest{
		Model:             cfg.Model,
		SystemInstruction: BuildSystemInstruction(s.systemBase, ParseTone(req.Tone)),
		Turns:             turns,
		GoogleSearch:      cfg.HasTool(ToolGoogleSearch),
		ReasoningBudget:   cfg.ReasoningBudget,
	})

	result := &TurnResult{Model: cfg.Model, Uploaded: rec.Uploaded, UploadFailures: len(rec.Failures)}
	modelMsg := model.Message{
		ID:                 model.NewMessageID(),
		Role:               model.RoleModel,
		CreatedAt:          time.Now(),
		ReasoningRequested: req.Reasoning,
	}
	if err != nil {
		result.RemoteErr = &model.RemoteCallError{Model: cfg.Model, Err: err}
		log.Error("[ChatService] 生成失败", result.RemoteErr)
		modelMsg.Text = RemoteErrorText
	} else {
		modelMsg.Text = resp.Text
		if strings.TrimSpace(modelMsg.Text) == "" {
			modelMsg.Text = FallbackReplyText
		}
		for _, src := range resp.Sources {
			modelMsg.Sources = append(modelMsg.Sources, model.Source{Title: src.Title, URI: src.URI})
		}
	}
	sess.Store.Append(modelMsg)

	// 4. 回写附件升级：当前消息原地更新，历史有变化时整体替换
	if err := sess.Store.UpdateText(userMsg.ID, userMsg.Text, session.WithAttachments(rec.Current)); err != nil {
		log.Errorf("[ChatService] 回写附件失败: %v", err)
	}
	if rec.HistoryChanged {
		current := sess.Store.Get()
		sess.Store.BulkReplace(append(rec.History, current[len(history):]...))
	}

	// 5. 持久化快照，即使请求已被取消也要保存
	snap := sess.Snapshot()
	if err := s.cases.Save(context.WithoutCancel(ctx), snap); err != nil {
		log.Error("[ChatService] 保存案件失败", err)
	} else {
		result.Persisted = true
	}

	if saved, ok := sess.Store.Find(userMsg.ID); ok {
		result.UserMessage = saved.View()
	}
	result.ModelMessage = modelMsg.View()
	sendCompletion(writer, result)
	return result, nil
}

// buildTurns 将历史与当前消息转换为生成请求的轮次。远程附件按引用发送，其余按字节发送。
func buildTurns(history []model.Message, current model.Message) []gemini.Turn {
	turns := make([]gemini.Turn, 0, len(history)+1)
	for _, m := range history {
		turns = append(turns, toTurn(m))
	}
	return append(turns, toTurn(current))
}

func toTurn(m model.Message) gemini.Turn {
	t := gemini.Turn{Role: string(m.Role)}
	for _, a := range m.Attachments {
		if uri, ok := a.RemoteURI(); ok {
			t.Parts = append(t.Parts, gemini.Part{FileURI: uri, MIMEType: a.MIMEType})
			continue
		}
		data, err := a.Bytes()
		if err != nil {
			log.Warnf("[ChatService] 附件 %q 内容无法解码，已跳过: %v", a.Name, err)
			continue
		}
		t.Parts = append(t.Parts, gemini.Part{Data: data, MIMEType: a.MIMEType})
	}
	if m.Text != "" {
		t.Parts = append(t.Parts, gemini.Part{Text: m.Text})
	}
	return t
}

func historyHasAttachments(msgs []model.Message) bool {
	for _, m := range msgs {
		if len(m.Attachments) > 0 {
			return true
		}
	}
	return false
}

func historyHasInline(msgs []model.Message) bool {
	for _, m := range msgs {
		for _, a := range m.Attachments {
			if !a.IsRemote() {
				return true
			}
		}
	}
	return false
}

// sendStage 发送阶段通知 JSON
func sendStage(w MessageWriter, stage string) {
	if w == nil {
		return
	}
	b, _ := json.Marshal(map[string]interface{}{
		"type":      "stage",
		"stage":     stage,
		"timestamp": time.Now().UnixMilli(),
	})
	_ = w.WriteMessage(websocket.TextMessage, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(w MessageWriter, result *TurnResult) {
	if w == nil {
		return
	}
	status := "finished"
	if result.RemoteErr != nil {
		status = "failed"
	}
	b, _ := json.Marshal(map[string]interface{}{
		"type":      "completion",
		"status":    status,
		"data":      result,
		"timestamp": time.Now().UnixMilli(),
	})
	_ = w.WriteMessage(websocket.TextMessage, b)
}
