package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 是所有 NotFoundError 匹配的哨兵错误。
	ErrNotFound = errors.New("not found")
	// ErrTurnInProgress 表示当前会话已有一轮对话正在进行。
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrNoSession 表示用户没有已初始化的会话。
	ErrNoSession = errors.New("no active session")
	// ErrEmptyTurn 表示既没有文本也没有附件。
	ErrEmptyTurn = errors.New("message text and attachments are both empty")
)

// IngestionReadError 表示单个文件读取失败，该文件被跳过。
type IngestionReadError struct {
	FileName string
	Err      error
}

func (e *IngestionReadError) Error() string {
	return fmt.Sprintf("failed to read file %q: %v", e.FileName, e.Err)
}

func (e *IngestionReadError) Unwrap() error { return e.Err }

// UploadError 表示附件上传失败，该附件本轮以内联字节发送。
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload attachment %q: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// RemoteCallError 表示生成调用失败，只对当前这一轮致命。
type RemoteCallError struct {
	Model string
	Err   error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("generate content with %s failed: %v", e.Model, e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// PersistenceError 表示持久化读写失败，内存状态仍然有效。
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotFoundError 表示按 ID 查找的资源不存在。
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// Is 让 errors.Is(err, ErrNotFound) 成立。
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
